// Package voice turns the microphone frame stream into recordings: endpointed
// utterances, fixed windows and long segmented spans. All timing is audio
// time, counted in frames consumed.
package voice

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/audio"
)

type Config struct {
	// SpeechRMS is the frame energy treated as voice.
	SpeechRMS float64
	Smoothing int
	PreRoll   time.Duration
	// StartTimeout is how long an utterance listen waits for speech to begin.
	StartTimeout time.Duration
	// EndSilence ends an utterance once speech has started.
	EndSilence   time.Duration
	MaxUtterance time.Duration
	// SpanSilence stops a long listen early.
	SpanSilence time.Duration
	// SpanMax is the hard cap a long listen may be extended to once.
	SpanMax time.Duration
	// ExtendTail: speech within this much of the cap triggers the extension.
	ExtendTail time.Duration
}

func DefaultConfig() Config {
	return Config{
		SpeechRMS:    300,
		Smoothing:    4,
		PreRoll:      250 * time.Millisecond,
		StartTimeout: 8 * time.Second,
		EndSilence:   1200 * time.Millisecond,
		MaxUtterance: 30 * time.Second,
		SpanSilence:  8 * time.Second,
		SpanMax:      60 * time.Second,
		ExtendTail:   1500 * time.Millisecond,
	}
}

// Recording is captured audio plus what the detector saw.
type Recording struct {
	PCM    []byte
	Voiced bool
	// Latency is audio time from the start of the listen to speech onset.
	Latency  time.Duration
	Duration time.Duration
	Extended bool
}

// LatencyMs is Latency in milliseconds, 0 when nothing was voiced.
func (r Recording) LatencyMs() float64 {
	if !r.Voiced {
		return 0
	}
	return float64(r.Latency) / float64(time.Millisecond)
}

type Recorder struct {
	src audio.Source
	cfg Config
	log *zap.Logger
}

func NewRecorder(src audio.Source, cfg Config, log *zap.Logger) *Recorder {
	def := DefaultConfig()
	if cfg.SpeechRMS <= 0 {
		cfg.SpeechRMS = def.SpeechRMS
	}
	if cfg.Smoothing <= 0 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = def.StartTimeout
	}
	if cfg.EndSilence <= 0 {
		cfg.EndSilence = def.EndSilence
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = def.MaxUtterance
	}
	if cfg.SpanSilence <= 0 {
		cfg.SpanSilence = def.SpanSilence
	}
	if cfg.SpanMax <= 0 {
		cfg.SpanMax = def.SpanMax
	}
	if cfg.ExtendTail <= 0 {
		cfg.ExtendTail = def.ExtendTail
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{src: src, cfg: cfg, log: log.Named("recorder")}
}

func frames(d time.Duration) int {
	return int((d + audio.FrameDuration - 1) / audio.FrameDuration)
}

func elapsed(n int) time.Duration { return time.Duration(n) * audio.FrameDuration }

// take tracks one listen: frames read, onset, and the current silence run.
type take struct {
	v       *vad
	n       int
	onset   int
	silence int
	lastVox int
	kept    []audio.Frame
}

func (r *Recorder) newTake() *take {
	return &take{v: newVAD(r.cfg.SpeechRMS, r.cfg.Smoothing), onset: -1, lastVox: -1}
}

func (t *take) feed(f audio.Frame) bool {
	speech := t.v.isSpeech(f)
	if speech {
		if t.onset < 0 {
			t.onset = t.n
		}
		t.silence = 0
		t.lastVox = t.n
	} else {
		t.silence++
	}
	t.n++
	return speech
}

func (t *take) recording() Recording {
	rec := Recording{PCM: audio.Encode(t.kept), Voiced: t.onset >= 0, Duration: elapsed(t.n)}
	if rec.Voiced {
		rec.Latency = elapsed(t.onset)
	}
	return rec
}

func (r *Recorder) read(ctx context.Context) (audio.Frame, error) {
	f, err := r.src.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("voice: read frame: %w", err)
	}
	return f, nil
}

// discard drops audio captured before the listen began, so the device's own
// prompt is never taken for the participant.
func (r *Recorder) discard() {
	d, ok := r.src.(audio.Discarder)
	if !ok {
		return
	}
	if n := d.Discard(); n > 0 {
		r.log.Debug("discarded stale capture", zap.Duration("audio", elapsed(n)))
	}
}

// Utterance waits for speech to start and records until the speaker pauses.
// No speech within StartTimeout gives an unvoiced, empty recording.
func (r *Recorder) Utterance(ctx context.Context) (Recording, error) {
	r.discard()
	t := r.newTake()
	pre := newPreRoll(frames(r.cfg.PreRoll))
	startLimit, endSilence, maxLen := frames(r.cfg.StartTimeout), frames(r.cfg.EndSilence), frames(r.cfg.MaxUtterance)
	started := false
	for {
		f, err := r.read(ctx)
		if err != nil {
			return t.recording(), err
		}
		t.feed(f)
		if t.onset < 0 {
			pre.push(f)
			if t.n >= startLimit {
				r.log.Debug("no speech onset", zap.Duration("waited", elapsed(t.n)))
				return t.recording(), nil
			}
			continue
		}
		if !started {
			started = true
			t.kept = append(pre.drain(), f)
		} else {
			t.kept = append(t.kept, f)
		}
		if t.silence >= endSilence || t.n-t.onset >= maxLen {
			return t.recording(), nil
		}
	}
}

// Window records exactly d of audio.
func (r *Recorder) Window(ctx context.Context, d time.Duration) (Recording, error) {
	r.discard()
	t := r.newTake()
	limit := frames(d)
	for t.n < limit {
		f, err := r.read(ctx)
		if err != nil {
			return t.recording(), err
		}
		t.feed(f)
		t.kept = append(t.kept, f)
	}
	return t.recording(), nil
}

// Span records a long answer of nominal length d in segments, calling
// between(i) after segment i (from 1) while more listening remains. If the
// participant is still speaking at d the span is extended once up to SpanMax;
// a silence run of SpanSilence ends it early.
func (r *Recorder) Span(ctx context.Context, d, segment time.Duration, between func(i int)) (Recording, error) {
	r.discard()
	t := r.newTake()
	limit, hardMax := frames(d), frames(r.cfg.SpanMax)
	if limit > hardMax {
		hardMax = limit
	}
	segLen := frames(segment)
	silenceStop, tail := frames(r.cfg.SpanSilence), frames(r.cfg.ExtendTail)
	extended, boundary := false, false
	seg := 0
	for {
		if t.n >= limit {
			speakingNearCap := t.lastVox >= 0 && t.n-t.lastVox <= tail
			if extended || !speakingNearCap || limit >= hardMax {
				break
			}
			extended = true
			limit = hardMax
			r.log.Debug("still speaking at cap, extending", zap.Duration("to", elapsed(limit)))
		}
		if boundary {
			boundary = false
			seg++
			between(seg)
			r.discard()
			t.v.reset()
		}
		f, err := r.read(ctx)
		if err != nil {
			rec := t.recording()
			rec.Extended = extended
			return rec, err
		}
		t.feed(f)
		t.kept = append(t.kept, f)
		if t.silence >= silenceStop {
			r.log.Debug("sustained silence, ending span", zap.Duration("at", elapsed(t.n)))
			break
		}
		boundary = segLen > 0 && between != nil && t.n%segLen == 0
	}
	rec := t.recording()
	rec.Extended = extended
	return rec, nil
}
