// Package agent binds the exercise IO contract to the live device: TTS and
// the speaker for speech, the recorder and STT for listening, and the LLM for
// conversational follow-ups.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/exercise"
	"github.com/CoCoMind/coco-device-sub000/internal/tts"
	"github.com/CoCoMind/coco-device-sub000/internal/voice"
)

// chunkReply splits text into sentence-like chunks so playback can start
// after the first sentence is rendered. Splits on '.', '?', '!' and
// newlines, keeping the punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	flush := func() {
		if chunk := strings.TrimSpace(b.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		b.Reset()
	}
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			flush()
		case '\n', '\r':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return chunks
}

// mergeEllipses glues chunks that are only dots back onto the previous
// chunk, so "3... 8... 1" stays one paced line instead of seven requests.
func mergeEllipses(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.Trim(c, ".") == "" && len(out) > 0 {
			out[len(out)-1] += c
			continue
		}
		out = append(out, c)
	}
	return out
}

type Config struct {
	// EncourageEvery is the segment length of long listens.
	EncourageEvery time.Duration
	// LLMTimeout bounds one follow-up decision.
	LLMTimeout time.Duration
	// MaxHistory caps the remembered exchanges fed back to the LLM.
	MaxHistory int
}

// Session is the live exercise IO for one device. It is used by one session
// at a time; ResetHistory starts a new conversation.
type Session struct {
	cfg      Config
	tts      TTS
	player   Player
	recorder Recorder
	stt      Transcriber
	llm      LLM
	log      *zap.Logger

	mu sync.Mutex
	// conversation history: alternating [USER]/[ASSISTANT] turns
	history []convTurn
}

type convTurn struct {
	Role string // "USER" or "ASSISTANT"
	Text string
}

// NewSession wires the collaborators. llm may be nil; follow-ups then use
// canned replies.
func NewSession(cfg Config, t TTS, p Player, r Recorder, stt Transcriber, llm LLM, log *zap.Logger) *Session {
	if cfg.EncourageEvery <= 0 {
		cfg.EncourageEvery = 20 * time.Second
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 20 * time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 12
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{cfg: cfg, tts: t, player: p, recorder: r, stt: stt, llm: llm, log: log.Named("agent")}
}

var _ exercise.IO = (*Session)(nil)

// ResetHistory forgets the conversation so far.
func (s *Session) ResetHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

func (s *Session) Speak(ctx context.Context, text string) error {
	chunks := mergeEllipses(chunkReply(text))
	for _, chunk := range chunks {
		pcm, err := s.tts.Synthesize(ctx, chunk)
		if err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		if err := s.player.Play(ctx, pcm, tts.SampleRate); err != nil {
			return fmt.Errorf("speak: %w", err)
		}
	}
	if len(chunks) > 0 {
		s.log.Info("said", zap.String("text", strings.TrimSpace(text)))
	}
	return nil
}

// transcribe skips the STT call when the detector heard nothing.
func (s *Session) transcribe(ctx context.Context, rec voice.Recording) (string, error) {
	if !rec.Voiced || len(rec.PCM) == 0 {
		return "", nil
	}
	text, err := s.stt.Transcribe(ctx, rec.PCM)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	text = strings.TrimSpace(text)
	s.log.Info("heard", zap.String("text", text), zap.Float64("latency_ms", rec.LatencyMs()))
	return text, nil
}

func (s *Session) Listen(ctx context.Context) (exercise.ListenResult, error) {
	rec, err := s.recorder.Utterance(ctx)
	if err != nil {
		return exercise.ListenResult{}, fmt.Errorf("listen: %w", err)
	}
	text, err := s.transcribe(ctx, rec)
	if err != nil {
		return exercise.ListenResult{}, err
	}
	return exercise.ListenResult{Transcript: text, LatencyMs: latency(text, rec)}, nil
}

func (s *Session) ListenBrief(ctx context.Context, window time.Duration) (exercise.BriefResult, error) {
	rec, err := s.recorder.Window(ctx, window)
	if err != nil {
		return exercise.BriefResult{}, fmt.Errorf("listen brief: %w", err)
	}
	text, err := s.transcribe(ctx, rec)
	if err != nil {
		return exercise.BriefResult{}, err
	}
	return exercise.BriefResult{Transcript: text, LatencyMs: latency(text, rec), HasResponse: text != ""}, nil
}

// ListenForDuration records a long answer in segments and speaks the
// encourager's line between them.
func (s *Session) ListenForDuration(ctx context.Context, d time.Duration, encourage exercise.Encourager) (exercise.ListenResult, error) {
	var between func(int)
	if encourage != nil {
		between = func(i int) {
			line := encourage(i)
			if line == "" {
				return
			}
			if err := s.Speak(ctx, line); err != nil {
				s.log.Warn("encouragement failed", zap.Error(err))
			}
		}
	}
	rec, err := s.recorder.Span(ctx, d, s.cfg.EncourageEvery, between)
	if err != nil {
		return exercise.ListenResult{}, fmt.Errorf("listen for duration: %w", err)
	}
	if rec.Extended {
		s.log.Debug("long listen extended", zap.Duration("recorded", rec.Duration))
	}
	text, err := s.transcribe(ctx, rec)
	if err != nil {
		return exercise.ListenResult{}, err
	}
	return exercise.ListenResult{Transcript: text, LatencyMs: latency(text, rec)}, nil
}

func latency(text string, rec voice.Recording) float64 {
	if text == "" {
		return 0
	}
	return rec.LatencyMs()
}

const systemPrompt = `You are a warm, patient cognitive coach talking with an older adult by voice.
Keep every reply to one or two short sentences. Never mention scores, tests or errors.
Reply ONLY with JSON: {"text": "<what to say next>", "follow_up": <true to ask one more question, false to wrap up>}.`

var silentReplies = []string{
	"That's alright, there's no rush.",
	"No problem at all, let's keep going.",
}

// GenerateResponse asks the LLM what to say after the participant's answer.
// An empty message gets a canned reply without an LLM call; LLM failures
// degrade to a polite closing line.
func (s *Session) GenerateResponse(ctx context.Context, userMessage string, a content.Activity, turn int) (exercise.Decision, error) {
	msg := strings.TrimSpace(userMessage)
	if msg == "" {
		return exercise.Decision{Text: silentReplies[turn%len(silentReplies)], FollowUp: false}, nil
	}
	if s.llm == nil {
		return fallbackDecision(), nil
	}
	maxTurns := a.Int("max_turns", 3)
	system := fmt.Sprintf("%s\nActivity: %s (%s). This is turn %d of at most %d.", systemPrompt, a.ID, a.Domain, turn, maxTurns)
	if turn >= maxTurns {
		system += " This is the last turn: set follow_up to false and close the topic kindly."
	}

	convo := s.buildConversationPrompt(msg)
	lctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	reply, err := s.llm.Generate(lctx, system, convo)
	cancel()
	if err != nil {
		s.log.Warn("llm unavailable, using fallback reply", zap.Error(err))
		return fallbackDecision(), nil
	}
	dec := parseDecision(reply)
	if turn >= maxTurns {
		dec.FollowUp = false
	}
	if dec.Text == "" {
		dec = fallbackDecision()
	}
	s.appendExchange(msg, dec.Text)
	return dec, nil
}

func fallbackDecision() exercise.Decision {
	return exercise.Decision{Text: "Thank you for sharing that with me.", FollowUp: false}
}

// parseDecision reads the JSON decision, tolerating code fences and chatter
// around it. Anything else is taken as plain text to speak; a trailing
// question mark then means a follow-up.
func parseDecision(reply string) exercise.Decision {
	reply = strings.TrimSpace(reply)
	if i, j := strings.Index(reply, "{"), strings.LastIndex(reply, "}"); i >= 0 && j > i {
		var d exercise.Decision
		if err := json.Unmarshal([]byte(reply[i:j+1]), &d); err == nil && strings.TrimSpace(d.Text) != "" {
			d.Text = strings.TrimSpace(d.Text)
			return d
		}
	}
	reply = strings.Trim(reply, "`\" \n")
	return exercise.Decision{Text: reply, FollowUp: strings.HasSuffix(reply, "?")}
}

// buildConversationPrompt formats previous turns plus the latest user text with [USER]/[ASSISTANT] labels.
func (s *Session) buildConversationPrompt(latestUser string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, t := range s.history {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(t.Role))
		b.WriteString("] ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString("[USER] ")
	b.WriteString(latestUser)
	return b.String()
}

func (s *Session) appendExchange(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, convTurn{Role: "USER", Text: user}, convTurn{Role: "ASSISTANT", Text: assistant})
	if over := len(s.history) - 2*s.cfg.MaxHistory; over > 0 {
		s.history = s.history[over:]
	}
}
