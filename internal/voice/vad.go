package voice

import "github.com/CoCoMind/coco-device-sub000/internal/audio"

// vad is an energy detector smoothed over the last few frames: a frame is
// speech when at least half of the window was above the threshold.
type vad struct {
	threshold float64
	smoothN   int
	win       []bool
}

func newVAD(threshold float64, smoothN int) *vad {
	if threshold <= 0 {
		threshold = 300
	}
	if smoothN <= 0 {
		smoothN = 4
	}
	return &vad{threshold: threshold, smoothN: smoothN}
}

func (v *vad) isSpeech(f audio.Frame) bool {
	v.win = append(v.win, f.RMS() >= v.threshold)
	if len(v.win) > v.smoothN {
		v.win = v.win[len(v.win)-v.smoothN:]
	}
	n := 0
	for _, x := range v.win {
		if x {
			n++
		}
	}
	return n*2 >= len(v.win)
}

func (v *vad) reset() { v.win = v.win[:0] }

// preRoll keeps the most recent frames so an utterance includes its onset.
type preRoll struct {
	frames []audio.Frame
	size   int
}

func newPreRoll(n int) *preRoll { return &preRoll{size: n} }

func (p *preRoll) push(f audio.Frame) {
	if p.size <= 0 {
		return
	}
	p.frames = append(p.frames, f)
	if len(p.frames) > p.size {
		p.frames = p.frames[len(p.frames)-p.size:]
	}
}

func (p *preRoll) drain() []audio.Frame {
	out := p.frames
	p.frames = nil
	return out
}
