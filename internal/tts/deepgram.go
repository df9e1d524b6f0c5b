package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/retry"
)

type DeepgramClient struct {
	apiKey   string
	model    string
	encoding string
	// idleWindow ends a line once audio stopped arriving for this long.
	idleWindow time.Duration
	maxLine    time.Duration
	policy     retry.Policy
	log        *zap.Logger
}

func NewDeepgramClient(apiKey, model string, policy retry.Policy, log *zap.Logger) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DeepgramClient{
		apiKey:     apiKey,
		model:      model,
		encoding:   "linear16",
		idleWindow: 400 * time.Millisecond,
		maxLine:    12 * time.Second,
		policy:     policy,
		log:        log.Named("deepgram"),
	}
}

func (d *DeepgramClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, retry.Permanent(errors.New("deepgram: API key missing"))
	}
	if text == "" {
		return nil, nil
	}
	return retry.Value(ctx, d.policy, func(ctx context.Context) ([]byte, error) {
		return d.line(ctx, text)
	})
}

// line renders one text over a fresh websocket session.
func (d *DeepgramClient) line(ctx context.Context, text string) ([]byte, error) {
	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: SampleRate,
	}

	var (
		mu          sync.Mutex
		pcm         []byte
		lastRecv    atomic.Int64
		serviceErrs atomic.Value
	)
	cb := &speakCallback{
		onBinary: func(data []byte) error {
			if len(data) == 0 {
				return nil
			}
			mu.Lock()
			pcm = append(pcm, data...)
			mu.Unlock()
			lastRecv.Store(time.Now().UnixNano())
			return nil
		},
		onError: func(e *msginterfaces.ErrorResponse) {
			if e != nil {
				serviceErrs.Store(fmt.Sprintf("%+v", *e))
			}
		},
	}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, errors.New("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.Warn("deepgram flush error", zap.Error(err))
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(d.maxLine)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if msg, ok := serviceErrs.Load().(string); ok {
			return nil, retry.Permanent(fmt.Errorf("deepgram: %s", msg))
		}
		if last := lastRecv.Load(); last != 0 && time.Since(time.Unix(0, last)) > d.idleWindow {
			break
		}
		if time.Now().After(deadline) {
			break
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(pcm) == 0 {
		return nil, errors.New("deepgram: no audio received")
	}
	return pcm, nil
}

type speakCallback struct {
	onBinary func([]byte) error
	onError  func(*msginterfaces.ErrorResponse)
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	if s.onError != nil {
		s.onError(e)
	}
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
