// Package tts turns coach lines into 48kHz PCM16LE mono audio.
package tts

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// SampleRate of every Synthesizer's output.
const SampleRate = 48000

// Synthesizer renders text to PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Cached keeps recently rendered lines. Sessions repeat a lot of short
// stimuli ("go", digits, prompts), so hits are common.
type Cached struct {
	next  Synthesizer
	cache *cache.Cache
	log   *zap.Logger
}

func NewCached(next Synthesizer, ttl time.Duration, log *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{next: next, cache: cache.New(ttl, ttl/2), log: log.Named("tts")}
}

func cacheKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func (c *Cached) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := cacheKey(text)
	if key == "" {
		return nil, nil
	}
	if v, ok := c.cache.Get(key); ok {
		return v.([]byte), nil
	}
	pcm, err := c.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(pcm) > 0 {
		c.cache.SetDefault(key, pcm)
	}
	c.log.Debug("synthesized", zap.Int("chars", len(text)), zap.Int("bytes", len(pcm)))
	return pcm, nil
}

// Len is the number of cached lines.
func (c *Cached) Len() int { return c.cache.ItemCount() }
