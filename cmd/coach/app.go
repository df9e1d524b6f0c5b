package main

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/agent"
	"github.com/CoCoMind/coco-device-sub000/internal/archive"
	"github.com/CoCoMind/coco-device-sub000/internal/audio"
	"github.com/CoCoMind/coco-device-sub000/internal/backend"
	"github.com/CoCoMind/coco-device-sub000/internal/config"
	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/exercise"
	"github.com/CoCoMind/coco-device-sub000/internal/llm"
	"github.com/CoCoMind/coco-device-sub000/internal/planner"
	"github.com/CoCoMind/coco-device-sub000/internal/profile"
	"github.com/CoCoMind/coco-device-sub000/internal/retry"
	"github.com/CoCoMind/coco-device-sub000/internal/session"
	"github.com/CoCoMind/coco-device-sub000/internal/transcript"
	"github.com/CoCoMind/coco-device-sub000/internal/tts"
	"github.com/CoCoMind/coco-device-sub000/internal/voice"
)

// app is the fully wired device.
type app struct {
	runner  *session.Runner
	closers []func() error
	log     *zap.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
}

func newPlanner(cfg config.Config, log *zap.Logger, seed int64) (*planner.Planner, error) {
	lib, err := content.Load(cfg.Content.LibraryPath)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return planner.New(lib, rand.New(rand.NewSource(seed)), log), nil
}

func newReporter(cfg config.Config, log *zap.Logger) *backend.Client {
	policy := retry.Policy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay}
	return backend.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Device.DeviceID, cfg.Backend.Timeout, policy, log)
}

func newApp(cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	policy := retry.Policy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay}

	p, err := newPlanner(cfg, log, 0)
	if err != nil {
		return nil, err
	}

	profiles, err := profile.Open(cfg.Profile.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, profiles.Close)

	reporter := newReporter(cfg, log)

	var archiver session.Archiver
	if cfg.Archive.Enabled() {
		store, err := archive.NewSupabase(archive.Config{
			URL:            cfg.Archive.SupabaseURL,
			ServiceRoleKey: cfg.Archive.ServiceKey,
			Bucket:         cfg.Archive.Bucket,
			Prefix:         cfg.Archive.Prefix,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		archiver = store
	}

	src, err := audio.NewCommandSource(cfg.Audio.CaptureCommand, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, src.Close)
	player, err := audio.NewCommandPlayer(cfg.Audio.PlaybackCommand)
	if err != nil {
		return nil, err
	}

	vcfg := voice.DefaultConfig()
	vcfg.SpeechRMS = cfg.Audio.SpeechRMS
	vcfg.StartTimeout = cfg.Session.StartTimeout
	vcfg.EndSilence = cfg.Session.EndSilence
	recorder := voice.NewRecorder(src, vcfg, log)

	stt := transcript.NewAssemblyAI(cfg.STT.AssemblyAIKey,
		transcript.WithURL(cfg.STT.URL),
		transcript.WithRetry(policy),
		transcript.WithLogger(log),
	)

	synth, err := newSynthesizer(cfg, policy, log)
	if err != nil {
		return nil, err
	}

	var model agent.LLM
	if cfg.LLM.CerebrasKey != "" {
		c := llm.NewCerebrasClient(cfg.LLM.CerebrasKey, cfg.LLM.Model, policy)
		c.URL = cfg.LLM.URL
		model = c
	}

	live := agent.NewSession(agent.Config{
		EncourageEvery: cfg.Session.EncourageEvery,
		LLMTimeout:     cfg.LLM.Timeout,
	}, synth, player, recorder, stt, model, log)

	runner, err := session.NewRunner(session.Config{
		DeviceID:          cfg.Device.DeviceID,
		ParticipantID:     cfg.Device.ParticipantID,
		ReadinessAttempts: cfg.Session.ReadinessAttempts,
		ActivityTimeout:   cfg.Session.ActivityTimeout,
		ReportTimeout:     cfg.Session.ReportTimeout,
	}, session.Deps{
		Planner:  p,
		Registry: exercise.NewRegistry(),
		Voice:    live,
		Reporter: reporter,
		Profiles: profiles,
		Archive:  archiver,
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	a.runner = runner
	ok = true
	return a, nil
}

// newSynthesizer picks the configured provider behind the phrase cache.
func newSynthesizer(cfg config.Config, policy retry.Policy, log *zap.Logger) (tts.Synthesizer, error) {
	var next tts.Synthesizer
	switch cfg.TTS.Provider {
	case "deepgram":
		next = tts.NewDeepgramClient(cfg.TTS.DeepgramKey, cfg.TTS.DeepgramModel, policy, log)
	case "elevenlabs":
		next = tts.NewElevenLabsClient(cfg.TTS.ElevenLabsKey, cfg.TTS.ElevenLabsVoiceID, policy)
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTS.Provider)
	}
	return tts.NewCached(next, cfg.TTS.CacheTTL, log), nil
}
