package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the device configuration.
type Config struct {
	App     AppConfig
	Device  DeviceConfig
	Backend BackendConfig
	Retry   RetryConfig
	Content ContentConfig
	Profile ProfileConfig
	STT     STTConfig
	LLM     LLMConfig
	TTS     TTSConfig
	Audio   AudioConfig
	Session SessionConfig
	Archive ArchiveConfig
}

type AppConfig struct {
	Env         string
	LogPath     string
	LogMaxMB    int
	Debug       bool
	HTTPAddress string

	// ControlToken protects POST /sessions when set.
	ControlToken string
}

// Production reports whether logs should be machine-readable only.
func (a AppConfig) Production() bool { return a.Env == "production" }

type DeviceConfig struct {
	DeviceID      string
	ParticipantID string
}

type BackendConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

type ContentConfig struct {
	// LibraryPath empty means the built-in library.
	LibraryPath string
}

type ProfileConfig struct {
	DBPath string
}

type STTConfig struct {
	AssemblyAIKey string
	URL           string
}

type LLMConfig struct {
	CerebrasKey string
	Model       string
	URL         string
	Timeout     time.Duration
}

type TTSConfig struct {
	Provider          string // deepgram | elevenlabs
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	CacheTTL          time.Duration
}

type AudioConfig struct {
	CaptureCommand  string
	PlaybackCommand string
	SpeechRMS       float64
}

type SessionConfig struct {
	ReadinessAttempts int
	ActivityTimeout   time.Duration
	ReportTimeout     time.Duration
	StartTimeout      time.Duration
	EndSilence        time.Duration
	EncourageEvery    time.Duration
}

type ArchiveConfig struct {
	SupabaseURL string
	ServiceKey  string
	Bucket      string
	Prefix      string
}

// Enabled reports whether summaries should be archived.
func (a ArchiveConfig) Enabled() bool { return a.SupabaseURL != "" && a.ServiceKey != "" }

// Load reads .env (if present) and the environment, applying defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: reading .env: %v", err)
	}

	return Config{
		App: AppConfig{
			Env:          getEnv("APP_ENV", "development"),
			LogPath:      getEnv("LOG_PATH", ""),
			LogMaxMB:     getEnvAsInt("LOG_MAX_MB", 10),
			Debug:        getEnvAsBool("DEBUG", false),
			HTTPAddress:  getEnv("HTTP_ADDRESS", "127.0.0.1:8080"),
			ControlToken: getEnv("CONTROL_TOKEN", ""),
		},
		Device: DeviceConfig{
			DeviceID:      getEnv("DEVICE_ID", hostname()),
			ParticipantID: getEnv("PARTICIPANT_ID", ""),
		},
		Backend: BackendConfig{
			URL:     strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
			Token:   getEnv("INGEST_SERVICE_TOKEN", ""),
			Timeout: getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Retry: RetryConfig{
			Attempts: getEnvAsInt("RETRY_ATTEMPTS", 3),
			Delay:    getEnvAsDuration("RETRY_DELAY", 500*time.Millisecond),
		},
		Content: ContentConfig{
			LibraryPath: getEnv("CONTENT_LIBRARY", ""),
		},
		Profile: ProfileConfig{
			DBPath: getEnv("PROFILE_DB", "coach.db"),
		},
		STT: STTConfig{
			AssemblyAIKey: getEnv("ASSEMBLYAI_API_KEY", ""),
			URL:           getEnv("ASSEMBLYAI_URL", "wss://streaming.assemblyai.com/v3/ws"),
		},
		LLM: LLMConfig{
			CerebrasKey: getEnv("CEREBRAS_API_KEY", ""),
			Model:       getEnv("CEREBRAS_MODEL_ID", "gpt-oss-120b"),
			URL:         getEnv("CEREBRAS_URL", "https://api.cerebras.ai/v1/chat/completions"),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),
		},
		TTS: TTSConfig{
			Provider:          strings.ToLower(getEnv("TTS_PROVIDER", "deepgram")),
			DeepgramKey:       getEnv("DEEPGRAM_API_KEY", ""),
			DeepgramModel:     getEnv("DEEPGRAM_TTS_MODEL", "aura-2-thalia-en"),
			ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
			ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),
			CacheTTL:          getEnvAsDuration("TTS_CACHE_TTL", 6*time.Hour),
		},
		Audio: AudioConfig{
			CaptureCommand:  getEnv("AUDIO_CAPTURE_CMD", "arecord -q -t raw -f S16_LE -r 16000 -c 1"),
			PlaybackCommand: getEnv("AUDIO_PLAYBACK_CMD", "aplay -q -t raw -f S16_LE -r {rate} -c 1"),
			SpeechRMS:       getEnvAsFloat("VAD_SPEECH_RMS", 300),
		},
		Session: SessionConfig{
			ReadinessAttempts: getEnvAsInt("READINESS_ATTEMPTS", 3),
			ActivityTimeout:   getEnvAsDuration("ACTIVITY_TIMEOUT", 10*time.Minute),
			ReportTimeout:     getEnvAsDuration("REPORT_TIMEOUT", 15*time.Second),
			StartTimeout:      getEnvAsDuration("LISTEN_START_TIMEOUT", 8*time.Second),
			EndSilence:        getEnvAsDuration("LISTEN_END_SILENCE", 1200*time.Millisecond),
			EncourageEvery:    getEnvAsDuration("ENCOURAGE_EVERY", 20*time.Second),
		},
		Archive: ArchiveConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			ServiceKey:  getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Bucket:      getEnv("SUPABASE_BUCKET", "session-summaries"),
			Prefix:      getEnv("SUPABASE_PREFIX", ""),
		},
	}
}

// Warnings lists missing settings that will degrade a session. The device
// still starts; the caller logs these.
func (c Config) Warnings() []string {
	var w []string
	if c.Backend.URL == "" {
		w = append(w, "BACKEND_URL not set - session summaries will not be delivered")
	} else if c.Backend.Token == "" {
		w = append(w, "INGEST_SERVICE_TOKEN not set - backend will likely reject summaries")
	}
	if c.STT.AssemblyAIKey == "" {
		w = append(w, "ASSEMBLYAI_API_KEY not set - transcription will not work")
	}
	if c.LLM.CerebrasKey == "" {
		w = append(w, "CEREBRAS_API_KEY not set - conversation follow-ups use canned replies")
	}
	switch c.TTS.Provider {
	case "elevenlabs":
		if c.TTS.ElevenLabsKey == "" {
			w = append(w, "ELEVENLABS_API_KEY not set - TTS will not work")
		}
		if c.TTS.ElevenLabsVoiceID == "" {
			w = append(w, "ELEVENLABS_VOICE_ID not set - TTS will not work")
		}
	case "deepgram":
		if c.TTS.DeepgramKey == "" {
			w = append(w, "DEEPGRAM_API_KEY not set - TTS will not work")
		}
	default:
		w = append(w, "TTS_PROVIDER "+strconv.Quote(c.TTS.Provider)+" unknown - expected deepgram or elevenlabs")
	}
	if c.Device.ParticipantID == "" {
		w = append(w, "PARTICIPANT_ID not set - sessions will not be personalised")
	}
	return w
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("15").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown-device"
	}
	return h
}
