package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/retry"
)

// DefaultURL is the AssemblyAI v3 streaming endpoint.
const DefaultURL = "wss://streaming.assemblyai.com/v3/ws"

// chunkDuration is how much audio goes into one binary frame. AssemblyAI
// accepts 50ms..1000ms per message.
const chunkDuration = 100 * time.Millisecond

// AssemblyAI transcribes one recorded utterance per streaming session: the
// PCM is pushed in chunks, the session is terminated, and every turn the
// service reports is joined in order.
type AssemblyAI struct {
	apiKey     string
	url        string
	sampleRate int
	dialer     *websocket.Dialer
	policy     retry.Policy
	log        *zap.Logger
}

// BeginMessage opens the session.
type BeginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

// TurnMessage carries the running transcript of one turn.
type TurnMessage struct {
	Type          string `json:"type"`
	TurnOrder     int    `json:"turn_order"`
	EndOfTurn     bool   `json:"end_of_turn"`
	Transcript    string `json:"transcript"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type TerminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type Option func(*AssemblyAI)

// WithURL points the client at another endpoint.
func WithURL(u string) Option { return func(a *AssemblyAI) { a.url = u } }

func WithRetry(p retry.Policy) Option { return func(a *AssemblyAI) { a.policy = p } }

func WithLogger(l *zap.Logger) Option { return func(a *AssemblyAI) { a.log = l.Named("stt") } }

// NewAssemblyAI builds a transcriber for 16kHz PCM16LE audio.
func NewAssemblyAI(apiKey string, opts ...Option) *AssemblyAI {
	a := &AssemblyAI{
		apiKey:     apiKey,
		url:        DefaultURL,
		sampleRate: 16000,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		policy:     retry.Default(),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Transcribe returns the text spoken in pcm, "" when nothing intelligible
// was heard. Connection failures and server errors are retried.
func (a *AssemblyAI) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if a.apiKey == "" {
		return "", errors.New("AssemblyAI API key is empty")
	}
	if len(pcm) == 0 {
		return "", nil
	}
	return retry.Value(ctx, a.policy, func(ctx context.Context) (string, error) {
		return a.session(ctx, pcm)
	})
}

func (a *AssemblyAI) endpoint() (string, error) {
	u, err := url.Parse(a.url)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("assemblyai url: %w", err))
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(a.sampleRate))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *AssemblyAI) session(ctx context.Context, pcm []byte) (string, error) {
	wsURL, err := a.endpoint()
	if err != nil {
		return "", err
	}
	headers := http.Header{"Authorization": {a.apiKey}}
	conn, resp, err := a.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			se := &retry.StatusError{Service: "assemblyai", StatusCode: resp.StatusCode}
			return "", fmt.Errorf("failed to connect to AssemblyAI: %w", se)
		}
		return "", fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	// closing the conn is what stops the reader
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	turns := newTurnSet()
	readErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- a.readLoop(conn, turns)
	}()

	if err := a.sendAudio(conn, pcm); err != nil {
		_ = conn.Close()
		wg.Wait()
		return "", err
	}

	err = <-readErr
	wg.Wait()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	text := turns.text()
	a.log.Debug("transcribed", zap.Int("bytes", len(pcm)), zap.String("text", text))
	return text, nil
}

func (a *AssemblyAI) sendAudio(conn *websocket.Conn, pcm []byte) error {
	chunk := a.sampleRate * 2 * int(chunkDuration/time.Millisecond) / 1000
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return fmt.Errorf("assemblyai send audio: %w", err)
		}
	}
	if err := conn.WriteJSON(map[string]string{"type": "Terminate"}); err != nil {
		return fmt.Errorf("assemblyai terminate: %w", err)
	}
	return nil
}

// readLoop consumes messages until the service acknowledges termination.
func (a *AssemblyAI) readLoop(conn *websocket.Conn, turns *turnSet) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("assemblyai read: %w", err)
		}
		done, err := a.processMessage(message, turns)
		if err != nil || done {
			return err
		}
	}
}

func (a *AssemblyAI) processMessage(message []byte, turns *turnSet) (bool, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		a.log.Warn("unreadable assemblyai message", zap.Error(err))
		return false, nil
	}
	switch base.Type {
	case "Begin":
		var msg BeginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			a.log.Debug("assemblyai session began", zap.String("id", msg.ID))
		}
	case "Turn":
		var msg TurnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return false, nil
		}
		turns.update(msg)
	case "Termination":
		var msg TerminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			a.log.Debug("assemblyai session terminated", zap.Float64("audio_sec", msg.AudioDurationSeconds))
		}
		return true, nil
	case "Error":
		var msg ErrorMessage
		_ = json.Unmarshal(message, &msg)
		return true, retry.Permanent(fmt.Errorf("assemblyai error: %s", msg.Error))
	default:
		a.log.Debug("unknown assemblyai message", zap.String("type", base.Type))
	}
	return false, nil
}

// turnSet keeps the best transcript per turn: formatted end-of-turn text
// wins over partials.
type turnSet struct {
	mu    sync.Mutex
	byIdx map[int]TurnMessage
}

func newTurnSet() *turnSet { return &turnSet{byIdx: map[int]TurnMessage{}} }

func (t *turnSet) update(m TurnMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.byIdx[m.TurnOrder]
	if ok && prev.EndOfTurn && prev.TurnFormatted && !(m.EndOfTurn && m.TurnFormatted) {
		return
	}
	if strings.TrimSpace(m.Transcript) == "" && ok {
		return
	}
	t.byIdx[m.TurnOrder] = m
}

func (t *turnSet) text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	order := make([]int, 0, len(t.byIdx))
	for k := range t.byIdx {
		order = append(order, k)
	}
	sort.Ints(order)
	parts := make([]string, 0, len(order))
	for _, k := range order {
		if s := strings.TrimSpace(t.byIdx[k].Transcript); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
