// Package archive keeps an audit copy of every delivered session summary in
// Supabase Storage, one JSON object per session.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/session"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
	// Prefix is prepended to every object key, e.g. "summaries".
	Prefix string
}

// Uploader stores one object.
type Uploader interface {
	Upload(key, contentType string, data []byte) error
}

// Store writes summaries through an Uploader.
type Store struct {
	up     Uploader
	prefix string
	log    *zap.Logger
}

func New(up Uploader, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{up: up, prefix: prefix, log: log.Named("archive")}
}

// NewSupabase builds a Store backed by a Supabase bucket.
func NewSupabase(cfg Config, log *zap.Logger) (*Store, error) {
	up, err := NewSupabaseUploader(cfg)
	if err != nil {
		return nil, err
	}
	return New(up, cfg.Prefix, log), nil
}

// Key is the object key of a summary: <prefix>/<device>/<date>/<session>.json.
func (s *Store) Key(p *session.SummaryPayload) string {
	device := p.DeviceID
	if device == "" {
		device = "unknown-device"
	}
	return path.Join(s.prefix, device, p.StartedAt.UTC().Format("2006-01-02"), p.SessionID+".json")
}

// Archive uploads p. The upload call itself is not cancellable, so a done
// ctx only stops the wait.
func (s *Store) Archive(ctx context.Context, p *session.SummaryPayload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode: %w", err)
	}
	key := s.Key(p)
	done := make(chan error, 1)
	go func() { done <- s.up.Upload(key, "application/json", data) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
		s.log.Debug("summary archived", zap.String("key", key))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("archive %s: %w", key, ctx.Err())
	}
}

// SupabaseUploader uploads into one Supabase Storage bucket.
type SupabaseUploader struct {
	client *supabase.Client
	bucket string
}

func NewSupabaseUploader(cfg Config) (*SupabaseUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("archive: supabase client: %w", err)
	}
	return &SupabaseUploader{client: client, bucket: cfg.Bucket}, nil
}

func (u *SupabaseUploader) Upload(key, contentType string, data []byte) error {
	upsert := true
	_, err := u.client.Storage.UploadFile(u.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}
