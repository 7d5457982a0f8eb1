// Package gdrive mirrors finished recordings into a Google Drive folder
// using a service account.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"hark/internal/storage"
)

// RecordingSource lists saved recordings; the sqlite store implements
// it.
type RecordingSource interface {
	ListRecordings(limit int) ([]storage.Recording, error)
}

// Syncer uploads saved recordings that have not been mirrored yet.
// Uploads are serialized; a slow upload delays the next sweep rather
// than stacking concurrent transfers.
type Syncer struct {
	service  *drive.Service
	folderID string
	source   RecordingSource
	log      zerolog.Logger

	mu       sync.Mutex
	uploaded map[string]string
}

func NewSyncer(ctx context.Context, credPath, folderID string, source RecordingSource, logger zerolog.Logger) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		service:  svc,
		folderID: folderID,
		source:   source,
		log:      logger,
		uploaded: make(map[string]string),
	}, nil
}

// Run sweeps for unsynced recordings on a ticker until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep uploads every recording not yet mirrored. Failures are logged
// and retried on the next sweep.
func (s *Syncer) Sweep() {
	recordings, err := s.source.ListRecordings(100)
	if err != nil {
		s.log.Warn().
			Str("component", "gdrive").
			Err(err).
			Msg("list recordings")
		return
	}

	for _, rec := range recordings {
		s.mu.Lock()
		_, done := s.uploaded[rec.SessionID]
		s.mu.Unlock()
		if done {
			continue
		}
		if err := s.upload(rec); err != nil {
			s.log.Warn().
				Str("component", "gdrive").
				Str("session_id", rec.SessionID).
				Err(err).
				Msg("upload recording")
		}
	}
}

func (s *Syncer) upload(rec storage.Recording) error {
	f, err := os.Open(rec.FilePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", rec.FilePath, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := s.service.Files.Create(&drive.File{
		Name:     filepath.Base(rec.FilePath),
		MimeType: "audio/wav",
		Parents:  []string{s.folderID},
	}).Media(f).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.mu.Lock()
	s.uploaded[rec.SessionID] = doc.Id
	s.mu.Unlock()

	s.log.Info().
		Str("component", "gdrive").
		Str("session_id", rec.SessionID).
		Str("drive_id", doc.Id).
		Msg("recording uploaded")
	return nil
}
