// Package backup writes versioned JSON snapshots to pluggable storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const FormatVersion = 1

var ErrNoSnapshot = errors.New("no snapshot found")

type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// envelope wraps every snapshot so readers can reject formats they do not understand.
type envelope struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

// Service names snapshots "<prefix>-<utc timestamp>.json"; the fixed-width timestamp
// makes lexical order chronological.
type Service struct {
	storage Storage
	prefix  string
	now     func() time.Time
}

func NewService(storage Storage, prefix string) *Service {
	if prefix == "" {
		prefix = "snapshot"
	}
	return &Service{storage: storage, prefix: prefix, now: time.Now}
}

// Write serializes payload and stores it under a fresh name.
func (s *Service) Write(ctx context.Context, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	createdAt := s.now().UTC()
	data, err := json.Marshal(envelope{Version: FormatVersion, CreatedAt: createdAt, Payload: raw})
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", s.prefix, createdAt.Format("20060102-150405.000"))
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return name, nil
}

// Read decodes the named snapshot's payload into out and returns when it was taken.
func (s *Service) Read(ctx context.Context, name string, out interface{}) (time.Time, error) {
	rc, err := s.storage.Load(ctx, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	defer rc.Close()

	var env envelope
	if err := json.NewDecoder(rc).Decode(&env); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode snapshot %s: %w", name, err)
	}
	if env.Version != FormatVersion {
		return time.Time{}, fmt.Errorf("snapshot %s has unsupported version %d", name, env.Version)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode snapshot %s payload: %w", name, err)
	}
	return env.CreatedAt, nil
}

// List returns snapshot names, oldest first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.storage.List(ctx, s.prefix+"-")
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, ".json") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) Latest(ctx context.Context) (string, error) {
	names, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoSnapshot
	}
	return names[len(names)-1], nil
}

// Prune deletes all but the newest keep snapshots.
func (s *Service) Prune(ctx context.Context, keep int) (int, error) {
	names, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	if len(names) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, name := range names[:len(names)-keep] {
		if err := s.storage.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("failed to delete snapshot %s: %w", name, err)
		}
		deleted++
	}
	return deleted, nil
}
