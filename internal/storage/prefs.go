package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Well-known preference keys.
const (
	PrefSlippageBps = "slippage_bps"
	PrefNetworkMode = "network_mode"
)

// ErrPrefNotFound marks a missing preference key.
var ErrPrefNotFound = errors.New("preference not found")

type prefWatchers struct {
	mu   sync.Mutex
	subs map[string][]chan string
}

func newPrefWatchers() *prefWatchers {
	return &prefWatchers{subs: make(map[string][]chan string)}
}

func (w *prefWatchers) notify(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs[key] {
		select {
		case ch <- value:
		default:
			// A slow subscriber misses intermediate values, never blocks
			// the writer.
		}
	}
}

func (w *prefWatchers) add(key string) chan string {
	ch := make(chan string, 1)
	w.mu.Lock()
	w.subs[key] = append(w.subs[key], ch)
	w.mu.Unlock()
	return ch
}

// GetPref returns the stored value for a key.
func (s *Storage) GetPref(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrPrefNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, nil
}

// SetPref stores a value and notifies subscribers.
func (s *Storage) SetPref(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}

	s.prefs.notify(key, value)
	return nil
}

// SubscribePref returns a channel delivering new values for a key. The
// channel drops intermediate values if the subscriber lags.
func (s *Storage) SubscribePref(key string) <-chan string {
	return s.prefs.add(key)
}
