package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/dpc"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
)

// Syncer runs a function periodically until stopped.
type Syncer struct {
	interval time.Duration
	run      func(context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncer returns a stopped syncer calling run every interval.
func NewSyncer(interval time.Duration, run func(context.Context)) *Syncer {
	return &Syncer{interval: interval, run: run}
}

// Running reports whether the loop is active.
func (y *Syncer) Running() bool {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.done != nil
}

// Start launches the loop. Only one loop may run; a second Start fails with
// Busy.
func (y *Syncer) Start(ctx context.Context) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.done != nil {
		return status.NewBusy("sync task already running")
	}
	if y.interval <= 0 {
		return status.NewInvalidArg("invalid sync interval %s", y.interval)
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	y.cancel = cancel
	y.done = done
	go y.loop(ctx, done)
	return nil
}

func (y *Syncer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(y.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			y.run(ctx)
		}
	}
}

// Stop cancels the loop and blocks until it has exited. Stopping a stopped
// syncer is a no-op.
func (y *Syncer) Stop() {
	y.mu.Lock()
	cancel, done := y.cancel, y.done
	y.cancel, y.done = nil, nil
	y.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SyncDictionaries writes every dirty dictionary back to its .dpc file. A
// dictionary that fails stays dirty for the next pass.
func (s *Store) SyncDictionaries(ctx context.Context) error {
	s.mu.Lock()
	list := append([]*Dictionary(nil), s.dicts...)
	s.mu.Unlock()

	var errs []error
	for _, d := range list {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.sync(); err != nil {
			logging.Warn("Failed to sync dictionary",
				zap.Int("serial", d.serial),
				zap.String("file", d.file),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sync merges dirty matches into the .dpc file.
func (d *Dictionary) sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.dirty || d.removed {
		return nil
	}

	doc, err := dpc.ParseFile(d.file)
	if err != nil {
		return err
	}
	merged, err := d.merge(doc)
	if err != nil {
		return err
	}
	if err := doc.WriteFile(d.file); err != nil {
		return err
	}

	for _, m := range merged {
		d.settle(m)
	}
	d.dirty = false
	logging.Debug("Dictionary synced", zap.Int("serial", d.serial), zap.Int("keys", len(merged)))
	return nil
}

// merge applies dirty matches to doc and returns them. In-memory state is
// not touched, so a failed write leaves everything dirty. d.mu must be held.
func (d *Dictionary) merge(doc *dpc.Document) ([]*Match, error) {
	var merged []*Match
	for _, key := range d.keys() {
		m := d.matches[key]
		if !m.Has(MatchDirty) {
			continue
		}
		if err := mergeMatch(doc, m); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		merged = append(merged, m)
	}
	return merged, nil
}

func mergeMatch(doc *dpc.Document, m *Match) error {
	block := dpc.ConfigKey(m.Key)

	if m.Has(MatchDelete) {
		if err := doc.Remove(block); err != nil && !errors.Is(err, dpc.ErrNotFound) {
			return err
		}
		return nil
	}
	if m.Value == nil {
		return nil
	}
	if !doc.Exists(block) {
		if err := doc.AddBlock(block); err != nil {
			return err
		}
		if err := doc.Add(dpc.ConfigKey(m.Key, "value"), *m.Value); err != nil {
			return err
		}
		return doc.Add(dpc.ConfigKey(m.Key, "remove"), m.Has(MatchRemove))
	}
	return doc.Set(dpc.ConfigKey(m.Key, "value"), *m.Value)
}

// settle clears a match after its state reached the file. Deleted matches
// leave the set unless they still carry a log key. d.mu must be held.
func (d *Dictionary) settle(m *Match) {
	if m.Has(MatchDelete) {
		if m.Has(MatchLog) {
			m.Flags &^= MatchConfig | MatchUpdate | MatchRemove | MatchDelete | MatchDirty
			m.Value = nil
			return
		}
		delete(d.matches, m.Key)
		return
	}
	m.Flags &^= MatchDirty
	m.Value = nil
}
