package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/device"
	"github.com/muurk/dictserver/internal/logging"
)

// now is replaced in tests.
var now = time.Now

// OnDictionaryChange applies one device originated change.
func (s *Store) OnDictionaryChange(ctx context.Context, ev device.Event) {
	logging.LogDictionaryChange(ev.Serial, ev.Action.String(), ev.Key, ev.Value)

	d, err := s.Find(ev.Serial)
	if err != nil {
		logging.Debug("Change for unknown dictionary", zap.Int("serial", ev.Serial))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return
	}

	m := d.matches[ev.Key]
	if m == nil && !(ev.Action == device.ActionAdd && d.addConfig) {
		return
	}

	if m != nil && m.Has(MatchLog) && ev.Action != device.ActionDelete {
		d.logChange(ctx, m, ev.Key, ev.Value, now())
	}
	if m != nil && !m.Has(MatchConfig) {
		return
	}

	switch ev.Action {
	case device.ActionAdd:
		if m == nil {
			val := ev.Value
			d.matches[ev.Key] = &Match{
				Key:   ev.Key,
				Value: &val,
				Flags: MatchConfig | MatchUpdate | MatchRemove | MatchDirty,
			}
			d.dirty = true
			return
		}
		fallthrough
	case device.ActionUpdate:
		if !m.Has(MatchUpdate) {
			return
		}
		val := ev.Value
		m.Value = &val
		m.Flags &^= MatchDelete
		m.Flags |= MatchDirty
		d.dirty = true
	case device.ActionDelete:
		if !m.Has(MatchRemove) {
			return
		}
		m.Flags |= MatchDelete | MatchDirty
		d.dirty = true
	default:
		logging.Warn("Unknown dictionary action",
			zap.Int("serial", ev.Serial),
			zap.Int("action", int(ev.Action)),
		)
	}
}

// Consume applies events until the channel closes or ctx is done. Events
// are handled one at a time, so each dictionary sees a single writer.
func (s *Store) Consume(ctx context.Context, events <-chan device.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.OnDictionaryChange(ctx, ev)
		}
	}
}
