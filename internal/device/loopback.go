package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
)

// Loopback is an in-process Bridge. It keeps every dictionary's key/value
// pairs in memory and reports each mutation as an Event, the way a device
// dictionary reports changes to all attached listeners.
type Loopback struct {
	mu     sync.Mutex
	dicts  map[int]*loopDict
	events chan Event
	closed bool

	// AttachHook, when set, runs before Attach succeeds. Tests use it to
	// simulate devices that never attach.
	AttachHook func(ctx context.Context, serial int) error
}

type loopDict struct {
	label  string
	values map[string]string
}

// NewLoopback returns a loopback bridge whose event channel holds up to
// buffer undelivered events.
func NewLoopback(buffer int) *Loopback {
	return &Loopback{
		dicts:  make(map[int]*loopDict),
		events: make(chan Event, buffer),
	}
}

// AddDictionary implements Bridge.
func (l *Loopback) AddDictionary(serial int, label string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.dicts[serial]; ok {
		d.label = label
		return nil
	}
	l.dicts[serial] = &loopDict{label: label, values: make(map[string]string)}
	return nil
}

// RemoveDictionary implements Bridge.
func (l *Loopback) RemoveDictionary(serial int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.dicts[serial]; !ok {
		return status.NewNotFound("no dictionary %d", serial)
	}
	delete(l.dicts, serial)
	return nil
}

// Attach implements Bridge.
func (l *Loopback) Attach(ctx context.Context, serial int, timeout time.Duration) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if l.AttachHook != nil {
		if err := l.AttachHook(ctx, serial); err != nil {
			return nil, fmt.Errorf("dictionary %d failed to attach: %w", serial, err)
		}
	}
	l.mu.Lock()
	_, ok := l.dicts[serial]
	l.mu.Unlock()
	if !ok {
		return nil, status.NewNotFound("dictionary %d is not registered", serial)
	}
	return &loopSession{l: l, serial: serial}, nil
}

// Events implements Bridge.
func (l *Loopback) Events() <-chan Event {
	return l.events
}

// Close implements Bridge.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	return nil
}

// emit must be called with l.mu held.
func (l *Loopback) emit(ev Event) {
	if l.closed {
		return
	}
	select {
	case l.events <- ev:
	default:
		logging.Warn("Dropping dictionary event, consumer is behind",
			zap.Int("serial", ev.Serial),
			zap.String("key", ev.Key),
		)
	}
}

func (l *Loopback) dict(serial int) (*loopDict, error) {
	d, ok := l.dicts[serial]
	if !ok {
		return nil, status.NewNotFound("no dictionary %d", serial)
	}
	return d, nil
}

// Add creates a key. Existing keys fail with a Duplicate error.
func (l *Loopback) Add(serial int, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, err := l.dict(serial)
	if err != nil {
		return err
	}
	if _, ok := d.values[key]; ok {
		return status.NewDuplicate("key %q exists", key)
	}
	d.values[key] = value
	l.emit(Event{Serial: serial, Label: d.label, Action: ActionAdd, Key: key, Value: value})
	return nil
}

// Set creates or updates a key.
func (l *Loopback) Set(serial int, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, err := l.dict(serial)
	if err != nil {
		return err
	}
	action := ActionUpdate
	if _, ok := d.values[key]; !ok {
		action = ActionAdd
	}
	d.values[key] = value
	l.emit(Event{Serial: serial, Label: d.label, Action: action, Key: key, Value: value})
	return nil
}

// Remove deletes a key.
func (l *Loopback) Remove(serial int, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, err := l.dict(serial)
	if err != nil {
		return err
	}
	if _, ok := d.values[key]; !ok {
		return status.NewNotFound("no key %q", key)
	}
	delete(d.values, key)
	l.emit(Event{Serial: serial, Label: d.label, Action: ActionDelete, Key: key})
	return nil
}

// Get returns a key's value.
func (l *Loopback) Get(serial int, key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.dicts[serial]
	if !ok {
		return "", false
	}
	v, ok := d.values[key]
	return v, ok
}

// Keys returns a dictionary's keys in sorted order.
func (l *Loopback) Keys(serial int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.dicts[serial]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type loopSession struct {
	l      *Loopback
	serial int
	closed atomic.Bool
}

func (s *loopSession) Add(ctx context.Context, key, value string) error {
	if s.closed.Load() {
		return status.New(status.Pipe, "session closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.l.Add(s.serial, key, value)
}

func (s *loopSession) Close() error {
	s.closed.Store(true)
	return nil
}
