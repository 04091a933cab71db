package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/dslog"
	"github.com/muurk/dictserver/internal/logging"
)

// MatchFlag describes how a key is tracked.
type MatchFlag uint

const (
	// MatchConfig mirrors the key into the .dpc file.
	MatchConfig MatchFlag = 0x1
	// MatchLog appends key changes to the log database.
	MatchLog MatchFlag = 0x2
	// MatchUpdate accepts device updates for a config key.
	MatchUpdate MatchFlag = 0x10
	// MatchRemove accepts device deletes for a config key.
	MatchRemove MatchFlag = 0x20
	// MatchDirty means the cached state is not yet in the .dpc file.
	MatchDirty MatchFlag = 0x100
	// MatchDelete removes the key from the .dpc file on the next sync.
	MatchDelete MatchFlag = 0x200
)

// Match is the tracked state of one key.
type Match struct {
	Key   string
	Value *string
	Flags MatchFlag

	limiter dslog.Limiter
}

// Has reports whether all of f are set.
func (m *Match) Has(f MatchFlag) bool {
	return m.Flags&f == f
}

// Dictionary is one installed dictionary.
type Dictionary struct {
	mu sync.Mutex

	serial     int
	label      string
	generation string
	file       string
	addConfig  bool
	dirty      bool
	removed    bool
	matches    map[string]*Match
	log        *dslog.Log
}

func newDictionary(serial int, label, generation, file string) *Dictionary {
	return &Dictionary{
		serial:     serial,
		label:      label,
		generation: generation,
		file:       file,
		matches:    make(map[string]*Match),
	}
}

// Info is a snapshot of a dictionary's identity.
type Info struct {
	Serial     int    `json:"sn"`
	Label      string `json:"label"`
	Generation string `json:"gen"`
}

// MatchInfo is a snapshot of one match.
type MatchInfo struct {
	Key   string    `json:"key"`
	Value string    `json:"value,omitempty"`
	Flags MatchFlag `json:"flags"`
}

// Serial returns the dictionary serial number.
func (d *Dictionary) Serial() int {
	return d.serial
}

// File returns the path of the dictionary's .dpc file.
func (d *Dictionary) File() string {
	return d.file
}

// Info returns the dictionary identity.
func (d *Dictionary) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Info{Serial: d.serial, Label: d.label, Generation: d.generation}
}

// Dirty reports whether the dictionary has unsynced changes.
func (d *Dictionary) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// AddConfig reports whether unknown keys added by the device are tracked.
func (d *Dictionary) AddConfig() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addConfig
}

// Log returns the dictionary's log database, or nil if it has no log keys.
func (d *Dictionary) Log() *dslog.Log {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.log
}

// Match returns a snapshot of the match for key.
func (d *Dictionary) Match(key string) (MatchInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.matches[key]
	if !ok {
		return MatchInfo{}, false
	}
	return m.info(), true
}

// Matches returns snapshots of all matches in key order.
func (d *Dictionary) Matches() []MatchInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MatchInfo, 0, len(d.matches))
	for _, k := range d.keys() {
		out = append(out, d.matches[k].info())
	}
	return out
}

func (m *Match) info() MatchInfo {
	mi := MatchInfo{Key: m.Key, Flags: m.Flags}
	if m.Value != nil {
		mi.Value = *m.Value
	}
	return mi
}

// keys returns match keys in order. d.mu must be held.
func (d *Dictionary) keys() []string {
	return slices.Sorted(maps.Keys(d.matches))
}

// addMatch returns the match for key, creating it with flags if absent.
// d.mu must be held.
func (d *Dictionary) addMatch(key string, flags MatchFlag) *Match {
	m, ok := d.matches[key]
	if !ok {
		m = &Match{Key: key}
		d.matches[key] = m
	}
	m.Flags |= flags
	return m
}

// logChange appends a change to the log database, subject to the match's
// rate limiter. d.mu must be held.
func (d *Dictionary) logChange(ctx context.Context, m *Match, key, value string, now time.Time) {
	if d.log == nil || !m.limiter.Allow(now) {
		return
	}
	if err := d.log.Insert(ctx, d.generation, key, value); err != nil {
		logging.Warn("Failed to log dictionary change",
			zap.Int("serial", d.serial),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// close releases the log database. d.mu must be held.
func (d *Dictionary) close() {
	if d.log != nil {
		if err := d.log.Close(); err != nil {
			logging.Warn("Failed to close dictionary log", zap.Int("serial", d.serial), zap.Error(err))
		}
		d.log = nil
	}
}
