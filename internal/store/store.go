package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/device"
	"github.com/muurk/dictserver/internal/dpc"
	"github.com/muurk/dictserver/internal/dslog"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
)

// DefaultGeneration is used when a .dpc file names no generation.
const DefaultGeneration = "default"

// Options configures a Store.
type Options struct {
	ConfigDir     string        // directory holding <serial>.dpc files
	DatabaseDir   string        // directory holding <serial>.db log databases
	SyncInterval  time.Duration // time between sync passes
	Bridge        device.Bridge
	AttachTimeout time.Duration // zero means device.AttachTimeout
}

// Store holds the installed dictionaries.
type Store struct {
	opts Options

	mu         sync.Mutex
	dicts      []*Dictionary // newest first
	nextSerial int

	runMu   sync.Mutex
	syncer  *Syncer
	cancel  context.CancelFunc
	consume sync.WaitGroup
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.AttachTimeout <= 0 {
		opts.AttachTimeout = device.AttachTimeout
	}
	s := &Store{opts: opts, nextSerial: 1}
	s.syncer = NewSyncer(opts.SyncInterval, func(ctx context.Context) {
		if err := s.SyncDictionaries(ctx); err != nil {
			logging.Warn("Dictionary sync pass incomplete", zap.Error(err))
		}
	})
	return s
}

// ConfigDir returns the .dpc directory.
func (s *Store) ConfigDir() string {
	return s.opts.ConfigDir
}

// ConfigPath returns the .dpc path for serial.
func (s *Store) ConfigPath(serial int) string {
	return filepath.Join(s.opts.ConfigDir, fmt.Sprintf("%d.dpc", serial))
}

// LoadDir installs every .dpc file in the config directory, creating the
// directory if needed. Any failure aborts the load.
func (s *Store) LoadDir(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("failed to create dictionary directory: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(s.opts.ConfigDir, "*.dpc"))
	if err != nil {
		return fmt.Errorf("failed to list dictionaries: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		if err := s.InstallFile(ctx, f); err != nil {
			return err
		}
	}
	logging.Info("Dictionaries loaded",
		zap.String("dir", s.opts.ConfigDir),
		zap.Int("files", len(files)),
		zap.Int("installed", len(s.Dictionaries())),
	)
	return nil
}

// InstallFile parses and installs one .dpc file.
func (s *Store) InstallFile(ctx context.Context, path string) error {
	doc, err := dpc.ParseFile(path)
	if err != nil {
		return status.Wrap(status.IO, err, "failed to read dictionary %s", filepath.Base(path))
	}
	if err := s.Install(ctx, path, doc); err != nil {
		return fmt.Errorf("failed to install dictionary %s: %w", path, err)
	}
	return nil
}

// Install adds the dictionary described by doc, read from file. A disabled
// dictionary is skipped without error.
func (s *Store) Install(ctx context.Context, file string, doc *dpc.Document) error {
	enabled, err := doc.Bool(dpc.PathEnabled, false)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "invalid %s", dpc.PathEnabled)
	}
	if !enabled {
		logging.Debug("Skipping disabled dictionary", zap.String("file", file))
		return nil
	}

	label, err := doc.String(dpc.PathLabel)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "missing %s", dpc.PathLabel)
	}
	serial, err := doc.Int(dpc.PathSerial, -1)
	if err != nil || serial < 0 {
		return status.Wrap(status.InvalidArg, err, "missing or invalid %s", dpc.PathSerial)
	}
	addConfig, err := doc.Bool(dpc.PathAdd, false)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "invalid %s", dpc.PathAdd)
	}

	s.mu.Lock()
	if s.findLocked(serial) != nil {
		s.mu.Unlock()
		return status.NewBusy("serial number %d in use", serial)
	}
	s.mu.Unlock()

	d := newDictionary(serial, label, doc.Get(dpc.PathGeneration, DefaultGeneration), file)
	d.addConfig = addConfig

	if err := populateConfig(d, doc); err != nil {
		return err
	}
	hasLog := populateLog(d, doc)

	br := s.opts.Bridge
	if err := br.AddDictionary(serial, label); err != nil {
		return status.Wrap(status.Unexpected, err, "failed to add dictionary %d", serial)
	}
	sess, err := br.Attach(ctx, serial, s.opts.AttachTimeout)
	if err != nil {
		_ = br.RemoveDictionary(serial)
		return status.Wrap(status.Unexpected, err, "dictionary %d did not attach", serial)
	}
	defer sess.Close()

	if hasLog {
		d.log, err = dslog.Open(ctx, dslog.Path(s.opts.DatabaseDir, file))
		if err != nil {
			_ = br.RemoveDictionary(serial)
			return status.Wrap(status.IO, err, "failed to open log for dictionary %d", serial)
		}
	}

	generation, keys := d.generation, len(d.matches)

	s.mu.Lock()
	if s.findLocked(serial) != nil {
		s.mu.Unlock()
		d.close()
		_ = br.RemoveDictionary(serial)
		return status.NewBusy("serial number %d in use", serial)
	}
	s.dicts = append([]*Dictionary{d}, s.dicts...)
	if serial >= s.nextSerial {
		s.nextSerial = serial + 1
	}
	s.mu.Unlock()

	pushConfig(ctx, sess, d, doc)

	logging.Info("Dictionary installed",
		zap.Int("serial", serial),
		zap.String("label", label),
		zap.String("generation", generation),
		zap.Int("keys", keys),
		zap.Bool("log", hasLog),
	)
	return nil
}

// populateConfig creates a match for every config key.
func populateConfig(d *Dictionary, doc *dpc.Document) error {
	for _, key := range doc.EntryNames(dpc.PathConfigKeys) {
		val, err := doc.String(dpc.ConfigKey(key, "value"))
		if err != nil {
			return status.Wrap(status.InvalidArg, err, "config key %q has no value", key)
		}
		flags := MatchConfig
		if update, err := doc.Bool(dpc.ConfigKey(key, "update"), true); err != nil {
			return status.Wrap(status.InvalidArg, err, "config key %q", key)
		} else if update {
			flags |= MatchUpdate
		}
		if remove, err := doc.Bool(dpc.ConfigKey(key, "remove"), false); err != nil {
			return status.Wrap(status.InvalidArg, err, "config key %q", key)
		} else if remove {
			flags |= MatchRemove
		}
		m := d.addMatch(key, flags)
		m.Value = &val
	}
	return nil
}

// populateLog flags every valid log key and reports whether any exist.
func populateLog(d *Dictionary, doc *dpc.Document) bool {
	found := false
	for _, key := range doc.EntryNames(dpc.PathLogKeys) {
		if !dpc.ValidKey(key) {
			logging.Warn("Ignoring invalid log key", zap.Int("serial", d.serial), zap.String("key", key))
			continue
		}
		interval, err := doc.Int(dpc.LogKey(key, "interval", "min"), -1)
		if err != nil {
			logging.Warn("Ignoring invalid log interval", zap.String("key", key), zap.Error(err))
			interval = -1
		}
		m := d.addMatch(key, MatchLog)
		m.limiter = dslog.NewLimiter(interval)
		found = true
	}
	return found
}

// pushConfig sends config values to the device dictionary.
func pushConfig(ctx context.Context, sess device.Session, d *Dictionary, doc *dpc.Document) {
	for _, key := range doc.EntryNames(dpc.PathConfigKeys) {
		val := doc.Get(dpc.ConfigKey(key, "value"), "")
		if err := sess.Add(ctx, key, val); err != nil && !status.IsDuplicate(err) {
			logging.Warn("Failed to push config key to device",
				zap.Int("serial", d.serial),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

func (s *Store) findLocked(serial int) *Dictionary {
	for _, d := range s.dicts {
		if d.serial == serial {
			return d
		}
	}
	return nil
}

// Find returns the dictionary with serial.
func (s *Store) Find(serial int) (*Dictionary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.findLocked(serial); d != nil {
		return d, nil
	}
	return nil, status.NewNotFound("no dictionary %d", serial)
}

// Dictionaries returns the identity of every installed dictionary, newest
// first.
func (s *Store) Dictionaries() []Info {
	s.mu.Lock()
	list := append([]*Dictionary(nil), s.dicts...)
	s.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, d := range list {
		out = append(out, d.Info())
	}
	return out
}

// NextSerial returns the serial the next allocation would use.
func (s *Store) NextSerial() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSerial
}

// AllocSerial reserves and returns the next serial number.
func (s *Store) AllocSerial() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn := s.nextSerial
	s.nextSerial++
	return sn
}

// CheckSerial fails with Busy if serial is installed.
func (s *Store) CheckSerial(serial int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(serial) != nil {
		return status.NewBusy("serial number in use")
	}
	return nil
}

// detach unlinks the dictionary with serial from the list.
func (s *Store) detach(serial int) (*Dictionary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.dicts {
		if d.serial == serial {
			s.dicts = append(s.dicts[:i], s.dicts[i+1:]...)
			return d, nil
		}
	}
	return nil, status.NewNotFound("no dictionary %d", serial)
}

// Start launches the sync task and the device event consumer. Starting a
// running store fails with Busy.
func (s *Store) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.syncer.Start(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.consume.Add(1)
	go func() {
		defer s.consume.Done()
		s.Consume(ctx, s.opts.Bridge.Events())
	}()
	return nil
}

// Stop halts the sync task and the event consumer, waiting for both.
func (s *Store) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.syncer.Stop()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.consume.Wait()
}

// Close stops the store, runs a final sync pass and closes every log.
func (s *Store) Close(ctx context.Context) error {
	s.Stop()
	err := s.SyncDictionaries(ctx)

	s.mu.Lock()
	list := s.dicts
	s.dicts = nil
	s.mu.Unlock()

	for _, d := range list {
		d.mu.Lock()
		d.close()
		d.mu.Unlock()
	}
	return err
}

// errRemoved is returned when a dictionary was removed while a caller held it.
var errRemoved = errors.New("dictionary removed")
