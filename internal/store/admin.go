package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/dpc"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
)

// Params supplies named request values.
type Params interface {
	Lookup(name string) (string, bool)
}

// NewDictionary describes a dictionary to create.
type NewDictionary struct {
	Serial     int // negative allocates the next serial
	Label      string
	Generation string
	Enabled    bool
	ConfigAdd  bool
}

// CreateDictionary writes a new .dpc file and installs it. It returns the
// serial number used.
func (s *Store) CreateDictionary(ctx context.Context, nd NewDictionary) (int, error) {
	if nd.Label == "" {
		return 0, status.NewInvalidArg("missing label")
	}

	serial := nd.Serial
	if serial >= 0 {
		if err := s.CheckSerial(serial); err != nil {
			return 0, err
		}
	} else {
		serial = s.AllocSerial()
	}
	path := s.ConfigPath(serial)
	if _, err := os.Stat(path); err == nil {
		return 0, status.NewBusy("serial number in use")
	}

	doc := dpc.New()
	for _, e := range []struct {
		path string
		val  any
	}{
		{dpc.PathEnabled, nd.Enabled},
		{dpc.PathAdd, nd.ConfigAdd},
		{dpc.PathSerial, serial},
		{dpc.PathLabel, nd.Label},
	} {
		if err := doc.Add(e.path, e.val); err != nil {
			return 0, status.Wrap(status.Unexpected, err, "failed to create dictionary config")
		}
	}
	if nd.Generation != "" {
		if err := doc.Add(dpc.PathGeneration, nd.Generation); err != nil {
			return 0, status.Wrap(status.Unexpected, err, "failed to create dictionary config")
		}
	}

	if err := doc.WriteFile(path); err != nil {
		return 0, status.Wrap(status.IO, err, "failed to write dictionary config")
	}
	if err := s.Install(ctx, path, doc); err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return serial, nil
}

// RemoveDictionary detaches a dictionary and renames its .dpc file aside
// with a microsecond timestamp suffix.
func (s *Store) RemoveDictionary(ctx context.Context, serial int) error {
	d, err := s.detach(serial)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "Invalid Dictionary")
	}

	d.mu.Lock()
	d.removed = true
	d.close()
	d.mu.Unlock()

	if err := s.opts.Bridge.RemoveDictionary(serial); err != nil && !status.IsNotFound(err) {
		logging.Warn("Failed to remove dictionary from device layer", zap.Int("serial", serial), zap.Error(err))
	}

	aside := fmt.Sprintf("%s.%d", d.file, time.Now().UnixMicro())
	if err := os.Rename(d.file, aside); err != nil {
		return status.Wrap(status.IO, err, "failed to rename dictionary config")
	}
	logging.Info("Dictionary removed", zap.Int("serial", serial), zap.String("moved_to", aside))
	return nil
}

// edit parses d's file, runs fn with d locked, and writes the file when fn
// succeeds. Callbacks returned by fn run only after the write succeeded.
func (d *Dictionary) edit(fn func(doc *dpc.Document) ([]func(), error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return status.Wrap(status.InvalidArg, errRemoved, "Invalid Dictionary")
	}
	doc, err := dpc.ParseFile(d.file)
	if err != nil {
		return status.Wrap(status.IO, err, "failed to read dictionary config")
	}
	after, err := fn(doc)
	if err != nil {
		return err
	}
	if err := doc.WriteFile(d.file); err != nil {
		return status.Wrap(status.IO, err, "failed to write dictionary config")
	}
	for _, f := range after {
		f()
	}
	return nil
}

// AddKey adds a config key to a dictionary and its .dpc file.
func (s *Store) AddKey(ctx context.Context, serial int, key, value string) error {
	if !dpc.ValidKey(key) {
		return status.NewInvalidArg("invalid key")
	}
	d, err := s.Find(serial)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "Invalid Dictionary")
	}
	return d.edit(func(doc *dpc.Document) ([]func(), error) {
		if _, ok := d.matches[key]; ok {
			return nil, status.NewDuplicate("key already exists")
		}
		if err := doc.Set(dpc.ConfigKey(key, "value"), value); err != nil {
			return nil, status.Wrap(status.Unexpected, err, "failed to set key")
		}
		update, _ := doc.Bool(dpc.ConfigKey(key, "update"), true)
		remove, _ := doc.Bool(dpc.ConfigKey(key, "remove"), false)
		return []func(){func() {
			flags := MatchConfig
			if update {
				flags |= MatchUpdate
			}
			if remove {
				flags |= MatchRemove
			}
			m := d.addMatch(key, flags)
			v := value
			m.Value = &v
		}}, nil
	})
}

// RemoveKey deletes a key's match and its config block.
func (s *Store) RemoveKey(ctx context.Context, serial int, key string) error {
	d, err := s.Find(serial)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "Invalid Dictionary")
	}
	return d.edit(func(doc *dpc.Document) ([]func(), error) {
		if _, ok := d.matches[key]; !ok {
			return nil, status.NewInvalidArg("invalid key")
		}
		if err := doc.Remove(dpc.ConfigKey(key)); err != nil && !errors.Is(err, dpc.ErrNotFound) {
			return nil, status.Wrap(status.Unexpected, err, "failed to remove key")
		}
		return []func(){func() { delete(d.matches, key) }}, nil
	})
}

// UpdateDictionary applies dictionary fields from p.
func (s *Store) UpdateDictionary(ctx context.Context, serial int, p Params) error {
	d, err := s.Find(serial)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "Invalid Dictionary")
	}
	return d.edit(func(doc *dpc.Document) ([]func(), error) {
		return applyFields(d, doc, "dictionary", "", dictionaryFields, p)
	})
}

// UpdateKey applies key fields from p to one config key.
func (s *Store) UpdateKey(ctx context.Context, serial int, key string, p Params) error {
	d, err := s.Find(serial)
	if err != nil {
		return status.Wrap(status.InvalidArg, err, "Invalid Dictionary")
	}
	return d.edit(func(doc *dpc.Document) ([]func(), error) {
		if _, ok := d.matches[key]; !ok {
			return nil, status.NewInvalidArg("invalid key")
		}
		return applyFields(d, doc, dpc.ConfigKey(key), key, keyFields, p)
	})
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
)

type fieldFlag int

const (
	// removeIfAbsent deletes the entry when the parameter is missing.
	removeIfAbsent fieldFlag = 1 << iota
	// falseIfAbsent replaces alt with false when the parameter is missing.
	falseIfAbsent
	// removeAltFirst deletes alt before setting the entry.
	removeAltFirst
)

// field maps a request parameter onto a config entry below a base path.
type field struct {
	param string
	path  string
	kind  fieldKind
	flags fieldFlag
	alt   string
	// apply updates in-memory state once the file is written. d.mu is held.
	apply func(d *Dictionary, key string, doc *dpc.Document, val string)
}

var dictionaryFields = []field{
	{param: "enabled", path: "enabled", kind: kindBool},
	{param: "label", path: "label", apply: func(d *Dictionary, _ string, _ *dpc.Document, v string) {
		d.label = v
	}},
	{param: "generation", path: "generation", apply: func(d *Dictionary, _ string, _ *dpc.Document, v string) {
		d.generation = v
	}},
	{param: "configadd", path: "add", kind: kindBool, apply: func(d *Dictionary, _ string, _ *dpc.Document, v string) {
		b, _ := strconv.ParseBool(v)
		d.addConfig = b
	}},
}

var keyFields = []field{
	{param: "update", path: "update", kind: kindBool, apply: updateKeyConfig},
	{param: "remove", path: "remove", kind: kindBool, apply: updateKeyConfig},
	{param: "value", path: "value", apply: func(d *Dictionary, key string, _ *dpc.Document, v string) {
		if m, ok := d.matches[key]; ok {
			val := v
			m.Value = &val
		}
	}},
	{param: "cfg_type", path: "layout.type", flags: falseIfAbsent | removeAltFirst, alt: "layout"},
	{param: "cfg_readonly", path: "layout.readonly", kind: kindBool, flags: removeIfAbsent},
	{param: "cfg_order", path: "layout.order"},
	{param: "cfg_dest", path: "layout.dest"},
	{param: "cfg_class", path: "layout.class"},
	{param: "cfg_label", path: "layout.label"},
}

// updateKeyConfig reloads a match's update and remove policy from doc.
func updateKeyConfig(d *Dictionary, key string, doc *dpc.Document, _ string) {
	m, ok := d.matches[key]
	if !ok {
		return
	}
	update, _ := doc.Bool(dpc.ConfigKey(key, "update"), true)
	remove, _ := doc.Bool(dpc.ConfigKey(key, "remove"), false)
	m.Flags &^= MatchUpdate | MatchRemove
	if update {
		m.Flags |= MatchUpdate
	}
	if remove {
		m.Flags |= MatchRemove
	}
}

func ignoreMissing(err error) error {
	if errors.Is(err, dpc.ErrNotFound) || errors.Is(err, dpc.ErrNotBlock) {
		return nil
	}
	return err
}

// applyFields edits doc from p and returns the in-memory updates to run
// after the file is written.
func applyFields(d *Dictionary, doc *dpc.Document, base, key string, fields []field, p Params) ([]func(), error) {
	var after []func()
	for _, f := range fields {
		path := base + "." + f.path
		val, present := p.Lookup(f.param)

		if !present {
			switch {
			case f.flags&removeIfAbsent != 0:
				if err := ignoreMissing(doc.Remove(path)); err != nil {
					return nil, status.Wrap(status.Unexpected, err, "failed to clear %s", f.param)
				}
			case f.flags&falseIfAbsent != 0:
				alt := base + "." + f.alt
				if err := ignoreMissing(doc.Remove(alt)); err != nil {
					return nil, status.Wrap(status.Unexpected, err, "failed to clear %s", f.param)
				}
				if err := doc.Add(alt, false); err != nil {
					return nil, status.Wrap(status.Unexpected, err, "failed to clear %s", f.param)
				}
			}
			continue
		}

		if f.flags&removeAltFirst != 0 {
			if err := ignoreMissing(doc.Remove(base + "." + f.alt)); err != nil {
				return nil, status.Wrap(status.Unexpected, err, "failed to reset %s", f.param)
			}
		}

		var v any = val
		if f.kind == kindBool {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, status.NewInvalidArg("invalid %s: %q", f.param, val)
			}
			v = b
		}
		if err := doc.Set(path, v); err != nil {
			if errors.Is(err, dpc.ErrNotBlock) {
				return nil, status.NewInvalidArg("%s requires cfg_type", f.param)
			}
			return nil, status.Wrap(status.Unexpected, err, "failed to set %s", f.param)
		}

		if f.apply != nil {
			apply, val := f.apply, val
			after = append(after, func() { apply(d, key, doc, val) })
		}
	}
	return after, nil
}
