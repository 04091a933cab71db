package dpc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Busy files are retried this many times, BusyDelay apart.
const busyRetries = 3

// BusyDelay is the pause between attempts on a busy file.
var BusyDelay = 250 * time.Millisecond

func isBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EAGAIN)
}

// ParseFile reads and parses a .dpc file.
func ParseFile(path string) (*Document, error) {
	var data []byte
	var err error
	for i := 0; i <= busyRetries; i++ {
		data, err = os.ReadFile(path)
		if err == nil || !isBusy(err) || i == busyRetries {
			break
		}
		time.Sleep(BusyDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary config %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteFile renders d and replaces path with it atomically.
func (d *Document) WriteFile(path string) error {
	data, err := d.Render()
	if err != nil {
		return err
	}
	for i := 0; i <= busyRetries; i++ {
		err = writeAtomic(path, data)
		if err == nil || !isBusy(err) || i == busyRetries {
			break
		}
		time.Sleep(BusyDelay)
	}
	if err != nil {
		return fmt.Errorf("failed to write dictionary config %s: %w", path, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
