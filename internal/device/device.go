// Package device defines the contract between the dictionary store and the
// device layer that owns live dictionaries.
package device

import (
	"context"
	"fmt"
	"time"
)

// Action is the kind of a dictionary change. The numeric values are part of
// the device wire protocol.
type Action int

const (
	ActionAdd    Action = 0x7C
	ActionUpdate Action = 0x7E
	ActionDelete Action = 0x80
)

// String returns the action name
func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("Action(0x%X)", int(a))
	}
}

// AttachTimeout bounds how long installation waits for a dictionary to attach.
const AttachTimeout = 30 * time.Second

// Event is a change reported by a device dictionary.
type Event struct {
	Serial int
	Label  string
	Action Action
	Key    string
	Value  string
}

// Session is an attached handle to one dictionary.
type Session interface {
	// Add creates key with value on the device dictionary.
	Add(ctx context.Context, key, value string) error
	Close() error
}

// Bridge is the device layer as seen by the dictionary store.
type Bridge interface {
	// AddDictionary registers a dictionary with the device layer.
	AddDictionary(serial int, label string) error
	// RemoveDictionary unregisters a dictionary.
	RemoveDictionary(serial int) error
	// Attach opens a session, failing if the dictionary does not attach
	// within timeout.
	Attach(ctx context.Context, serial int, timeout time.Duration) (Session, error)
	// Events delivers device originated changes. It is closed by Close.
	Events() <-chan Event
	Close() error
}
