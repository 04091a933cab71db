package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
)

// Request is one message of the loopback stream protocol.
type Request struct {
	Op     string `json:"op"` // add, set, remove, get, keys
	Serial int    `json:"serial"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Reply answers a Request.
type Reply struct {
	Result status.Code `json:"result"`
	Msg    string      `json:"msg,omitempty"`
	Value  string      `json:"value,omitempty"`
	Keys   []string    `json:"keys,omitempty"`
}

// ServeStream lets a remote client drive the loopback dictionaries over a
// stream of JSON messages. It returns nil when the peer closes the stream.
func (l *Loopback) ServeStream(ctx context.Context, rw io.ReadWriter, peer string) error {
	dec := json.NewDecoder(rw)
	enc := json.NewEncoder(rw)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || status.IsEndOfStream(err) {
				return nil
			}
			var syn *json.SyntaxError
			if errors.As(err, &syn) {
				_ = enc.Encode(Reply{Result: status.InvalidArg, Msg: "malformed request"})
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		reply := l.apply(req)
		logging.Debug("Stream request",
			zap.String("remote_addr", peer),
			zap.String("op", req.Op),
			zap.Int("serial", req.Serial),
			zap.String("key", req.Key),
			zap.Int("result", int(reply.Result)),
		)
		if err := enc.Encode(reply); err != nil {
			return fmt.Errorf("failed to write reply: %w", err)
		}
	}
}

func (l *Loopback) apply(req Request) Reply {
	var err error
	var reply Reply

	switch req.Op {
	case "add":
		err = l.Add(req.Serial, req.Key, req.Value)
	case "set":
		err = l.Set(req.Serial, req.Key, req.Value)
	case "remove":
		err = l.Remove(req.Serial, req.Key)
	case "get":
		v, ok := l.Get(req.Serial, req.Key)
		if !ok {
			err = status.NewNotFound("no key %q", req.Key)
		}
		reply.Value = v
	case "keys":
		reply.Keys = l.Keys(req.Serial)
	default:
		err = status.NewUnsupported("unknown op %q", req.Op)
	}

	if err != nil {
		reply.Result = status.CodeOf(err)
		reply.Msg = status.MessageOf(err)
	}
	return reply
}
