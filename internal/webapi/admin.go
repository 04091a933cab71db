package webapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/store"
	"github.com/muurk/dictserver/internal/webconn"
)

type adminFunc func(context.Context, webconn.Permissions, webconn.Params) error

// admin handles POST /api/v1/dictionary/{add,update,remove}.
func (h *Handler) admin(ctx context.Context, c *webconn.Conn, op string, p webconn.Params) error {
	var handlers map[string]adminFunc
	switch op {
	case "add":
		handlers = map[string]adminFunc{
			"dictionary": h.addDictionary,
			"key":        h.addKey,
		}
	case "update":
		handlers = map[string]adminFunc{
			"dictionary": h.updateDictionary,
			"key":        h.updateKey,
		}
	case "remove":
		handlers = map[string]adminFunc{
			"dictionary": h.removeDictionary,
			"key":        h.removeKey,
		}
	default:
		return c.NotFound()
	}

	target, ok := p.Lookup("target")
	if !ok {
		return missing("target")
	}
	fn, ok := handlers[target]
	if !ok {
		return status.NewInvalidArg("invalid target")
	}
	if err := fn(ctx, c.Permissions, p); err != nil {
		return err
	}

	logging.Info("Dictionary administration",
		zap.String("remote_addr", c.Peer),
		zap.String("op", op),
		zap.String("target", target),
		zap.String("dictserial", p.Get("dictserial")),
		zap.String("key", p.Get("key")),
	)
	return c.WriteStatus()
}

func (h *Handler) addDictionary(ctx context.Context, perm webconn.Permissions, p webconn.Params) error {
	if !perm.AddDictionary {
		return status.NewAccess("dictionary create is disabled")
	}
	label, ok := p.Lookup("label")
	if !ok {
		return missing("label")
	}
	sn, ok, err := serialParam(p, "sn")
	if err != nil {
		return err
	}
	if !ok {
		sn = -1
	}
	enabled, err := boolParam(p, "enabled", true)
	if err != nil {
		return err
	}
	configAdd, err := boolParam(p, "configadd", false)
	if err != nil {
		return err
	}

	_, err = h.store.CreateDictionary(ctx, store.NewDictionary{
		Serial:     sn,
		Label:      label,
		Generation: p.Get("generation"),
		Enabled:    enabled,
		ConfigAdd:  configAdd,
	})
	return err
}

func (h *Handler) addKey(ctx context.Context, perm webconn.Permissions, p webconn.Params) error {
	if !perm.AddKey {
		return status.NewAccess("key creation is disabled")
	}
	key, ok := p.Lookup("key")
	if !ok {
		return missing("key")
	}
	value, ok := p.Lookup("value")
	if !ok {
		return missing("value")
	}
	sn, err := requireSerial(p)
	if err != nil {
		return err
	}
	return h.store.AddKey(ctx, sn, key, value)
}

func (h *Handler) updateDictionary(ctx context.Context, perm webconn.Permissions, p webconn.Params) error {
	sn, err := requireSerial(p)
	if err != nil {
		return err
	}
	if !perm.ChangeDictionary {
		return status.NewAccess("dictionary change is disabled")
	}
	return h.store.UpdateDictionary(ctx, sn, p)
}

func (h *Handler) updateKey(ctx context.Context, perm webconn.Permissions, p webconn.Params) error {
	sn, err := requireSerial(p)
	if err != nil {
		return err
	}
	if !perm.ChangeKey {
		return status.NewAccess("key change is disabled")
	}
	key, ok := p.Lookup("key")
	if !ok {
		return missing("key")
	}
	return h.store.UpdateKey(ctx, sn, key, p)
}

func (h *Handler) removeDictionary(ctx context.Context, perm webconn.Permissions, p webconn.Params) error {
	if !perm.RemoveDictionary {
		return status.NewAccess("dictionary removal is disabled")
	}
	sn, err := requireSerial(p)
	if err != nil {
		return err
	}
	return h.store.RemoveDictionary(ctx, sn)
}

func (h *Handler) removeKey(ctx context.Context, perm webconn.Permissions, p webconn.Params) error {
	if !perm.RemoveKey {
		return status.NewAccess("key removal is disabled")
	}
	key, ok := p.Lookup("key")
	if !ok {
		return missing("key")
	}
	sn, err := requireSerial(p)
	if err != nil {
		return err
	}
	return h.store.RemoveKey(ctx, sn, key)
}
