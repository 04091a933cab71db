package webapi

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/store"
	"github.com/muurk/dictserver/internal/webconn"
)

// Request paths.
const (
	Prefix         = "/api/v1"
	DictionaryPath = Prefix + "/dictionary"
)

// Handler serves the dictionary web API.
type Handler struct {
	store   *store.Store
	enabled bool
}

// New returns a handler over s. A disabled handler answers every request
// with 403.
func New(s *store.Store, enabled bool) *Handler {
	return &Handler{store: s, enabled: enabled}
}

// Match reports whether p belongs to the web API.
func Match(p string) bool {
	return p == Prefix || strings.HasPrefix(p, Prefix+"/")
}

// Serve answers the request already read on c. Errors are reported to the
// client; the returned error is only for logging by the caller.
func (h *Handler) Serve(ctx context.Context, c *webconn.Conn) error {
	req := c.Request()
	if !h.enabled {
		return c.WriteError(http.StatusForbidden, status.Access, "webapi is disabled")
	}

	var err error
	switch {
	case req.Path == DictionaryPath && req.Method != "POST":
		err = h.query(ctx, c, req.Params)
	case req.Method == "POST" && (req.Path == DictionaryPath || strings.HasPrefix(req.Path, DictionaryPath+"/")):
		err = h.admin(ctx, c, path.Base(req.Path), req.Params)
	default:
		return c.NotFound()
	}
	if err == nil {
		return nil
	}

	if c.HeaderSent() {
		logging.Warn("Web API response cut short",
			zap.String("remote_addr", c.Peer),
			zap.String("uri", req.URI),
			zap.Error(err),
		)
		return err
	}
	var pe *paramError
	if errors.As(err, &pe) {
		return c.WriteError(pe.httpStatus, pe.err.Code, pe.err.Message)
	}
	return c.WriteErr(err)
}

// paramError is reported with an explicit HTTP status instead of the one
// derived from its code.
type paramError struct {
	httpStatus int
	err        *status.Error
}

func (e *paramError) Error() string { return e.err.Error() }
func (e *paramError) Unwrap() error { return e.err }

func invalidParam(format string, args ...any) error {
	return &paramError{httpStatus: http.StatusBadRequest, err: status.NewInvalidArg(format, args...)}
}

func missing(name string) error {
	return status.NewInvalidArg("missing %s", name)
}

// serialParam parses the dictionary serial named name. ok is false when the
// parameter is absent.
func serialParam(p webconn.Params, name string) (sn int, ok bool, err error) {
	v, ok := p.Lookup(name)
	if !ok {
		return 0, false, nil
	}
	sn, err = strconv.Atoi(v)
	if err != nil || sn < 0 {
		return 0, true, status.NewInvalidArg("invalid %s %q", name, v)
	}
	return sn, true, nil
}

func requireSerial(p webconn.Params) (int, error) {
	sn, ok, err := serialParam(p, "dictserial")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, missing("dictserial")
	}
	return sn, nil
}

func boolParam(p webconn.Params, name string, def bool) (bool, error) {
	v, ok := p.Lookup(name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, status.NewInvalidArg("invalid %s %q", name, v)
	}
	return b, nil
}
