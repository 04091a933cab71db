package webapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/dpc"
	"github.com/muurk/dictserver/internal/dslog"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/store"
	"github.com/muurk/dictserver/internal/webconn"
)

// MaxRowSize is the largest rendered row sent by a data query. Larger rows
// are skipped.
const MaxRowSize = 1024

// errStopped ends a scan once the client stops reading.
var errStopped = errors.New("client stopped reading")

// query handles GET /api/v1/dictionary?action=data|get.
func (h *Handler) query(ctx context.Context, c *webconn.Conn, p webconn.Params) error {
	action, ok := p.Lookup("action")
	if !ok {
		action = "data"
	}

	var (
		d   *store.Dictionary
		doc *dpc.Document
	)
	sn, ok, err := serialParam(p, "dictserial")
	if err != nil {
		return err
	}
	if ok {
		if d, err = h.store.Find(sn); err != nil {
			return status.Wrap(status.InvalidArg, err, "failed to load dictionary")
		}
		if doc, err = dpc.ParseFile(d.File()); err != nil {
			return status.Wrap(status.InvalidArg, err, "failed to load dictionary")
		}
	}

	switch action {
	case "data":
		if d == nil {
			return missing("dictserial")
		}
		return h.data(ctx, c, p, d, doc)
	case "get":
		return h.get(c, p, doc)
	default:
		return invalidParam("invalid action '%s'", action)
	}
}

// dataFilter validates the filter parameters of a data query.
func dataFilter(p webconn.Params, doc *dpc.Document) (dslog.Filter, error) {
	var f dslog.Filter

	if v, ok := p.Lookup("gen"); ok {
		if !dpc.ValidKey(v) {
			return f, status.NewInvalidArg("invalid gen %q", v)
		}
		f.Gen = v
	}
	for _, id := range []struct {
		name string
		dst  **int64
	}{{"startid", &f.StartID}, {"endid", &f.EndID}} {
		v, ok := p.Lookup(id.name)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, status.NewInvalidArg("invalid %s %q", id.name, v)
		}
		*id.dst = &n
	}
	for _, date := range []struct {
		name string
		dst  *string
	}{{"startdate", &f.StartDate}, {"enddate", &f.EndDate}} {
		v, ok := p.Lookup(date.name)
		if !ok {
			continue
		}
		if _, err := dslog.ParseTimestamp(v); err != nil {
			return f, status.Wrap(status.InvalidArg, err, "invalid %s %q", date.name, v)
		}
		*date.dst = v
	}
	if v, ok := p.Lookup("key"); ok {
		if !dpc.ValidKey(v) {
			return f, status.NewInvalidArg("invalid key %q", v)
		}
		if !doc.Exists(dpc.LogKey(v)) {
			return f, status.NewNotFound("key %q is not logged", v)
		}
		f.Key = v
	}
	return f, nil
}

type jsonRow struct {
	ID   int64  `json:"id"`
	Gen  string `json:"gen"`
	Time string `json:"time"`
	Key  string `json:"key"`
	Val  string `json:"val"`
}

// rowEncoder renders one row per call.
type rowEncoder interface {
	begin(w io.Writer) error
	row(buf *bytes.Buffer, r dslog.Row, first bool) error
	end(w io.Writer, count int) error
}

type jsonEncoder struct{ serial int }

func (e jsonEncoder) begin(w io.Writer) error {
	_, err := fmt.Fprintf(w, `{"dictionary":"%d","version":1,"data":[`, e.serial)
	return err
}

func (jsonEncoder) row(buf *bytes.Buffer, r dslog.Row, first bool) error {
	if !first {
		buf.WriteByte(',')
	}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(jsonRow{ID: r.ID, Gen: r.Gen, Time: r.Time, Key: r.Key, Val: r.Val}); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // trailing newline
	return nil
}

func (jsonEncoder) end(w io.Writer, count int) error {
	_, err := fmt.Fprintf(w, "],\"records\":%d}\n", count)
	return err
}

type csvEncoder struct{}

func (csvEncoder) begin(w io.Writer) error {
	_, err := io.WriteString(w, "id,gen,time,key,val\n")
	return err
}

func (csvEncoder) row(buf *bytes.Buffer, r dslog.Row, _ bool) error {
	cw := csv.NewWriter(buf)
	if err := cw.Write([]string{strconv.FormatInt(r.ID, 10), r.Gen, r.Time, r.Key, r.Val}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func (csvEncoder) end(io.Writer, int) error {
	return nil
}

// data streams log rows, one write per row.
func (h *Handler) data(ctx context.Context, c *webconn.Conn, p webconn.Params, d *store.Dictionary, doc *dpc.Document) error {
	f, err := dataFilter(p, doc)
	if err != nil {
		return err
	}
	interval := -1
	if v, ok := p.Lookup("interval"); ok {
		if interval, err = strconv.Atoi(v); err != nil {
			return status.NewInvalidArg("invalid interval %q", v)
		}
	}
	dl := d.Log()
	if dl == nil {
		return status.NewNotFound("dictionary %d has no log", d.Serial())
	}

	var enc rowEncoder = jsonEncoder{serial: d.Serial()}
	contentType := "application/json"
	if strings.EqualFold(p.Get("format"), "CSV") {
		enc = csvEncoder{}
		contentType = "text/csv"
	}

	if err := c.WriteHeader(http.StatusOK, contentType); err != nil {
		return nil
	}
	if err := enc.begin(c); err != nil {
		return nil
	}

	thin := dslog.NewLimiter(interval)
	var buf bytes.Buffer
	count := 0
	err = dl.Scan(ctx, f, func(r dslog.Row) error {
		if interval > 0 {
			t, err := dslog.ParseTimestamp(r.Time)
			if err != nil {
				logging.Warn("Skipping row with bad timestamp", zap.Int64("id", r.ID), zap.String("time", r.Time))
				return nil
			}
			if !thin.Allow(t) {
				return nil
			}
		}

		buf.Reset()
		if err := enc.row(&buf, r, count == 0); err != nil || buf.Len() >= MaxRowSize {
			logging.Debug("Skipping oversized row", zap.Int64("id", r.ID), zap.Int("size", buf.Len()))
			return nil
		}
		if _, err := c.Write(buf.Bytes()); err != nil {
			return errStopped
		}
		count++
		return nil
	})
	switch {
	case errors.Is(err, errStopped):
		return nil
	case err != nil:
		logging.Error("Data query failed",
			zap.Int("serial", d.Serial()),
			zap.String("remote_addr", c.Peer),
			zap.Error(err),
		)
		return nil
	}
	_ = enc.end(c, count)
	return nil
}

// get handles action=get.
func (h *Handler) get(c *webconn.Conn, p webconn.Params, doc *dpc.Document) error {
	what, ok := p.Lookup("what")
	if !ok {
		return missing("what")
	}

	switch what {
	case "dictionary":
		if doc == nil {
			return missing("dictserial")
		}
		data, err := doc.RenderJSON()
		if err != nil {
			return status.Wrap(status.Unexpected, err, "failed to render dictionary json")
		}
		if err := c.WriteHeader(http.StatusOK, "application/json"); err != nil {
			return nil
		}
		_, _ = c.Write(data)
		return nil

	case "dictionaries":
		if err := c.WriteHeader(http.StatusOK, "application/json"); err != nil {
			return nil
		}
		if _, err := io.WriteString(c, `{"version":1,"data":[`); err != nil {
			return nil
		}
		for i, info := range h.store.Dictionaries() {
			item, err := json.Marshal(info)
			if err != nil {
				continue
			}
			if i > 0 {
				item = append([]byte{','}, item...)
			}
			if _, err := c.Write(item); err != nil {
				return nil
			}
		}
		_, _ = io.WriteString(c, "]}\n")
		return nil
	}
	return invalidParam("invalid what '%s'", what)
}
