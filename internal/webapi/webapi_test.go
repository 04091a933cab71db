package webapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/dictserver/internal/device"
	"github.com/muurk/dictserver/internal/dpc"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/store"
	"github.com/muurk/dictserver/internal/webconn"
)

const sensorDPC = `dictionary:
  enabled: true
  label: Sensor1
  sn: 7
  generation: g1
  config:
    key:
      setpoint:
        value: "20"
  log:
    key:
      temperature: {}
      humidity: {}
`

var allowAll = webconn.Permissions{
	AddDictionary: true, ChangeDictionary: true, RemoveDictionary: true,
	AddKey: true, RemoveKey: true, ChangeKey: true,
}

type env struct {
	store   *store.Store
	handler *Handler
	dir     string
}

func newEnv(t *testing.T, enabled bool, files map[string]string) *env {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "dict")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	for name, text := range files {
		require.NoError(t, os.WriteFile(filepath.Join(cfgDir, name), []byte(text), 0o644))
	}

	br := device.NewLoopback(64)
	s := store.New(store.Options{
		ConfigDir:    cfgDir,
		DatabaseDir:  filepath.Join(dir, "db"),
		SyncInterval: time.Second,
		Bridge:       br,
	})
	require.NoError(t, s.LoadDir(context.Background()))
	t.Cleanup(func() {
		_ = s.Close(context.Background())
		_ = br.Close()
	})
	return &env{store: s, handler: New(s, enabled), dir: cfgDir}
}

type response struct {
	status string
	header string
	body   string
}

func (e *env) do(t *testing.T, perm webconn.Permissions, raw string) response {
	t.Helper()
	srv, cli := net.Pipe()
	go func() {
		defer func() { _ = srv.Close() }()
		c := webconn.New(srv, webconn.Options{Permissions: perm})
		if _, err := c.ReadRequest(); err != nil {
			_ = c.WriteErr(err)
			return
		}
		_ = e.handler.Serve(context.Background(), c)
	}()
	go func() { _, _ = io.WriteString(cli, raw) }()

	out, err := io.ReadAll(cli)
	require.NoError(t, err)
	head, body, ok := strings.Cut(string(out), "\r\n\r\n")
	require.True(t, ok, "no header in %q", out)
	statusLine, header, _ := strings.Cut(head, "\r\n")
	return response{status: statusLine, header: header, body: body}
}

func get(query string) string {
	return "GET /api/v1/dictionary?" + query + " HTTP/1.1\r\nHost: test\r\n\r\n"
}

func post(op, form string) string {
	return "POST /api/v1/dictionary/" + op + " HTTP/1.1\r\nContent-Length: " +
		strconv.Itoa(len(form)) + "\r\n\r\n" + form
}

func errorResult(t *testing.T, r response) (status.Code, string) {
	t.Helper()
	var body struct {
		Result   int `json:"result"`
		Response struct {
			Msg string `json:"msg"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.body), &body), "body %q", r.body)
	return status.Code(body.Result), body.Response.Msg
}

const okBody = `{"content":"status","version":1,"result":0}`

func TestDisabled(t *testing.T) {
	e := newEnv(t, false, nil)
	r := e.do(t, allowAll, get("action=get&what=dictionaries"))
	assert.Equal(t, "HTTP/1.1 403 Forbidden", r.status)
	code, msg := errorResult(t, r)
	assert.Equal(t, status.Access, code)
	assert.Equal(t, "webapi is disabled", msg)
}

func TestAddDictionaryAssignsNextSerial(t *testing.T) {
	e := newEnv(t, true, map[string]string{
		"6.dpc": "dictionary:\n  enabled: true\n  label: six\n  sn: 6\n",
	})
	require.Equal(t, 7, e.store.NextSerial())

	r := e.do(t, allowAll, post("add", "target=dictionary&label=Sensor1"))
	assert.Equal(t, "HTTP/1.1 200 OK", r.status)
	assert.Equal(t, okBody, r.body)
	assert.Equal(t, 8, e.store.NextSerial())
	assert.FileExists(t, filepath.Join(e.dir, "7.dpc"))

	r = e.do(t, allowAll, get("action=get&what=dictionaries"))
	assert.Equal(t, `{"version":1,"data":[{"sn":7,"label":"Sensor1","gen":"default"},{"sn":6,"label":"six","gen":"default"}]}`+"\n", r.body)
}

func TestAddDictionaryErrors(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})

	r := e.do(t, webconn.Permissions{}, post("add", "target=dictionary&label=x"))
	assert.Equal(t, "HTTP/1.1 403 Forbidden", r.status)
	_, msg := errorResult(t, r)
	assert.Equal(t, "dictionary create is disabled", msg)
	assert.Equal(t, 8, e.store.NextSerial(), "denied request changes nothing")

	r = e.do(t, allowAll, post("add", "target=dictionary&label=x&sn=7"))
	assert.Equal(t, "HTTP/1.1 422 Unprocessable Entity", r.status)
	_, msg = errorResult(t, r)
	assert.Equal(t, "serial number in use", msg)

	r = e.do(t, allowAll, post("add", "target=dictionary"))
	_, msg = errorResult(t, r)
	assert.Equal(t, "missing label", msg)

	r = e.do(t, allowAll, post("add", "label=x"))
	_, msg = errorResult(t, r)
	assert.Equal(t, "missing target", msg)

	r = e.do(t, allowAll, post("add", "target=nothing"))
	_, msg = errorResult(t, r)
	assert.Equal(t, "invalid target", msg)

	r = e.do(t, allowAll, post("rename", "target=dictionary"))
	assert.Equal(t, "HTTP/1.1 404 Not Found", r.status)
}

func insertRows(t *testing.T, e *env, n int, key string) {
	t.Helper()
	d, err := e.store.Find(7)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		require.NoError(t, d.Log().Insert(context.Background(), "g1", key, strconv.Itoa(i)))
	}
}

type dataResponse struct {
	Dictionary string `json:"dictionary"`
	Version    int    `json:"version"`
	Data       []struct {
		ID   int64  `json:"id"`
		Gen  string `json:"gen"`
		Time string `json:"time"`
		Key  string `json:"key"`
		Val  string `json:"val"`
	} `json:"data"`
	Records int `json:"records"`
}

func decodeData(t *testing.T, r response) dataResponse {
	t.Helper()
	require.Equal(t, "HTTP/1.1 200 OK", r.status, "body %q", r.body)
	var out dataResponse
	require.NoError(t, json.Unmarshal([]byte(r.body), &out), "body %q", r.body)
	return out
}

func TestDataIDRange(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})
	insertRows(t, e, 30, "temperature")

	out := decodeData(t, e.do(t, allowAll, get("action=data&dictserial=7&startid=10&endid=20")))
	assert.Equal(t, "7", out.Dictionary)
	assert.Equal(t, 1, out.Version)
	assert.Equal(t, 11, out.Records)
	require.Len(t, out.Data, 11)
	for i, row := range out.Data {
		assert.Equal(t, int64(10+i), row.ID)
		assert.Equal(t, "g1", row.Gen)
		assert.Equal(t, "temperature", row.Key)
	}
}

func TestDataFilters(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})
	insertRows(t, e, 3, "temperature")
	insertRows(t, e, 2, "humidity")

	out := decodeData(t, e.do(t, allowAll, get("dictserial=7&key=humidity")))
	assert.Equal(t, 2, out.Records)

	out = decodeData(t, e.do(t, allowAll, get("dictserial=7&gen=other")))
	assert.Equal(t, 0, out.Records)
	assert.Empty(t, out.Data)

	out = decodeData(t, e.do(t, allowAll, get("dictserial=7&startdate=2000-01-01T00:00:00Z&enddate=2999-01-01T00:00:00Z")))
	assert.Equal(t, 5, out.Records)

	out = decodeData(t, e.do(t, allowAll, get("dictserial=7&interval=3600")))
	assert.Equal(t, 1, out.Records, "rows within the interval are thinned")

	tests := []struct {
		name   string
		query  string
		status string
		code   status.Code
	}{
		{"key not logged", "dictserial=7&key=setpoint", "HTTP/1.1 404 Not Found", status.NotFound},
		{"bad key", "dictserial=7&key=a.b", "HTTP/1.1 422 Unprocessable Entity", status.InvalidArg},
		{"bad id", "dictserial=7&startid=ten", "HTTP/1.1 422 Unprocessable Entity", status.InvalidArg},
		{"bad date", "dictserial=7&startdate=yesterday", "HTTP/1.1 422 Unprocessable Entity", status.InvalidArg},
		{"bad interval", "dictserial=7&interval=x", "HTTP/1.1 422 Unprocessable Entity", status.InvalidArg},
		{"missing dictserial", "action=data", "HTTP/1.1 422 Unprocessable Entity", status.InvalidArg},
		{"unknown dictionary", "action=data&dictserial=99", "HTTP/1.1 422 Unprocessable Entity", status.InvalidArg},
		{"bad action", "action=drop&dictserial=7", "HTTP/1.1 400 Bad Request", status.InvalidArg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.do(t, allowAll, get(tt.query))
			assert.Equal(t, tt.status, r.status)
			code, _ := errorResult(t, r)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestDataCSV(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})
	d, err := e.store.Find(7)
	require.NoError(t, err)
	require.NoError(t, d.Log().Insert(context.Background(), "g1", "temperature", "a,b"))

	r := e.do(t, allowAll, get("dictserial=7&format=csv"))
	assert.Contains(t, r.header, "Content-Type: text/csv")
	lines := strings.Split(strings.TrimSpace(r.body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,gen,time,key,val", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,g1,"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], `,temperature,"a,b"`), lines[1])
}

func TestDataSkipsOversizedRows(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})
	d, err := e.store.Find(7)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.Log().Insert(ctx, "g1", "temperature", "small"))
	require.NoError(t, d.Log().Insert(ctx, "g1", "temperature", strings.Repeat("x", MaxRowSize)))
	require.NoError(t, d.Log().Insert(ctx, "g1", "temperature", "after"))

	out := decodeData(t, e.do(t, allowAll, get("dictserial=7")))
	assert.Equal(t, 2, out.Records)
	require.Len(t, out.Data, 2)
	assert.Equal(t, []int64{1, 3}, []int64{out.Data[0].ID, out.Data[1].ID})
}

func TestGet(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})

	r := e.do(t, allowAll, get("action=get&what=dictionary&dictserial=7"))
	assert.Equal(t, "HTTP/1.1 200 OK", r.status)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.body), &doc))
	assert.Equal(t, "Sensor1", doc["dictionary"].(map[string]any)["label"])

	r = e.do(t, allowAll, get("action=get&what=dictionary"))
	_, msg := errorResult(t, r)
	assert.Equal(t, "missing dictserial", msg)

	r = e.do(t, allowAll, get("action=get"))
	_, msg = errorResult(t, r)
	assert.Equal(t, "missing what", msg)

	r = e.do(t, allowAll, get("action=get&what=everything"))
	assert.Equal(t, "HTTP/1.1 400 Bad Request", r.status)
}

func TestKeyRoundTrip(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})

	r := e.do(t, allowAll, post("add", "target=key&dictserial=7&key=mode&value=auto"))
	require.Equal(t, okBody, r.body)

	r = e.do(t, allowAll, get("action=get&what=dictionary&dictserial=7"))
	assert.Contains(t, r.body, `"mode":{"value":"auto"}`)

	require.NoError(t, e.store.SyncDictionaries(context.Background()))
	doc, err := dpc.ParseFile(filepath.Join(e.dir, "7.dpc"))
	require.NoError(t, err)
	assert.Equal(t, "auto", doc.Get(dpc.ConfigKey("mode", "value"), ""))

	r = e.do(t, allowAll, post("add", "target=key&dictserial=7&key=mode&value=again"))
	_, msg := errorResult(t, r)
	assert.Equal(t, "key already exists", msg)

	r = e.do(t, allowAll, post("update", "target=key&dictserial=7&key=mode&value=manual&cfg_type=select"))
	require.Equal(t, okBody, r.body)
	d, _ := e.store.Find(7)
	m, _ := d.Match("mode")
	assert.Equal(t, "manual", m.Value)

	r = e.do(t, webconn.Permissions{ChangeKey: true}, post("remove", "target=key&dictserial=7&key=mode"))
	assert.Equal(t, "HTTP/1.1 403 Forbidden", r.status)

	r = e.do(t, allowAll, post("remove", "target=key&dictserial=7&key=mode"))
	require.Equal(t, okBody, r.body)
	_, ok := d.Match("mode")
	assert.False(t, ok)
}

func TestUpdateAndRemoveDictionary(t *testing.T) {
	e := newEnv(t, true, map[string]string{"7.dpc": sensorDPC})

	r := e.do(t, webconn.Permissions{}, post("update", "target=dictionary&dictserial=7&label=Kitchen"))
	assert.Equal(t, "HTTP/1.1 403 Forbidden", r.status)

	r = e.do(t, allowAll, post("update", "target=dictionary&label=Kitchen"))
	_, msg := errorResult(t, r)
	assert.Equal(t, "missing dictserial", msg)

	r = e.do(t, allowAll, post("update", "target=dictionary&dictserial=7&label=Kitchen"))
	require.Equal(t, okBody, r.body)
	assert.Equal(t, []store.Info{{Serial: 7, Label: "Kitchen", Generation: "g1"}}, e.store.Dictionaries())

	r = e.do(t, allowAll, post("remove", "target=dictionary&dictserial=7"))
	require.Equal(t, okBody, r.body)
	assert.Empty(t, e.store.Dictionaries())
	assert.NoFileExists(t, filepath.Join(e.dir, "7.dpc"))

	r = e.do(t, allowAll, post("remove", "target=dictionary&dictserial=7"))
	_, msg = errorResult(t, r)
	assert.Equal(t, "Invalid Dictionary", msg)
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("/api/v1"))
	assert.True(t, Match("/api/v1/dictionary"))
	assert.False(t, Match("/api/v10"))
	assert.False(t, Match("/index.html"))
}
