package webconn

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/config"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/protocol"
	"github.com/muurk/dictserver/internal/status"
)

// ServerName is sent in the Server header of every response.
const ServerName = "dictserver"

// websocketGUID is appended to the client key to form the accept key.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Permissions records which web API operations a connection may perform.
type Permissions struct {
	AddDictionary    bool
	ChangeDictionary bool
	RemoveDictionary bool
	AddKey           bool
	RemoveKey        bool
	ChangeKey        bool
}

// PermissionsFrom copies the operation flags out of the web API config.
func PermissionsFrom(c config.WebAPIConfig) Permissions {
	return Permissions{
		AddDictionary:    c.AddDictionary,
		ChangeDictionary: c.ChangeDictionary,
		RemoveDictionary: c.RemoveDictionary,
		AddKey:           c.AddKey,
		RemoveKey:        c.RemoveKey,
		ChangeKey:        c.ChangeKey,
	}
}

// Options configures a Conn.
type Options struct {
	Permissions Permissions
	NoCache     bool
	AccessLog   *logging.AccessLog
}

// Conn is the state of one accepted connection. It serves a single HTTP
// exchange, or a stream of messages after Upgrade.
type Conn struct {
	ID          string
	Peer        string
	Permissions Permissions

	nc      net.Conn
	br      *bufio.Reader
	r       io.Reader
	w       io.Writer
	ws      *protocol.Conn
	noCache bool
	access  *logging.AccessLog

	req        *Request
	status     int
	headerSent bool
	bodySize   int64
}

// New wraps an accepted connection.
func New(nc net.Conn, opts Options) *Conn {
	br := bufio.NewReaderSize(nc, protocol.ReadBufferSize)
	return &Conn{
		ID:          uuid.NewString(),
		Peer:        nc.RemoteAddr().String(),
		Permissions: opts.Permissions,
		nc:          nc,
		br:          br,
		r:           br,
		w:           nc,
		noCache:     opts.NoCache,
		access:      opts.AccessLog,
	}
}

// ReadRequest reads and parses the request. On a parse error the partial
// request, if any, is still recorded for the access log.
func (c *Conn) ReadRequest() (*Request, error) {
	req, err := ReadRequest(c.br)
	c.req = req
	if err != nil {
		return req, err
	}
	logging.LogHTTPRequest(c.Peer, req.Method, req.URI, req.headers)
	return req, nil
}

// Request returns the parsed request, or nil before ReadRequest succeeds.
func (c *Conn) Request() *Request {
	return c.req
}

// Read reads from the connection, through the WebSocket framing once
// upgraded.
func (c *Conn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// Write sends body bytes. The body of a HEAD response is discarded.
func (c *Conn) Write(p []byte) (int, error) {
	if c.ws == nil && c.req != nil && c.req.Method == "HEAD" {
		return len(p), nil
	}
	n, err := c.w.Write(p)
	c.bodySize += int64(n)
	if err != nil {
		return n, status.Wrap(status.Pipe, err, "write failed")
	}
	return n, nil
}

// Upgraded reports whether the connection switched to WebSocket framing.
func (c *Conn) Upgraded() bool {
	return c.ws != nil
}

// Status returns the status code sent, or 0 if no response was started.
func (c *Conn) Status() int {
	return c.status
}

// BodySize returns the number of body bytes written so far.
func (c *Conn) BodySize() int64 {
	return c.bodySize
}

// HeaderSent reports whether a response header has been written.
func (c *Conn) HeaderSent() bool {
	return c.headerSent
}

func (c *Conn) writeHead(code int, lines []string) error {
	if c.headerSent {
		return status.New(status.Unexpected, "response already started")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", code, http.StatusText(code))
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	c.headerSent = true
	c.status = code
	if _, err := io.WriteString(c.w, b.String()); err != nil {
		return status.Wrap(status.Pipe, err, "failed to write response header")
	}
	logging.LogHTTPResponse(c.Peer, code, 0)
	return nil
}

// WriteHeader writes the status line and the standard response headers.
func (c *Conn) WriteHeader(code int, contentType string) error {
	lines := []string{"Server: " + ServerName}
	if c.noCache {
		lines = append(lines,
			"Cache-Control: no-cache, no-store, must-revalidate",
			"Pragma: no-cache",
			"Expires: 0",
		)
	}
	lines = append(lines, "Connection: close", "Content-Type: "+contentType)
	return c.writeHead(code, lines)
}

// WriteStatus sends the success envelope of the web API.
func (c *Conn) WriteStatus() error {
	if err := c.WriteHeader(http.StatusOK, "application/json"); err != nil {
		return err
	}
	_, err := io.WriteString(c, `{"content":"status","version":1,"result":0}`)
	return err
}

type errorBody struct {
	Request  string `json:"request"`
	Result   int    `json:"result"`
	Response struct {
		Msg string `json:"msg"`
	} `json:"response"`
}

// WriteError sends the JSON error envelope with an explicit HTTP status.
func (c *Conn) WriteError(httpStatus int, code status.Code, msg string) error {
	body := errorBody{Result: int(code)}
	if c.req != nil {
		body.Request = c.req.URI
	}
	body.Response.Msg = msg
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return err
	}

	if err := c.WriteHeader(httpStatus, "application/json"); err != nil {
		return err
	}
	_, err := c.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return err
}

// WriteErr reports err using its result code and the matching HTTP status.
func (c *Conn) WriteErr(err error) error {
	code := status.CodeOf(err)
	if code == status.Unexpected || code == status.IO {
		logging.Error("Request failed",
			zap.String("remote_addr", c.Peer),
			zap.String("conn_id", c.ID),
			zap.Error(err),
		)
	}
	return c.WriteError(status.HTTPStatus(code), code, status.MessageOf(err))
}

const notFoundPage = `<!DOCTYPE HTML PUBLIC "-//IETF//DTD HTML 2.0//EN">
<html><head>
<title>404 Not Found</title>
</head><body>
<h1>Not Found</h1>
<p>The requested URL %s was not found on this server.</p>
</body></html>
`

// NotFound sends the HTML not found page naming the request URI.
func (c *Conn) NotFound() error {
	if err := c.WriteHeader(http.StatusNotFound, "text/html"); err != nil {
		return err
	}
	uri := ""
	if c.req != nil {
		uri = c.req.URI
	}
	_, err := fmt.Fprintf(c, notFoundPage, html.EscapeString(uri))
	return err
}

// Redirect sends a 301 to location.
func (c *Conn) Redirect(location string) error {
	return c.writeHead(http.StatusMovedPermanently, []string{
		"Server: " + ServerName,
		"Location: " + location,
		"Connection: close",
		"Content-Type: text/html",
	})
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Upgrade completes the WebSocket handshake. Afterwards Read and Write go
// through the frame codec.
func (c *Conn) Upgrade() error {
	key := ""
	if c.req != nil {
		key = c.req.Header("Sec-WebSocket-Key")
	}
	if key == "" {
		return status.NewInvalidArg("missing Sec-WebSocket-Key")
	}
	if err := c.writeHead(http.StatusSwitchingProtocols, []string{
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + AcceptKey(key),
	}); err != nil {
		return err
	}

	c.ws = protocol.NewConn(c.br, c.nc, c.Peer)
	c.r = c.ws
	c.w = c.ws
	logging.LogConnection(c.Peer, c.ID, "websocket_upgraded")
	return nil
}

// Finish records the exchange in the access log and, for an upgraded
// connection, sends a close frame.
func (c *Conn) Finish(at time.Time) {
	if c.ws != nil {
		_ = c.ws.Close()
	}
	if c.req == nil {
		return
	}
	c.access.Record(c.Peer, c.req.Method, c.req.URI, c.req.Major, c.req.Minor, c.status, c.bodySize, at)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
