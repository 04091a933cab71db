package webconn

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/dictserver/internal/config"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/protocol"
	"github.com/muurk/dictserver/internal/status"
)

// exchange runs handle on the server side of a pipe after reading raw as
// the request, and returns everything the server sent.
func exchange(t *testing.T, opts Options, raw string, handle func(c *Conn, err error)) string {
	t.Helper()
	srv, cli := net.Pipe()

	go func() {
		defer func() { _ = srv.Close() }()
		c := New(srv, opts)
		_, err := c.ReadRequest()
		handle(c, err)
		c.Finish(time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC))
	}()
	go func() {
		_, _ = io.WriteString(cli, raw)
	}()

	out, err := io.ReadAll(cli)
	require.NoError(t, err)
	return string(out)
}

const jsonHead = "HTTP/1.1 200 OK\r\nServer: dictserver\r\nConnection: close\r\nContent-Type: application/json\r\n\r\n"

func TestWriteStatus(t *testing.T) {
	out := exchange(t, Options{}, "POST /api/v1/dictionary/add HTTP/1.1\r\nContent-Length: 0\r\n\r\n",
		func(c *Conn, err error) {
			require.NoError(t, err)
			assert.NoError(t, c.WriteStatus())
		})
	assert.Equal(t, jsonHead+`{"content":"status","version":1,"result":0}`, out)
}

func TestNoCacheHeaders(t *testing.T) {
	out := exchange(t, Options{NoCache: true}, "GET / HTTP/1.1\r\n\r\n", func(c *Conn, err error) {
		require.NoError(t, err)
		assert.NoError(t, c.WriteHeader(200, "text/html"))
	})
	assert.Equal(t, "HTTP/1.1 200 OK\r\nServer: dictserver\r\n"+
		"Cache-Control: no-cache, no-store, must-revalidate\r\nPragma: no-cache\r\nExpires: 0\r\n"+
		"Connection: close\r\nContent-Type: text/html\r\n\r\n", out)
}

func TestWriteErr(t *testing.T) {
	out := exchange(t, Options{}, "GET /api/v1/dictionary?action=get&what=dictionary&dictserial=9 HTTP/1.1\r\n\r\n",
		func(c *Conn, err error) {
			require.NoError(t, err)
			assert.NoError(t, c.WriteErr(status.NewInvalidArg(`no "dictionary" 9`)))
		})
	assert.Equal(t, "HTTP/1.1 422 Unprocessable Entity\r\nServer: dictserver\r\nConnection: close\r\n"+
		"Content-Type: application/json\r\n\r\n"+
		`{"request":"/api/v1/dictionary?action=get&what=dictionary&dictserial=9","result":21,`+
		`"response":{"msg":"no \"dictionary\" 9"}}`, out)
}

func TestHeadSuppressesBody(t *testing.T) {
	out := exchange(t, Options{}, "HEAD /index.html HTTP/1.1\r\n\r\n", func(c *Conn, err error) {
		require.NoError(t, err)
		require.NoError(t, c.WriteHeader(200, "text/html"))
		n, err := c.Write([]byte("<html></html>"))
		assert.NoError(t, err)
		assert.Equal(t, 13, n)
	})
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"), "got %q", out)
}

func TestNotFoundEscapesURI(t *testing.T) {
	out := exchange(t, Options{}, "GET /<script> HTTP/1.1\r\n\r\n", func(c *Conn, err error) {
		require.NoError(t, err)
		assert.NoError(t, c.NotFound())
	})
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 404 Not Found\r\n"))
	assert.Contains(t, out, "The requested URL /&lt;script&gt; was not found")
}

func TestRedirect(t *testing.T) {
	out := exchange(t, Options{}, "GET /docs HTTP/1.1\r\n\r\n", func(c *Conn, err error) {
		require.NoError(t, err)
		assert.NoError(t, c.Redirect("http://host:8080/docs/"))
		assert.Error(t, c.WriteHeader(200, "text/html"), "only one header per exchange")
	})
	assert.Equal(t, "HTTP/1.1 301 Moved Permanently\r\nServer: dictserver\r\n"+
		"Location: http://host:8080/docs/\r\nConnection: close\r\nContent-Type: text/html\r\n\r\n", out)
}

func TestAccessLogRecorded(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{AccessLog: logging.NewAccessLogWriter(&buf)}
	exchange(t, opts, "GET /a?b=c HTTP/1.0\r\n\r\n", func(c *Conn, err error) {
		require.NoError(t, err)
		require.NoError(t, c.WriteHeader(200, "text/plain"))
		_, _ = c.Write([]byte("hello"))
	})
	assert.Equal(t, `pipe - - [09/Mar/2024:14:05:06 +0000] "GET /a?b=c HTTP/1.0" 200 5`+"\n", buf.String())
}

func TestAcceptKey(t *testing.T) {
	// example handshake from RFC 6455 section 1.3
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestUpgradeSwitchesToFrames(t *testing.T) {
	raw := "GET /phidgets HTTP/1.1\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	out := exchange(t, Options{}, raw, func(c *Conn, err error) {
		require.NoError(t, err)
		require.True(t, c.Request().IsUpgrade())
		require.NoError(t, c.Upgrade())
		assert.True(t, c.Upgraded())
		_, err = c.Write([]byte("hi"))
		assert.NoError(t, err)
	})

	br := bufio.NewReader(strings.NewReader(out))
	head := ""
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		head += line
		if line == "\r\n" {
			break
		}
	}
	assert.Equal(t, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n", head)

	f, err := protocol.ReadFrame(br)
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.OpcodeBinary), f.Opcode)
	assert.Equal(t, "hi", string(f.Payload))

	f, err = protocol.ReadFrame(br)
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.OpcodeClose), f.Opcode, "finish sends a close frame")
}

func TestUpgradeRequiresKey(t *testing.T) {
	exchange(t, Options{}, "GET /phidgets HTTP/1.1\r\nConnection: Upgrade\r\n\r\n", func(c *Conn, err error) {
		require.NoError(t, err)
		assert.Equal(t, status.InvalidArg, status.CodeOf(c.Upgrade()))
		assert.False(t, c.Upgraded())
		_ = c.WriteErr(status.NewInvalidArg("missing key"))
	})
}

func TestPermissionsFrom(t *testing.T) {
	p := PermissionsFrom(config.WebAPIConfig{Enabled: true, AddKey: true, RemoveDictionary: true})
	assert.Equal(t, Permissions{AddKey: true, RemoveDictionary: true}, p)
}
