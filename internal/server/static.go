package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/webconn"
)

// ChunkSize is the size of each write when streaming a file.
const ChunkSize = 32 * 1024

// serveFile maps the request path onto the docroot.
func (s *Server) serveFile(c *webconn.Conn) error {
	req := c.Request()
	if req.Method != "GET" && req.Method != "HEAD" {
		return c.WriteErr(status.NewUnsupported("method %s not allowed", req.Method))
	}
	if s.docRoot == "" {
		return c.NotFound()
	}

	uri := req.Path
	if uri == "/" {
		uri = "/index.html"
	}

	target, ok := s.resolve(uri)
	if !ok {
		return c.NotFound()
	}
	fi, err := os.Stat(target)
	if err != nil {
		return c.NotFound()
	}
	if fi.IsDir() {
		if !strings.HasSuffix(uri, "/") {
			return c.Redirect(s.location(req))
		}
		if target, ok = s.resolve(uri + "index.html"); !ok {
			return c.NotFound()
		}
		if fi, err = os.Stat(target); err != nil || fi.IsDir() {
			return c.NotFound()
		}
	}

	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return c.WriteErr(status.NewAccess("access denied"))
		}
		return c.NotFound()
	}
	defer f.Close()

	if err := c.WriteHeader(http.StatusOK, s.cfg.WWW.MimeType(target)); err != nil {
		return err
	}
	if req.Method == "HEAD" {
		return nil
	}
	return copyChunks(c, f)
}

// resolve joins uri onto the docroot and canonicalizes the result. It fails
// when the path does not exist or lands outside the canonical docroot.
func (s *Server) resolve(uri string) (string, bool) {
	resolved, err := filepath.EvalSymlinks(s.docRoot + filepath.FromSlash(uri))
	if err != nil {
		return "", false
	}
	if resolved, err = filepath.Abs(resolved); err != nil {
		return "", false
	}
	if resolved != s.docRoot && !strings.HasPrefix(resolved, s.docRoot+string(filepath.Separator)) {
		logging.Warn("Request resolved outside docroot", zap.String("uri", uri))
		return "", false
	}
	return resolved, true
}

// location builds the redirect target for a directory request.
func (s *Server) location(req *webconn.Request) string {
	host := s.cfg.Server.ServerHost
	if host == "" {
		host = req.Header("Host")
	} else if p := s.cfg.Server.Port; p != 80 {
		host = fmt.Sprintf("%s:%d", host, p)
	}
	if host == "" {
		host = "localhost"
	}
	uri, _, _ := strings.Cut(req.URI, "?")
	return "http://" + host + uri + "/"
}

func copyChunks(w io.Writer, r io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return status.Wrap(status.IO, err, "read failed")
		}
	}
}
