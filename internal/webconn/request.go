package webconn

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/muurk/dictserver/internal/status"
)

// Limits on what a request may carry.
const (
	MaxBodySize = 65536
	MaxHeaders  = 100
)

// Param is one decoded query or form parameter.
type Param struct {
	Name  string
	Value string
}

// Params is an ordered parameter list. Lookups return the first match.
type Params []Param

// Lookup returns the value of the first parameter called name.
func (p Params) Lookup(name string) (string, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// Get returns the value of name, or "" when absent.
func (p Params) Get(name string) string {
	v, _ := p.Lookup(name)
	return v
}

// ParseQuery decodes name=value pairs separated by '&'. Both sides are
// percent-decoded and trailing CR/LF is trimmed from values.
func ParseQuery(s string) (Params, error) {
	var out Params
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, status.NewInvalidArg("malformed parameter %q", pair)
		}
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, status.Wrap(status.InvalidArg, err, "malformed parameter name %q", name)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, status.Wrap(status.InvalidArg, err, "malformed value for %q", n)
		}
		out = append(out, Param{Name: n, Value: strings.TrimRight(v, "\r\n")})
	}
	return out, nil
}

// Request is a parsed HTTP request.
type Request struct {
	Method string
	URI    string // request target as sent
	Path   string // decoded path without the query
	Query  string
	Major  int
	Minor  int

	headers map[string]string // keys lower-cased
	Params  Params
}

// Header returns the value of a header, matched case-insensitively.
func (r *Request) Header(name string) string {
	return r.headers[strings.ToLower(name)]
}

// Headers returns a copy of the header map with lower-cased keys.
func (r *Request) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// IsUpgrade reports whether the Connection header asks for an upgrade.
func (r *Request) IsUpgrade() bool {
	return strings.Contains(strings.ToLower(r.Header("Connection")), "upgrade")
}

// ReadRequest parses one request from br: the request line, the headers and,
// for POST, a form body of exactly Content-Length bytes.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	req, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req.headers = make(map[string]string)
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		if len(req.headers) >= MaxHeaders {
			return nil, status.New(status.NoSpace, "too many headers")
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, status.New(status.Invalid, "malformed header %q", line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if prev, dup := req.headers[key]; dup {
			value = prev + ", " + value
		}
		req.headers[key] = value
	}

	if req.Params, err = ParseQuery(req.Query); err != nil {
		return nil, err
	}
	if req.Method == "POST" {
		body, err := readBody(br, req.Header("Content-Length"))
		if err != nil {
			return nil, err
		}
		form, err := ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		req.Params = append(req.Params, form...)
	}
	return req, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			return "", status.New(status.NoSpace, "request line too long")
		case errors.Is(err, io.EOF):
			return "", status.Wrap(status.EOF, err, "connection closed")
		default:
			return "", status.Wrap(status.IO, err, "failed to read request")
		}
	}
	return string(bytes.TrimRight(line, "\r\n")), nil
}

// parseRequestLine splits "METHOD URI HTTP/major.minor".
func parseRequestLine(line string) (*Request, error) {
	fields := strings.Split(line, " ")
	if len(fields) != 3 || fields[0] == "" || fields[1] == "" {
		return nil, status.New(status.Invalid, "malformed request line %q", line)
	}
	req := &Request{Method: fields[0], URI: fields[1]}

	ver, ok := strings.CutPrefix(fields[2], "HTTP/")
	if !ok {
		return nil, status.New(status.Invalid, "malformed request line %q", line)
	}
	major, minor, ok := strings.Cut(ver, ".")
	if !ok {
		return nil, status.New(status.Invalid, "malformed HTTP version %q", fields[2])
	}
	var err1, err2 error
	req.Major, err1 = strconv.Atoi(major)
	req.Minor, err2 = strconv.Atoi(minor)
	if err1 != nil || err2 != nil {
		return nil, status.New(status.Invalid, "malformed HTTP version %q", fields[2])
	}

	switch req.Method {
	case "GET", "HEAD", "POST":
	default:
		return req, status.NewUnsupported("unsupported method %s", req.Method)
	}

	path, query, _ := strings.Cut(req.URI, "?")
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return nil, status.Wrap(status.InvalidArg, err, "malformed URI %q", req.URI)
	}
	req.Path = decoded
	req.Query = query
	return req, nil
}

func readBody(br *bufio.Reader, length string) ([]byte, error) {
	if length == "" {
		return nil, status.NewInvalidArg("missing content-length")
	}
	n, err := strconv.Atoi(length)
	if err != nil || n < 0 {
		return nil, status.NewInvalidArg("invalid content-length %q", length)
	}
	if n > MaxBodySize {
		return nil, status.New(status.NoSpace, "request body of %d bytes exceeds %d", n, MaxBodySize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, status.Wrap(status.IO, err, "failed to read request body")
	}
	return body, nil
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s HTTP/%d.%d", r.Method, r.URI, r.Major, r.Minor)
}
