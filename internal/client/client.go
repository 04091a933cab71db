package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/version"
)

const (
	// APIPath is the dictionary web API below the server base URL.
	APIPath = "/api/v1/dictionary"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 10 * time.Second
)

// Client talks to the dictionary web API of one server.
type Client struct {
	// BaseURL is the server root, e.g. "http://10.0.0.5:8080"
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for failed requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff enables exponential backoff for retries
	UseExponentialBackoff bool
}

// New creates a client for baseURL. A bare host:port gets an http scheme.
func New(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		BaseURL:               strings.TrimRight(baseURL, "/"),
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// DictionaryInfo is one entry of the dictionaries listing.
type DictionaryInfo struct {
	Serial     int    `json:"sn"`
	Label      string `json:"label"`
	Generation string `json:"gen"`
}

// Row is one logged change.
type Row struct {
	ID   int64  `json:"id"`
	Gen  string `json:"gen"`
	Time string `json:"time"`
	Key  string `json:"key"`
	Val  string `json:"val"`
}

// DataResult is the JSON answer of a data query.
type DataResult struct {
	Dictionary string `json:"dictionary"`
	Version    int    `json:"version"`
	Data       []Row  `json:"data"`
	Records    int    `json:"records"`
}

// Query filters a data request. Zero values are not sent.
type Query struct {
	Gen       string
	StartID   *int64
	EndID     *int64
	StartDate string
	EndDate   string
	Key       string
	Interval  int // seconds
}

func (q Query) values(sn int) url.Values {
	v := url.Values{}
	v.Set("action", "data")
	v.Set("dictserial", strconv.Itoa(sn))
	if q.Gen != "" {
		v.Set("gen", q.Gen)
	}
	if q.StartID != nil {
		v.Set("startid", strconv.FormatInt(*q.StartID, 10))
	}
	if q.EndID != nil {
		v.Set("endid", strconv.FormatInt(*q.EndID, 10))
	}
	if q.StartDate != "" {
		v.Set("startdate", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("enddate", q.EndDate)
	}
	if q.Key != "" {
		v.Set("key", q.Key)
	}
	if q.Interval > 0 {
		v.Set("interval", strconv.Itoa(q.Interval))
	}
	return v
}

// NewDictionary describes a dictionary to create. Serial 0 lets the server
// choose.
type NewDictionary struct {
	Serial     int
	Label      string
	Generation string
	Disabled   bool
	ConfigAdd  bool
}

// Dictionaries lists the dictionaries known to the server.
func (c *Client) Dictionaries(ctx context.Context) ([]DictionaryInfo, error) {
	v := url.Values{"action": {"get"}, "what": {"dictionaries"}}
	var out struct {
		Data []DictionaryInfo `json:"data"`
	}
	if err := c.getJSON(ctx, v, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Dictionary returns the config document of dictionary sn as JSON.
func (c *Client) Dictionary(ctx context.Context, sn int) (json.RawMessage, error) {
	v := url.Values{"action": {"get"}, "what": {"dictionary"}, "dictserial": {strconv.Itoa(sn)}}
	var out json.RawMessage
	if err := c.getJSON(ctx, v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Data runs a data query.
func (c *Client) Data(ctx context.Context, sn int, q Query) (*DataResult, error) {
	var out DataResult
	if err := c.getJSON(ctx, q.values(sn), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DataCSV runs a data query in CSV format and copies the body to w.
func (c *Client) DataCSV(ctx context.Context, sn int, q Query, w io.Writer) error {
	v := q.values(sn)
	v.Set("format", "csv")
	body, err := c.get(ctx, v)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// AddDictionary creates a dictionary.
func (c *Client) AddDictionary(ctx context.Context, nd NewDictionary) error {
	v := url.Values{"target": {"dictionary"}, "label": {nd.Label}}
	if nd.Serial > 0 {
		v.Set("sn", strconv.Itoa(nd.Serial))
	}
	if nd.Generation != "" {
		v.Set("generation", nd.Generation)
	}
	if nd.Disabled {
		v.Set("enabled", "false")
	}
	if nd.ConfigAdd {
		v.Set("configadd", "true")
	}
	return c.post(ctx, "add", v)
}

// AddKey adds a config key to dictionary sn.
func (c *Client) AddKey(ctx context.Context, sn int, key, value string) error {
	return c.post(ctx, "add", url.Values{
		"target":     {"key"},
		"dictserial": {strconv.Itoa(sn)},
		"key":        {key},
		"value":      {value},
	})
}

// UpdateDictionary changes dictionary settings: enabled, label, generation
// or configadd.
func (c *Client) UpdateDictionary(ctx context.Context, sn int, fields url.Values) error {
	v := cloneValues(fields)
	v.Set("target", "dictionary")
	v.Set("dictserial", strconv.Itoa(sn))
	return c.post(ctx, "update", v)
}

// UpdateKey changes a key's value, policy flags or cfg_* layout fields.
func (c *Client) UpdateKey(ctx context.Context, sn int, key string, fields url.Values) error {
	v := cloneValues(fields)
	v.Set("target", "key")
	v.Set("dictserial", strconv.Itoa(sn))
	v.Set("key", key)
	return c.post(ctx, "update", v)
}

// RemoveDictionary removes dictionary sn.
func (c *Client) RemoveDictionary(ctx context.Context, sn int) error {
	return c.post(ctx, "remove", url.Values{
		"target":     {"dictionary"},
		"dictserial": {strconv.Itoa(sn)},
	})
}

// RemoveKey removes a config key from dictionary sn.
func (c *Client) RemoveKey(ctx context.Context, sn int, key string) error {
	return c.post(ctx, "remove", url.Values{
		"target":     {"key"},
		"dictserial": {strconv.Itoa(sn)},
		"key":        {key},
	})
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, v url.Values, out any) error {
	body, err := c.get(ctx, v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewParseError("failed to parse JSON response", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, v url.Values) ([]byte, error) {
	return c.withRetry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+APIPath+"?"+v.Encode(), nil)
		if err != nil {
			return nil, NewNetworkError("failed to create GET request", err)
		}
		return c.do(req)
	})
}

func (c *Client) post(ctx context.Context, op string, v url.Values) error {
	_, err := c.withRetry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+APIPath+"/"+op,
			strings.NewReader(v.Encode()))
		if err != nil {
			return nil, NewNetworkError("failed to create POST request", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		body, err := c.do(req)
		if err != nil {
			return nil, err
		}
		return body, checkResult(http.StatusOK, body)
	})
	return err
}

// withRetry runs attempt until it succeeds, fails with a non-retryable
// error, or runs out of retries.
func (c *Client) withRetry(ctx context.Context, attempt func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	delay := c.RetryDelay

	for i := 0; i <= c.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, NewNetworkError("request cancelled", ctx.Err())
			case <-time.After(delay):
			}
			if c.UseExponentialBackoff {
				delay *= 2
				if delay > c.MaxRetryDelay {
					delay = c.MaxRetryDelay
				}
			}
		}

		body, err := attempt()
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", version.UserAgent("dictctl"))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(req.Method+" request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		if err := checkResult(resp.StatusCode, body); err != nil {
			return nil, err
		}
		return nil, NewHTTPError(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}
	return body, nil
}

// checkResult decodes a result body. A body that is not a result object
// passes when the HTTP status was a success.
func checkResult(httpStatus int, body []byte) error {
	var res struct {
		Result   *int `json:"result"`
		Response struct {
			Msg string `json:"msg"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.Result == nil {
		if httpStatus == http.StatusOK {
			return nil
		}
		return NewHTTPError(httpStatus, fmt.Sprintf("unexpected status code: %d", httpStatus))
	}
	code := status.Code(*res.Result)
	if code == status.OK {
		return nil
	}
	msg := res.Response.Msg
	if msg == "" {
		msg = code.String()
	}
	return NewAPIError(httpStatus, code, msg)
}
