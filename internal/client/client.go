// Package client reports into a remote testbench over its HTTP API. A Client
// satisfies the same reporter interfaces as the in-process testbench, so a
// stack harness can switch between the two without code changes.
package client

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// Options configures the HTTP client
type Options struct {
	BaseURL             string
	Timeout             time.Duration
	MaxConnsPerHost     int
	MaxIdleConnDuration time.Duration
	UserAgent           string

	// Dial overrides the network dialer, e.g. with an in-memory listener
	Dial fasthttp.DialFunc
	Log  *logrus.Entry
}

// DefaultOptions returns sensible defaults
func DefaultOptions() *Options {
	return &Options{
		BaseURL:             "http://127.0.0.1:8088",
		Timeout:             5 * time.Second,
		MaxConnsPerHost:     16,
		MaxIdleConnDuration: 10 * time.Second,
		UserAgent:           "ltesec/1.0",
	}
}

// Client wraps fasthttp.Client with the reporting API
type Client struct {
	client    *fasthttp.Client
	base      string
	timeout   time.Duration
	userAgent string
	log       *logrus.Entry

	// testcase pins reports to one testcase; 0 targets the active one
	testcase testbench.TestcaseID
}

// New creates a client for the API at opts.BaseURL
func New(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Log
	if log == nil {
		log = logger.ClientLog
	}

	client := &fasthttp.Client{
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		MaxIdleConnDuration: opts.MaxIdleConnDuration,
		ReadTimeout:         opts.Timeout,
		WriteTimeout:        opts.Timeout,
		Dial:                opts.Dial,
	}

	return &Client{
		client:    client,
		base:      strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		log:       log,
	}
}

// ForTestcase returns a client whose reports and stack queries target testcase
// id instead of the active one
func (c *Client) ForTestcase(id testbench.TestcaseID) *Client {
	cp := *c
	cp.testcase = id
	return &cp
}

// APIError is a non-2xx answer of the server. It matches the testbench
// sentinel errors with errors.Is when the server sent a usage error code.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the error code back onto the testbench sentinel
func (e *APIError) Unwrap() error {
	switch e.Code {
	case types.ErrorCodeNoActiveTestcase:
		return testbench.ErrNoActiveTestcase
	case types.ErrorCodeUnknownTestcase:
		return testbench.ErrUnknownTestcase
	case types.ErrorCodeAlreadyReported:
		return testbench.ErrAlreadyReported
	case types.ErrorCodeTerminalState:
		return testbench.ErrTerminalState
	case types.ErrorCodeInvalidKey:
		return testbench.ErrInvalidKey
	}
	return nil
}

// do sends a request and decodes a JSON answer into out, or the raw body into
// out when it is a *string
func (c *Client) do(method, path string, in, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.SetUserAgent(c.userAgent)

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	start := time.Now()
	if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		c.log.WithError(err).WithField("path", path).Error("request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.WithFields(logrus.Fields{
		"path":    path,
		"status":  resp.StatusCode(),
		"latency": time.Since(start),
	}).Debug("request")

	if status := resp.StatusCode(); status >= fasthttp.StatusMultipleChoices {
		apiErr := &APIError{Status: status, Message: string(resp.Body())}
		var e types.ErrorResponse
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.Code = e.Code
		}
		return apiErr
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *string:
		*v = string(resp.Body())
		return nil
	default:
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
}

// pinned appends ?id=N to path when the client is pinned to a testcase
func (c *Client) pinned(path string) string {
	if c.testcase == 0 {
		return path
	}
	return path + "?id=" + strconv.FormatUint(uint64(c.testcase), 10)
}

// report posts to a reporting route, routed to the pinned testcase if any
func (c *Client) report(path string, in interface{}) error {
	return c.do(fasthttp.MethodPost, c.pinned(path), in, nil)
}

// --- harness ---

// StartTestcase opens a testcase on the server and makes it active
func (c *Client) StartTestcase(eiaMask, eeaMask secalg.CapabilityMask) (testbench.TestcaseID, error) {
	var resp types.StartResponse
	req := types.StartRequest{EIAMask: uint8(eiaMask), EEAMask: uint8(eeaMask)}
	if err := c.do(fasthttp.MethodPost, "/api/testcases", req, &resp); err != nil {
		return 0, err
	}
	return testbench.TestcaseID(resp.ID), nil
}

// Next opens a testcase with the server's next mutated mask pair
func (c *Client) Next() (types.StartResponse, error) {
	var resp types.StartResponse
	err := c.do(fasthttp.MethodPost, "/api/testcases/next", nil, &resp)
	return resp, err
}

// SetPCAP attaches capture file paths
func (c *Client) SetPCAP(nasPath, macPath string) error {
	return c.report("/api/pcap", types.PCAPRequest{NAS: nasPath, MAC: macPath})
}

// DeclareTimeout marks the testcase finished
func (c *Client) DeclareTimeout() error {
	return c.report("/api/timeout", nil)
}

// Summary renders every testcase of the run
func (c *Client) Summary() (string, error) {
	var s string
	err := c.do(fasthttp.MethodGet, "/api/summary", nil, &s)
	return s, err
}

// CurrentSummary renders the active testcase
func (c *Client) CurrentSummary() (string, error) {
	var s string
	err := c.do(fasthttp.MethodGet, "/api/summary/current", nil, &s)
	return s, err
}

// Result returns the run verdict
func (c *Client) Result() (bool, error) {
	var r types.ResultResponse
	err := c.do(fasthttp.MethodGet, "/api/result", nil, &r)
	return r.Pass, err
}

// Stats returns the aggregate counters of the run
func (c *Client) Stats() (testbench.Stats, error) {
	var st testbench.Stats
	err := c.do(fasthttp.MethodGet, "/api/stats", nil, &st)
	return st, err
}

// Entries returns every testcase of the run
func (c *Client) Entries() ([]testbench.Entry, error) {
	var entries []testbench.Entry
	err := c.do(fasthttp.MethodGet, "/api/testcases", nil, &entries)
	return entries, err
}

// Health returns the server's runtime counters
func (c *Client) Health() (types.HealthResponse, error) {
	var h types.HealthResponse
	err := c.do(fasthttp.MethodGet, "/api/health", nil, &h)
	return h, err
}

// --- NAS ---

func (c *Client) ReportNAS() error {
	return c.report("/api/report/nas", nil)
}

func (c *Client) ReportAttachAccept() error {
	return c.report("/api/report/nas/attach-accept", nil)
}

func (c *Client) ReportAttachReject(cause uint8) error {
	return c.report("/api/report/nas/attach-reject", types.RejectRequest{Cause: cause})
}

func (c *Client) ReportNASSecurityModeCommand(eia, eea secalg.Algorithm) error {
	return c.report("/api/report/nas/smc", types.SMCRequest{EIA: uint8(eia), EEA: uint8(eea)})
}

// --- RRC ---

func (c *Client) ReportRRCSecurityModeCommand(eia, eea secalg.Algorithm) error {
	return c.report("/api/report/rrc/smc", types.SMCRequest{EIA: uint8(eia), EEA: uint8(eea)})
}

func (c *Client) ReportRRCKey(kt testbench.KeyType, key []byte) error {
	return c.report("/api/report/rrc/key", types.KeyRequest{Type: kt.String(), Key: hex.EncodeToString(key)})
}

// --- stack queries ---

// Status returns the stack queries in one round trip, for the pinned
// testcase if any, else for the active one
func (c *Client) Status() (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.do(fasthttp.MethodGet, c.pinned("/api/status"), nil, &st)
	return st, err
}

func (c *Client) IsFinished() (bool, error) {
	st, err := c.Status()
	return st.Finished, err
}

func (c *Client) IsInteresting() (bool, error) {
	st, err := c.Status()
	return st.Interesting, err
}

func (c *Client) IsConnected() (bool, error) {
	st, err := c.Status()
	return st.Connected, err
}

// CloseIdleConnections releases pooled connections
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// DialListener adapts a listener's Dial method, e.g. fasthttputil.InmemoryListener.Dial
func DialListener(dial func() (net.Conn, error)) fasthttp.DialFunc {
	return func(string) (net.Conn, error) {
		return dial()
	}
}

var (
	_ testbench.EventReporter = (*Client)(nil)
	_ testbench.StackQuery    = (*Client)(nil)
)
