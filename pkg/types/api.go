package types

// Request and response bodies of the HTTP reporting API

// StartRequest opens a new testcase with the advertised capability masks
type StartRequest struct {
	EIAMask uint8 `json:"eia_mask"`
	EEAMask uint8 `json:"eea_mask"`
}

// StartResponse carries the identifier of the new testcase
type StartResponse struct {
	ID      uint64 `json:"id"`
	EIAMask uint8  `json:"eia_mask"`
	EEAMask uint8  `json:"eea_mask"`
	Mutator string `json:"mutator,omitempty"`
}

// SMCRequest reports the algorithms selected by a security mode command
type SMCRequest struct {
	EIA uint8 `json:"eia"`
	EEA uint8 `json:"eea"`
}

// RejectRequest reports an attach reject
type RejectRequest struct {
	Cause uint8 `json:"cause"`
}

// KeyRequest reports a derived key, hex encoded
type KeyRequest struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// PCAPRequest attaches capture file paths
type PCAPRequest struct {
	NAS string `json:"nas"`
	MAC string `json:"mac"`
}

// ResultResponse is the verdict of the run
type ResultResponse struct {
	Pass bool `json:"pass"`
}

// StatusResponse answers the stack queries for one testcase, the active one
// unless ?id=N names another
type StatusResponse struct {
	ID          uint64 `json:"id"`
	Finished    bool   `json:"finished"`
	Connected   bool   `json:"connected"`
	Interesting bool   `json:"interesting"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"` // machine readable usage error, see ErrorCode*
}

// Usage error codes carried by ErrorResponse
const (
	ErrorCodeNoActiveTestcase = "no_active_testcase"
	ErrorCodeUnknownTestcase  = "unknown_testcase"
	ErrorCodeAlreadyReported  = "already_reported"
	ErrorCodeTerminalState    = "terminal_state"
	ErrorCodeInvalidKey       = "invalid_key"
)

// HealthResponse is a point-in-time view of the server process. The testcase
// arena only grows, so long serve runs are watched through the heap counters.
type HealthResponse struct {
	RunID       string  `json:"run_id"`
	Uptime      string  `json:"uptime"`
	Testcases   int     `json:"testcases"`
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	HeapInuseMB float64 `json:"heap_inuse_mb"`
	HeapObjects uint64  `json:"heap_objects"`
	NumGC       uint32  `json:"num_gc"`
	WSClients   int     `json:"ws_clients"`
	Published   int64   `json:"published"`
	Dropped     int64   `json:"dropped"`
}

// Message is a websocket frame
type Message struct {
	Type string      `json:"type"` // event, stats
	Data interface{} `json:"data"`
}
