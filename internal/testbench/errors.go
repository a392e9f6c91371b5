package testbench

import "errors"

// Usage errors. These signal a broken contract between the stack harness and
// the testbench; the offending report is rejected and the recorded state is left untouched.
var (
	ErrNoActiveTestcase = errors.New("no active testcase")
	ErrUnknownTestcase  = errors.New("unknown testcase")
	ErrAlreadyReported  = errors.New("field already reported")
	ErrTerminalState    = errors.New("testcase already in terminal state")
	ErrInvalidKey       = errors.New("invalid key")
)
