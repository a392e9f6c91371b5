package scenario

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// maxTraceLine bounds a single JSONL record
const maxTraceLine = 1 << 20

// ReadTraceFile parses a JSONL trace from path
func ReadTraceFile(path string) ([]types.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()
	return ReadTrace(f)
}

// ReadTrace parses one event per line. Blank lines and lines starting with '#'
// are skipped; unknown fields are ignored.
func ReadTrace(r io.Reader) ([]types.Event, error) {
	var events []types.Event

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxTraceLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := ParseTraceLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return events, nil
}

// ParseTraceLine decodes a single JSON record such as {"event":"nas_smc","eia":1,"eea":1}
func ParseTraceLine(line string) (types.Event, error) {
	if !gjson.Valid(line) {
		return types.Event{}, fmt.Errorf("invalid JSON")
	}

	kind := gjson.Get(line, "event")
	if !kind.Exists() {
		return types.Event{}, fmt.Errorf("missing \"event\" field")
	}
	ev := types.Event{Type: types.EventType(kind.String())}
	if !ev.Type.Valid() {
		return types.Event{}, fmt.Errorf("unknown event type: %q", kind.String())
	}

	fields := gjson.GetMany(line, "id", "eia_mask", "eea_mask", "eia", "eea", "cause", "type", "key", "nas", "mac")
	if id := fields[0]; id.Exists() {
		ev.TestcaseID = id.Uint()
		if id.Type != gjson.Number || id.Num < 1 || id.Num != float64(ev.TestcaseID) {
			return types.Event{}, fmt.Errorf("id: want a positive integer, got %s", id.Raw)
		}
	}

	octets := []struct {
		name string
		dst  *uint8
		res  gjson.Result
	}{
		{"eia_mask", &ev.EIAMask, fields[1]},
		{"eea_mask", &ev.EEAMask, fields[2]},
		{"eia", &ev.EIA, fields[3]},
		{"eea", &ev.EEA, fields[4]},
		{"cause", &ev.Cause, fields[5]},
	}
	for _, o := range octets {
		if !o.res.Exists() {
			continue
		}
		v := o.res.Uint()
		if o.res.Type != gjson.Number || o.res.Num < 0 || o.res.Num != float64(v) || v > 0xFF {
			return types.Event{}, fmt.Errorf("%s: want an octet, got %s", o.name, o.res.Raw)
		}
		*o.dst = uint8(v)
	}

	ev.KeyType = fields[6].String()
	ev.Key = fields[7].String()
	ev.NASPcap = fields[8].String()
	ev.MACPcap = fields[9].String()
	return ev, nil
}

// TraceResult is the outcome of replaying a trace
type TraceResult struct {
	Events  int      `json:"events"`
	Started int      `json:"started"`
	Errors  []string `json:"errors,omitempty"`
}

// RunTrace replays a trace sequentially, the way a single stack would report it.
// Events without an id go to the active testcase; usage errors are collected, not fatal.
func (r *Replayer) RunTrace(ctx context.Context, events []types.Event) (*TraceResult, error) {
	res := &TraceResult{}

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("trace interrupted at event %d: %w", i, err)
		}
		res.Events++

		if ev.Type == types.EventStart {
			id := r.tb.StartTestcase(secalg.CapabilityMask(ev.EIAMask), secalg.CapabilityMask(ev.EEAMask))
			res.Started++
			r.log.WithFields(logrus.Fields{"event": i, "id": id}).Debug("Trace started testcase")
			continue
		}

		var target testbench.EventReporter = r.tb
		if ev.TestcaseID != 0 {
			tc, err := r.tb.Handle(testbench.TestcaseID(ev.TestcaseID))
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("event %d (%s): %v", i, ev.Type, err))
				continue
			}
			target = tc
		}
		if err := testbench.Apply(target, ev); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("event %d (%s): %v", i, ev.Type, err))
		}
	}

	r.log.WithFields(logrus.Fields{
		"events":  res.Events,
		"started": res.Started,
		"errors":  len(res.Errors),
	}).Info("Trace replayed")
	return res, nil
}
