// Package server exposes a testbench over HTTP so that a stack running in another
// process can report into it, and streams accepted reports over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/mutator"
	"github.com/fluxfuzzer/ltesec/internal/report"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/internal/triage"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// Options configures a Server
type Options struct {
	// Hub receives the testbench events; pass hub.Publish as the testbench Listener.
	// A fresh hub is created when nil, which then only carries stats frames.
	Hub *Hub

	// Generator backs POST /api/testcases/next. The route answers 501 when nil.
	Generator *mutator.Generator

	Triager *triage.Triager
	Log     *logrus.Entry
}

// Server represents the reporting API server
type Server struct {
	app     *fiber.App
	tb      *testbench.Testbench
	hub     *Hub
	gen     *mutator.Generator
	triager *triage.Triager
	reports *report.Manager
	log     *logrus.Entry
	started time.Time
}

// New creates a server for tb
func New(tb *testbench.Testbench, opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Log
	if log == nil {
		log = logger.ServerLog
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(0)
	}
	triager := opts.Triager
	if triager == nil {
		triager = triage.New(nil)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:     app,
		tb:      tb,
		hub:     hub,
		gen:     opts.Generator,
		triager: triager,
		reports: report.NewManager(""),
		log:     log,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(cors.New())
	s.app.Use(s.logRequests)

	api := s.app.Group("/api")

	// Harness
	api.Post("/testcases", s.handleStart)
	api.Post("/testcases/next", s.handleNext)
	api.Get("/testcases", s.handleList)
	api.Get("/testcases/:id", s.handleGet)

	// NAS reporter
	api.Post("/report/nas", s.reportHandler(noBody(types.EventNAS)))
	api.Post("/report/nas/smc", s.reportHandler(smcBody(types.EventNASSMC)))
	api.Post("/report/nas/attach-accept", s.reportHandler(noBody(types.EventAttachAccept)))
	api.Post("/report/nas/attach-reject", s.reportHandler(rejectBody))

	// RRC reporter
	api.Post("/report/rrc/smc", s.reportHandler(smcBody(types.EventRRCSMC)))
	api.Post("/report/rrc/key", s.reportHandler(keyBody))

	api.Post("/pcap", s.reportHandler(pcapBody))
	api.Post("/timeout", s.reportHandler(noBody(types.EventTimeout)))

	// Queries
	api.Get("/summary", s.handleSummary)
	api.Get("/summary/current", s.handleCurrentSummary)
	api.Get("/result", s.handleResult)
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/triage", s.handleTriage)
	api.Get("/report", s.handleReport)
	api.Get("/health", s.handleHealth)

	// WebSocket for real-time updates
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))

	s.app.Get("/", s.handleDashboard)
	s.app.Get("/dashboard.js", s.handleDashboardJS)
	s.app.Get("/dashboard.css", s.handleDashboardCSS)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	entry := s.log.WithFields(logrus.Fields{
		"method":  c.Method(),
		"path":    c.Path(),
		"status":  status,
		"latency": time.Since(start),
	})
	if status >= fiber.StatusInternalServerError {
		entry.Warn("request failed")
	} else {
		entry.Debug("request")
	}
	return err
}

// errorHandler maps testbench usage errors onto HTTP status codes
func errorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(types.ErrorResponse{
		Error: err.Error(),
		Code:  codeFor(err),
	})
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, testbench.ErrNoActiveTestcase):
		return types.ErrorCodeNoActiveTestcase
	case errors.Is(err, testbench.ErrUnknownTestcase):
		return types.ErrorCodeUnknownTestcase
	case errors.Is(err, testbench.ErrAlreadyReported):
		return types.ErrorCodeAlreadyReported
	case errors.Is(err, testbench.ErrTerminalState):
		return types.ErrorCodeTerminalState
	case errors.Is(err, testbench.ErrInvalidKey):
		return types.ErrorCodeInvalidKey
	}
	return ""
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, testbench.ErrUnknownTestcase):
		return fiber.StatusNotFound
	case errors.Is(err, testbench.ErrInvalidKey):
		return fiber.StatusBadRequest
	case errors.Is(err, testbench.ErrNoActiveTestcase),
		errors.Is(err, testbench.ErrAlreadyReported),
		errors.Is(err, testbench.ErrTerminalState):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
}

// --- harness ---

func (s *Server) handleStart(c *fiber.Ctx) error {
	var req types.StartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	id := s.tb.StartTestcase(secalg.CapabilityMask(req.EIAMask), secalg.CapabilityMask(req.EEAMask))
	return c.Status(fiber.StatusCreated).JSON(types.StartResponse{
		ID:      uint64(id),
		EIAMask: req.EIAMask,
		EEAMask: req.EEAMask,
	})
}

// handleNext starts a testcase with the next mask pair of the mutator
func (s *Server) handleNext(c *fiber.Ctx) error {
	if s.gen == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "no mutator configured")
	}
	pair := s.gen.Next()
	id := s.tb.StartTestcase(pair.EIA, pair.EEA)
	return c.Status(fiber.StatusCreated).JSON(types.StartResponse{
		ID:      uint64(id),
		EIAMask: uint8(pair.EIA),
		EEAMask: uint8(pair.EEA),
		Mutator: s.gen.Mutator().Name(),
	})
}

func (s *Server) handleList(c *fiber.Ctx) error {
	entries := s.tb.Entries()
	if c.QueryBool("interesting") {
		filtered := make([]testbench.Entry, 0, len(entries))
		for _, e := range entries {
			if e.Summary.IsInteresting {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	return c.JSON(entries)
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return err
	}
	entry, ok := s.tb.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", testbench.ErrUnknownTestcase, id)
	}
	return c.JSON(fiber.Map{
		"snapshot": entry.Snapshot,
		"summary":  entry.Summary,
		"findings": entry.Findings(),
		"text":     entry.Render(),
	})
}

func parseID(raw string) (testbench.TestcaseID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid testcase id: "+raw)
	}
	return testbench.TestcaseID(id), nil
}

// --- reporting ---

type eventParser func(c *fiber.Ctx) (types.Event, error)

// reportHandler routes the parsed event to ?id=N, or to the active testcase
func (s *Server) reportHandler(parse eventParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ev, err := parse(c)
		if err != nil {
			return err
		}

		var target testbench.EventReporter = s.tb
		if raw := c.Query("id"); raw != "" {
			id, err := parseID(raw)
			if err != nil {
				return err
			}
			tc, err := s.tb.Handle(id)
			if err != nil {
				return err
			}
			target = tc
		}

		if err := testbench.Apply(target, ev); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func noBody(t types.EventType) eventParser {
	return func(*fiber.Ctx) (types.Event, error) {
		return types.Event{Type: t}, nil
	}
}

func smcBody(t types.EventType) eventParser {
	return func(c *fiber.Ctx) (types.Event, error) {
		var req types.SMCRequest
		if err := c.BodyParser(&req); err != nil {
			return types.Event{}, badRequest(err)
		}
		return types.Event{Type: t, EIA: req.EIA, EEA: req.EEA}, nil
	}
}

func rejectBody(c *fiber.Ctx) (types.Event, error) {
	var req types.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return types.Event{}, badRequest(err)
	}
	return types.Event{Type: types.EventAttachReject, Cause: req.Cause}, nil
}

func keyBody(c *fiber.Ctx) (types.Event, error) {
	var req types.KeyRequest
	if err := c.BodyParser(&req); err != nil {
		return types.Event{}, badRequest(err)
	}
	return types.Event{Type: types.EventRRCKey, KeyType: req.Type, Key: req.Key}, nil
}

func pcapBody(c *fiber.Ctx) (types.Event, error) {
	var req types.PCAPRequest
	if err := c.BodyParser(&req); err != nil {
		return types.Event{}, badRequest(err)
	}
	return types.Event{Type: types.EventPCAP, NASPcap: req.NAS, MACPcap: req.MAC}, nil
}

// --- queries ---

func (s *Server) handleSummary(c *fiber.Ctx) error {
	return c.SendString(s.tb.Summary())
}

func (s *Server) handleCurrentSummary(c *fiber.Ctx) error {
	text, err := s.tb.CurrentSummary()
	if err != nil {
		return err
	}
	return c.SendString(text)
}

func (s *Server) handleResult(c *fiber.Ctx) error {
	return c.JSON(types.ResultResponse{Pass: s.tb.Result()})
}

// handleStatus answers the stack queries for ?id=N, or for the active testcase
func (s *Server) handleStatus(c *fiber.Ctx) error {
	var id testbench.TestcaseID
	if raw := c.Query("id"); raw != "" {
		var err error
		if id, err = parseID(raw); err != nil {
			return err
		}
	}
	e, err := s.tb.Query(id)
	if err != nil {
		return err
	}
	return c.JSON(types.StatusResponse{
		ID:          uint64(e.Snapshot.ID),
		Finished:    e.Snapshot.Finished(),
		Connected:   e.Snapshot.Connected(),
		Interesting: e.Summary.IsInteresting,
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.tb.Stats())
}

func (s *Server) handleTriage(c *fiber.Ctx) error {
	return c.JSON(s.triager.Cluster(s.tb.Entries()))
}

// handleReport renders ?format=json|html|markdown|text (default json)
func (s *Server) handleReport(c *fiber.Ctx) error {
	format := c.Query("format", "json")
	gen, err := s.reports.Generator(format)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	r := report.FromTestbench(s.tb, "ltesec run "+s.tb.RunID())
	r.SetClusters(s.triager.Cluster(r.Testcases))

	c.Set(fiber.HeaderContentType, gen.ContentType())
	return gen.Generate(r, c.Response().BodyWriter())
}

// --- websocket ---

// handleWebSocket registers the client and sends the current stats
func (s *Server) handleWebSocket(c *websocket.Conn) {
	defer func() {
		s.hub.remove(c)
		c.Close()
	}()

	if err := c.WriteJSON(types.Message{Type: "stats", Data: s.tb.Stats()}); err != nil {
		return
	}
	s.hub.add(c)

	// Keep connection alive
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// App exposes the fiber app for in-process testing
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("Reporting API listening")
	return s.app.Listen(addr)
}

// Serve serves on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("Reporting API listening")
	return s.app.Listener(ln)
}

// Shutdown stops the HTTP server and the event hub
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.hub.Close()
	return s.app.ShutdownWithContext(ctx)
}
