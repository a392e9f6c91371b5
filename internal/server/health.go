package server

import (
	"runtime"
	"time"

	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// Health collects runtime memory stats alongside the testbench and hub counters
func (s *Server) Health() types.HealthResponse {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return types.HealthResponse{
		RunID:       s.tb.RunID(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Testcases:   s.tb.Len(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(m.HeapAlloc) / 1024 / 1024,
		HeapInuseMB: float64(m.HeapInuse) / 1024 / 1024,
		HeapObjects: m.HeapObjects,
		NumGC:       m.NumGC,
		WSClients:   s.hub.Clients(),
		Published:   s.hub.Published(),
		Dropped:     s.hub.Dropped(),
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(s.Health())
}
