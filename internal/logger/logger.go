// Package logger configures logrus for the testbench and exposes one entry per subsystem.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config controls log output
type Config struct {
	Level        string `yaml:"level"`  // panic, fatal, error, warn, info, debug, trace
	Format       string `yaml:"format"` // text or json
	Path         string `yaml:"path"`   // empty logs to stderr
	ReportCaller bool   `yaml:"report_caller"`
}

// DefaultConfig logs info and above to stderr in text form
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
	}
}

var (
	log  *logrus.Logger
	file *os.File
	mu   sync.Mutex

	TestbenchLog *logrus.Entry
	ScenarioLog  *logrus.Entry
	ServerLog    *logrus.Entry
	ClientLog    *logrus.Entry
	CLILog       *logrus.Entry
)

func init() {
	log = logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	setEntries()
}

func setEntries() {
	TestbenchLog = log.WithField("component", "testbench")
	ScenarioLog = log.WithField("component", "scenario")
	ServerLog = log.WithField("component", "server")
	ClientLog = log.WithField("component", "client")
	CLILog = log.WithField("component", "cli")
}

// Setup applies cfg to the shared logger
func Setup(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)
	log.SetReportCaller(cfg.ReportCaller)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	if cfg.Path == "" {
		log.SetOutput(os.Stderr)
		closeFile()
		return nil
	}

	// open the new file before letting go of the old one, so a failed open
	// keeps the current output writable
	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	closeFile()
	file = f
	return nil
}

func closeFile() {
	if file != nil {
		file.Close()
		file = nil
	}
}

// SetOutput redirects the shared logger, mostly for tests and the TUI
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(w)
}

// Logger returns the root logger
func Logger() *logrus.Logger {
	return log
}

// Close releases the log file, if any
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	log.SetOutput(os.Stderr)
	return err
}
