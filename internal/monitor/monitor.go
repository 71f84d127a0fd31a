// Package monitor periodically writes the engine status to a JSON file so
// external tools can show what the engine is doing.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// StatusFunc returns a JSON-encodable snapshot.
type StatusFunc func() any

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Status   StatusFunc
	Fs       afero.Fs
	Path     string
	Interval time.Duration
	Logger   Logger
}

// Report is the file layout.
type Report struct {
	Time   time.Time `json:"time"`
	Status any       `json:"status"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) (*Service, error) {
	if deps.Status == nil {
		return nil, errors.New("monitor: status func is required")
	}
	if deps.Path == "" {
		return nil, errors.New("monitor: path is required")
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}, nil
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// WriteOnce writes the current status. The file is replaced atomically so
// readers never see a partial document.
func (s *Service) WriteOnce() error {
	data, err := json.MarshalIndent(Report{
		Time:   time.Now().UTC(),
		Status: s.deps.Status(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	if dir := filepath.Dir(s.deps.Path); dir != "." {
		if err := s.deps.Fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating status dir: %w", err)
		}
	}

	tmp := s.deps.Path + ".tmp"
	if err := afero.WriteFile(s.deps.Fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	if err := s.deps.Fs.Rename(tmp, s.deps.Path); err != nil {
		return fmt.Errorf("replacing status: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		if s.deps.Logger != nil {
			s.deps.Logger.Debug("Starting status monitor", "path", s.deps.Path, "interval", s.deps.Interval)
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			if err := s.WriteOnce(); err != nil && s.deps.Logger != nil {
				s.deps.Logger.Error("Error writing status file", "error", err)
			}

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the status monitor and waits for the last write to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
