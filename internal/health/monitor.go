// Package health runs the OCR engine against a rendered fixture on a
// schedule so readiness reflects whether the engine can actually read text.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/naseer2426/ocr-server/internal/imaging"
	"github.com/naseer2426/ocr-server/internal/ocr"
)

const probeText = "HEALTH CHECK"

type Status struct {
	OK        bool      `json:"ok"`
	Engine    string    `json:"engine"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

type Monitor struct {
	engine   ocr.Engine
	language string
	timeout  time.Duration
	log      logrus.FieldLogger
	cron     *cron.Cron
	fixture  []byte

	mu     sync.RWMutex
	status Status
}

// NewMonitor validates schedule (standard cron spec or "@every 5m") and
// renders the probe image once.
func NewMonitor(engine ocr.Engine, language, schedule string, timeout time.Duration, log logrus.FieldLogger) (*Monitor, error) {
	fixture, err := imaging.RenderText(probeText, 4)
	if err != nil {
		return nil, fmt.Errorf("render probe: %w", err)
	}
	m := &Monitor{
		engine:   engine,
		language: language,
		timeout:  timeout,
		log:      log,
		cron:     cron.New(),
		fixture:  fixture,
		status:   Status{Engine: engine.Name(), Error: "not checked yet"},
	}
	if _, err := m.cron.AddFunc(schedule, func() { m.Check(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid health schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start runs one check in the background and starts the scheduler.
func (m *Monitor) Start() {
	go m.Check(context.Background())
	m.cron.Start()
}

// Stop halts the scheduler and waits for a running check.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// Check probes the engine now and stores the outcome.
func (m *Monitor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	res, err := m.engine.Recognize(ctx, ocr.Input{
		ID:        "health-probe",
		Image:     m.fixture,
		MediaType: "image/png",
		Languages: []string{m.language},
	})
	status := Status{
		Engine:    m.engine.Name(),
		LatencyMS: time.Since(start).Milliseconds(),
		CheckedAt: time.Now().UTC(),
	}
	switch {
	case err != nil:
		status.Error = err.Error()
	case !strings.Contains(strings.ToUpper(ocr.Clean(res, 0).Text), "HEALTH"):
		status.Error = "engine did not read the probe text"
	default:
		status.OK = true
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	entry := m.log.WithFields(logrus.Fields{"engine": status.Engine, "latency_ms": status.LatencyMS})
	if status.OK {
		entry.Debug("engine health check passed")
	} else {
		entry.WithField("error", status.Error).Warn("engine health check failed")
	}
	return status
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
