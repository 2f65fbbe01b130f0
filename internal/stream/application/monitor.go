package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"cascade/internal/observability/metrics"
	stream "cascade/internal/stream/domain"
	streamnotify "cascade/internal/stream/notify"
)

// MonitorReport summarizes one monitor pass.
type MonitorReport struct {
	Scanned   int
	Warning   int
	Emergency int
	Sent      int
}

// Monitor watches active streams for employee inactivity and alerts once per
// stream per level. A refreshed stream is re-armed.
type Monitor struct {
	streams   StreamQuery
	notifier  streamnotify.Notifier
	threshold int64
	warning   int64
	interval  time.Duration
	logger    *log.Logger

	mu   sync.Mutex
	sent map[stream.StreamID]streamnotify.Level
}

// NewMonitor constructs a Monitor. notifier may be nil, in which case only the
// gauges are updated.
func NewMonitor(streams StreamQuery, notifier streamnotify.Notifier, cfg Config, logger *log.Logger) (*Monitor, error) {
	if streams == nil {
		return nil, errors.New("stream monitor: nil stream query")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		streams:   streams,
		notifier:  notifier,
		threshold: int64(cfg.InactivityThreshold / time.Second),
		warning:   int64(cfg.WarningWindow / time.Second),
		interval:  cfg.MonitorInterval,
		logger:    logger,
		sent:      make(map[stream.StreamID]streamnotify.Level),
	}, nil
}

// Start runs the monitor loop until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.logger.Printf("stream monitor: run failed: %v", err)
			}
		}
	}
}

// RunOnce scans active streams and sends due alerts.
func (m *Monitor) RunOnce(ctx context.Context) (MonitorReport, error) {
	now, err := m.streams.Now(ctx)
	if err != nil {
		return MonitorReport{}, err
	}
	active, err := m.streams.ListActive(ctx)
	if err != nil {
		return MonitorReport{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	report := MonitorReport{Scanned: len(active)}
	seen := make(map[stream.StreamID]struct{}, len(active))
	for _, record := range active {
		seen[record.ID] = struct{}{}
		level, ok := m.levelFor(record, now)
		if !ok {
			delete(m.sent, record.ID)
			continue
		}
		if level == streamnotify.LevelEmergency {
			report.Emergency++
		} else {
			report.Warning++
		}
		if m.sent[record.ID] == level {
			continue
		}
		if m.alert(ctx, record, level, now) {
			m.sent[record.ID] = level
			report.Sent++
		}
	}
	for id := range m.sent {
		if _, ok := seen[id]; !ok {
			delete(m.sent, id)
		}
	}

	metrics.SetInactiveStreams(string(streamnotify.LevelWarning), report.Warning)
	metrics.SetInactiveStreams(string(streamnotify.LevelEmergency), report.Emergency)
	return report, nil
}

func (m *Monitor) levelFor(record *stream.Stream, now int64) (streamnotify.Level, bool) {
	switch {
	case stream.InactivityElapsed(record, now, m.threshold):
		return streamnotify.LevelEmergency, true
	case stream.InactivityElapsed(record, now, m.warning):
		return streamnotify.LevelWarning, true
	default:
		return "", false
	}
}

func (m *Monitor) alert(ctx context.Context, record *stream.Stream, level streamnotify.Level, now int64) bool {
	if m.notifier == nil {
		return false
	}
	vested, err := stream.Vested(record.Schedule(), now)
	if err != nil {
		m.logger.Printf("stream monitor: stream=%s vesting failed: %v", record.ID, err)
		return false
	}
	msg := streamnotify.AlertMessage{
		StreamID:          record.ID.String(),
		Employer:          string(record.Employer),
		Employee:          string(record.Employee),
		Level:             level,
		LastActivityTime:  record.LastActivityTime,
		InactiveSeconds:   now - record.LastActivityTime,
		ThresholdSeconds:  m.threshold,
		Unvested:          record.DepositedTotal - vested,
		RecommendedAction: recommendedAction(level),
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		metrics.IncInactivityAlert(string(level), metrics.ResultError)
		m.logger.Printf("stream monitor: stream=%s level=%s notify failed: %v", record.ID, level, err)
		return false
	}
	metrics.IncInactivityAlert(string(level), metrics.ResultSuccess)
	return true
}

func recommendedAction(level streamnotify.Level) string {
	if level == streamnotify.LevelEmergency {
		return "employer may run an emergency withdraw of unvested funds"
	}
	return "employee should withdraw or refresh activity"
}
