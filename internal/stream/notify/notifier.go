package notify

import "context"

// Level is the inactivity level an alert reports.
type Level string

const (
	// LevelWarning means the employee is approaching the emergency threshold.
	LevelWarning Level = "warning"
	// LevelEmergency means the employer may run an emergency withdraw.
	LevelEmergency Level = "emergency"
)

// AlertMessage represents an inactivity notification payload.
type AlertMessage struct {
	StreamID          string            `json:"stream_id"`
	Employer          string            `json:"employer"`
	Employee          string            `json:"employee"`
	Level             Level             `json:"level"`
	LastActivityTime  int64             `json:"last_activity_time"`
	InactiveSeconds   int64             `json:"inactive_seconds"`
	ThresholdSeconds  int64             `json:"threshold_seconds"`
	Unvested          uint64            `json:"unvested"`
	RecommendedAction string            `json:"recommended_action"`
	Meta              map[string]string `json:"meta,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// MultiNotifier forwards alerts to several notifiers and returns the first error.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards msg to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if m == nil {
		return nil
	}
	var firstErr error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
