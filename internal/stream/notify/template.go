package notify

import (
	"bytes"
	"errors"
	"text/template"
	"time"
)

const DefaultTemplate = `[Stream Inactivity {{.LevelLabel}}]
Stream: {{.StreamID}}
Employer: {{.Employer}}
Employee: {{.Employee}}
Last Activity: {{.LastActivity}}
Inactive For: {{.InactiveFor}}
Threshold: {{.Threshold}}
Unvested: {{.Unvested}}
{{ if .RecommendedAction }}Suggested: {{.RecommendedAction}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	StreamID          string
	Employer          string
	Employee          string
	Level             string
	LevelLabel        string
	LastActivity      string
	InactiveFor       string
	Threshold         string
	Unvested          uint64
	RecommendedAction string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("stream-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("stream template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TemplateDataFor converts an alert into template fields.
func TemplateDataFor(msg AlertMessage) TemplateData {
	return TemplateData{
		StreamID:          msg.StreamID,
		Employer:          msg.Employer,
		Employee:          msg.Employee,
		Level:             string(msg.Level),
		LevelLabel:        levelLabel(msg.Level),
		LastActivity:      time.Unix(msg.LastActivityTime, 0).UTC().Format(time.RFC3339),
		InactiveFor:       (time.Duration(msg.InactiveSeconds) * time.Second).String(),
		Threshold:         (time.Duration(msg.ThresholdSeconds) * time.Second).String(),
		Unvested:          msg.Unvested,
		RecommendedAction: msg.RecommendedAction,
	}
}

func levelLabel(level Level) string {
	switch level {
	case LevelWarning:
		return "Warning"
	case LevelEmergency:
		return "Emergency"
	default:
		return "Notice"
	}
}
