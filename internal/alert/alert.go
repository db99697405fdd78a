// Package alert fans out job results to the configured notification
// channels.
package alert

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// Status is the overall outcome of a backup job.
type Status string

const (
	// StatusSuccess means every step completed.
	StatusSuccess Status = "success"
	// StatusWarning means the job produced a usable backup despite
	// recoverable errors.
	StatusWarning Status = "warning"
	// StatusError means the job failed outright.
	StatusError Status = "error"
)

// Event is what gets delivered to a channel.
type Event struct {
	Status   Status
	Instance string
	BackupID string
	RunID    string
	Subject  string
	Message  string
	Details  map[string]string
	Time     time.Time
}

// Channel delivers one event to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Manager holds the configured channels and the level filter.
type Manager struct {
	channels []Channel
	level    string
	log      zerolog.Logger
}

// NewManager builds the channel set from config. Unknown channel names
// were already rejected at config validation.
func NewManager(cfg config.AlertsConfig, log zerolog.Logger) *Manager {
	m := &Manager{level: cfg.Level, log: log}
	if !cfg.Enabled {
		return m
	}
	for _, name := range cfg.Channels {
		switch name {
		case "email":
			m.channels = append(m.channels, NewEmailChannel(cfg.Email))
		case "teams":
			m.channels = append(m.channels, NewTeamsChannel(cfg.Teams))
		case "webhook":
			m.channels = append(m.channels, NewWebhookChannel(cfg.Webhook))
		}
	}
	return m
}

// shouldSend applies the level filter: "all" sends everything,
// "warnings" drops successes, "errors" sends only errors.
func (m *Manager) shouldSend(status Status) bool {
	switch m.level {
	case "all":
		return true
	case "errors":
		return status == StatusError
	default: // warnings
		return status != StatusSuccess
	}
}

// Dispatch sends the event to every channel. Delivery failures are
// logged, never propagated; alerting must not fail a backup job.
func (m *Manager) Dispatch(ctx context.Context, ev Event) {
	if len(m.channels) == 0 || !m.shouldSend(ev.Status) {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, ch := range m.channels {
		if err := ch.Send(ctx, ev); err != nil {
			m.log.Warn().Err(err).Str("channel", ch.Name()).Msg("alert delivery failed")
			continue
		}
		m.log.Debug().Str("channel", ch.Name()).Str("status", string(ev.Status)).Msg("alert sent")
	}
}
