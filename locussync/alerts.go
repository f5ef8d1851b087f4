// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locussync

import "log/slog"

// AlertType classifies a user-facing alert.
type AlertType string

const (
	AlertError AlertType = "error"
	AlertInfo  AlertType = "info"
)

// Alert is a fire-and-forget user-facing message. Recoverable sync failures
// terminate here instead of propagating into rendering code.
type Alert struct {
	Message string
	Type    AlertType
}

// Alerter receives alerts. Implementations must not block.
type Alerter interface {
	AddAlert(Alert)
}

// AlertFunc adapts a function to the Alerter interface.
type AlertFunc func(Alert)

// AddAlert implements Alerter.
func (f AlertFunc) AddAlert(a Alert) { f(a) }

// LogAlerter returns an Alerter that writes alerts to a structured logger.
// Used as the default sink when no UI alert channel is wired.
func LogAlerter(logger *slog.Logger) Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return AlertFunc(func(a Alert) {
		switch a.Type {
		case AlertError:
			logger.Error("alert", "message", a.Message)
		default:
			logger.Info("alert", "message", a.Message)
		}
	})
}
