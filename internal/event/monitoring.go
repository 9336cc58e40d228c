package event

import "log/slog"

// MonitoringHandler logs every event. It is pure observability: no state,
// no side effects beyond the log line.
type MonitoringHandler struct {
	logger *slog.Logger
}

func NewMonitoringHandler() *MonitoringHandler {
	return &MonitoringHandler{logger: slog.Default()}
}

// NewMonitoringHandlerWith logs to the given logger instead of the default.
func NewMonitoringHandlerWith(l *slog.Logger) *MonitoringHandler {
	return &MonitoringHandler{logger: l}
}

func (h *MonitoringHandler) Name() string       { return "monitoring" }
func (h *MonitoringHandler) Handles(Event) bool { return true }

func (h *MonitoringHandler) Handle(e Event) error {
	switch ev := e.(type) {
	case ServiceStartRequested:
		h.logger.Info("service start requested", "service", ev.Name)
	case ServiceStarted:
		h.logger.Info("service started", "service", ev.Name, "pid", ev.PID, "port", ev.Port)
	case ServiceFailed:
		h.logger.Error("service failed", "service", ev.Name, "error", ev.Err)
	case ServiceStopped:
		if ev.ExitCode != nil {
			h.logger.Info("service stopped", "service", ev.Name, "exit_code", *ev.ExitCode)
		} else {
			h.logger.Info("service stopped", "service", ev.Name)
		}
	case ServiceRestartRequested:
		h.logger.Info("service restart requested", "service", ev.Name, "reason", ev.Reason)
	case HealthCheckFailed:
		h.logger.Warn("health check failed", "service", ev.Name, "reason", ev.Reason)
	default:
		h.logger.Info("event", "type", string(e.Type()), "service", e.ServiceName())
	}
	return nil
}
