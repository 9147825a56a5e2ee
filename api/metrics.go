package api

import (
	"time"

	log "github.com/sirupsen/logrus"

	"hackboard/board"
)

type boardRequestMetrics struct {
	logger        *log.Logger
	route         string
	start         time.Time
	authDuration  time.Duration
	fetchDuration time.Duration
	mounted       bool
	tasks         int
	errorStage    string
}

func newBoardRequestMetrics(logger *log.Logger, route string) *boardRequestMetrics {
	return &boardRequestMetrics{logger: logger, route: route, start: time.Now()}
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
	m.mounted = true
}

func (m *boardRequestMetrics) SetTasks(n int) {
	if n < 0 {
		n = 0
	}
	m.tasks = n
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
		"mounted":  m.mounted,
		"tasks":    m.tasks,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("boards.request.metrics")
}

// logCycle records one resolved sync cycle.
func logCycle(logger *log.Logger, s *session, r board.CycleReport) {
	if logger == nil {
		return
	}
	fields := log.Fields{
		"project":     s.projectID,
		"user":        s.userID,
		"board":       r.Board,
		"cycle":       r.Kind,
		"task":        r.TaskID,
		"from":        r.From,
		"to":          r.To,
		"outcome":     r.Outcome.String(),
		"duration_ms": durationToMillis(r.Duration),
	}
	if r.Err != nil {
		fields["error"] = r.Err.Error()
	}
	logger.WithFields(fields).Info("board.sync.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
