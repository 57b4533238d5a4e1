package contracts

import "time"

// Liveness 워커 생존 기록 (단일 행)
type Liveness struct {
	LastHeartbeatAt       *time.Time `json:"last_heartbeat_at,omitempty"`
	LastCycleSeconds      *float64   `json:"last_cycle_seconds,omitempty"`
	LastSuccessfulCycleAt *time.Time `json:"last_successful_cycle_at,omitempty"`
	LastCycleID           string     `json:"last_cycle_id,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
	LastErrorAt           *time.Time `json:"last_error_at,omitempty"`
	PID                   int        `json:"pid,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// HeartbeatAge returns how old the last heartbeat is, or false if none was written
func (l *Liveness) HeartbeatAge(now time.Time) (time.Duration, bool) {
	if l.LastHeartbeatAt == nil {
		return 0, false
	}
	return now.Sub(*l.LastHeartbeatAt), true
}

// Alive reports whether the heartbeat is younger than staleAfter
func (l *Liveness) Alive(now time.Time, staleAfter time.Duration) bool {
	age, ok := l.HeartbeatAge(now)
	return ok && age < staleAfter
}

// CycleReport 한 사이클 종료 시 기록되는 정보
type CycleReport struct {
	CycleID    string
	FinishedAt time.Time
	Duration   time.Duration
	PID        int
}

// Worker status values reported by the API and CLI
const (
	WorkerAlive        = "alive"
	WorkerStalled      = "stalled"
	WorkerNeverStarted = "never_started"
)

// Status classifies the worker from its heartbeat age
func (l *Liveness) Status(now time.Time, staleAfter time.Duration) string {
	if l.LastHeartbeatAt == nil {
		return WorkerNeverStarted
	}
	if l.Alive(now, staleAfter) {
		return WorkerAlive
	}
	return WorkerStalled
}
