package client

import "time"

// Status mirrors GET /status.
type Status struct {
	State         string    `json:"state"`
	Message       string    `json:"message"`
	Cycles        uint64    `json:"cycles"`
	Launches      uint64    `json:"launches"`
	Failures      uint64    `json:"failures"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	LastCycleAt   time.Time `json:"last_cycle_at,omitempty"`
	LastLaunched  string    `json:"last_launched,omitempty"`
	CheckCycleSec int       `json:"check_cycle_sec"`
	StartDelaySec int       `json:"start_delay_sec"`
	Running       bool      `json:"running"`
	Programs      int       `json:"programs"`
}

// Program is one registry entry. Nr is its 1-based position and is only set
// on list and get responses.
type Program struct {
	Nr      int    `json:"nr,omitempty"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// ProgramRequest adds or edits a program. On update, empty fields keep their
// current values.
type ProgramRequest struct {
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Event is one history record.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name,omitempty"`
	Path       string    `json:"path,omitempty"`
	Error      string    `json:"error,omitempty"`
	Launched   int       `json:"launched,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token is a bearer token issued by the daemon.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}
