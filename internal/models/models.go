package models

import "time"

// Project is a working copy the client has registered.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	MainBranch  string    `json:"main_branch"`
	RunScript   string    `json:"run_script"`
	BuildScript string    `json:"build_script"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionRecord is the persisted history of one terminal session.
type SessionRecord struct {
	ID               string     `json:"id"`
	ProjectID        *int64     `json:"project_id,omitempty"`
	Command          string     `json:"command"`
	WorkingDirectory string     `json:"working_directory"`
	Status           string     `json:"status"`
	PID              *int       `json:"pid,omitempty"`
	ExitCode         *int       `json:"exit_code,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// CommandRecord is the persisted history of one executed command.
type CommandRecord struct {
	ID               int64     `json:"id"`
	Command          string    `json:"command"`
	WorkingDirectory string    `json:"working_directory"`
	ExitCode         int       `json:"exit_code"`
	DurationMS       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Session history statuses.
const (
	StatusRunning = "running"
	StatusExited  = "exited"
	StatusStopped = "stopped"
)

// ToolStatus reports whether a required binary is on PATH.
type ToolStatus struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Path      string `json:"path,omitempty"`
}

type HealthResponse struct {
	Status   string       `json:"status"`
	Tools    []ToolStatus `json:"tools"`
	Git      bool         `json:"git"`
	Sessions int          `json:"sessions"`
	Tunnel   bool         `json:"tunnel"`
}
