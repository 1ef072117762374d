package client

import (
	"strconv"
	"time"
)

// AgentStatus is one entry of the status endpoint.
type AgentStatus struct {
	Name                 string     `json:"name"`
	Enabled              bool       `json:"enabled"`
	Running              bool       `json:"running"`
	State                string     `json:"state"`
	PID                  int        `json:"pid,omitempty"`
	UptimeSeconds        int64      `json:"uptime_seconds"`
	MemoryMB             *float64   `json:"memory_mb,omitempty"`
	NextCheckSeconds     *int64     `json:"next_check_seconds,omitempty"`
	Description          string     `json:"description"`
	Warning              string     `json:"warning,omitempty"`
	Script               string     `json:"script"`
	LogFile              string     `json:"log_file"`
	LastActivity         *time.Time `json:"last_activity,omitempty"`
	CheckIntervalMinutes int        `json:"check_interval_minutes,omitempty"`
}

// ActionResult answers start, stop and reload.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PID     int    `json:"pid,omitempty"`
}

// BulkResult answers start-all and stop-all. Done holds the started or
// stopped names depending on the call.
type BulkResult struct {
	Success bool     `json:"success"`
	Done    []string `json:"-"`
	Failed  []string `json:"failed"`
	Message string   `json:"message"`
}

type bulkWire struct {
	Success bool     `json:"success"`
	Started []string `json:"started"`
	Stopped []string `json:"stopped"`
	Failed  []string `json:"failed"`
	Message string   `json:"message"`
}

// Event is one lifecycle history entry.
type Event struct {
	Type       string    `json:"type"`
	Agent      string    `json:"agent"`
	PID        int       `json:"pid,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Alert is a keyword hit in a recent agent log line.
type Alert struct {
	Type      string    `json:"type"`
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemInfo describes the supervisor host.
type SystemInfo struct {
	GoVersion         string `json:"go_version"`
	OS                string `json:"os"`
	HostUptimeSeconds int64  `json:"host_uptime_seconds"`
	SupervisorPID     int    `json:"supervisor_pid"`
	TotalAgents       int    `json:"total_agents"`
	EnabledAgents     int    `json:"enabled_agents"`
	RunningAgents     int    `json:"running_agents"`
	ConfigPath        string `json:"config_path"`
}

// APIError is returned for any non-200 answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "HTTP " + strconv.Itoa(e.Status)
	}
	return "API error: " + e.Message
}
