package main

import "time"

// GlobalFlags are persistent across subcommands.
type GlobalFlags struct {
	ConfigPath string
	Yes        bool // pre-confirm agent warnings
	LogLevel   string
	// Remote server connection
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen    string
	BasePath  string
	Watch     bool
	LogFile   string
	LogFormat string
	Level     string // --log-level, or info when not given
}

// LogsFlags holds flags for the logs command.
type LogsFlags struct {
	Lines int
}

// HistoryFlags holds flags for the history command.
type HistoryFlags struct {
	Limit int
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	JSON bool
}
