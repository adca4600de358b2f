package main

import "time"

const defaultConfigPath = "procwatch.toml"

// GlobalFlags are shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	Token      string
	User       string // name:password
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	Daemonize   bool
	PidFile     string
	LogFile     string
	NoAutostart bool
}

// ProgramFlags holds flags for add and edit.
type ProgramFlags struct {
	Name     string
	Path     string
	Disabled bool
}

type SettingsFlags struct {
	CheckCycleSec int
	StartDelaySec int
	Background    string // "", "true" or "false"
}

type HistoryFlags struct {
	Limit int
}

type StopFlags struct {
	Timeout time.Duration
}
