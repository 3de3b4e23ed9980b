package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

type StartFlags struct {
	Workspace string
	Command   []string
	API       APIFlags
}

type StopFlags struct {
	Workspace string
	API       APIFlags
}

type StatusFlags struct {
	Workspace string
	API       APIFlags
}

type LogsFlags struct {
	Workspace string
	TailBytes int64
	API       APIFlags
}

type ProcessesFlags struct {
	Kill bool
	API  APIFlags
}

type AutoStartFlags struct {
	Workspace string
	API       APIFlags
}

// ServeFlags holds daemon startup flags.
type ServeFlags struct {
	Listen string
}
