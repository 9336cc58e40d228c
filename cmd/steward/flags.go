package main

import "time"

// ServiceFlags Flag structs to decouple cobra from logic for testing.
// Start, stop, restart, health, validate and cleanup all address one
// service by name.
type ServiceFlags struct {
	Name string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

// StatusFlags queries one service by name or lists all, optionally filtered
// by kind.
type StatusFlags struct {
	Name string
	Kind string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

// BulkFlags drives start-all and stop-all with an optional kind filter.
type BulkFlags struct {
	Kind string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

// ReconcileFlags triggers one corrective pass on the daemon.
type ReconcileFlags struct {
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type TemplateCreateFlags struct {
	Type   string
	Name   string
	Output string
	Force  bool
}
