// Package logging provides file-based structured logging with rotation.
// Logs are JSON lines written to <data_dir>/logs/unifind.log; the serve
// command never writes to stdout or stderr because stdout carries the MCP
// protocol stream.
package logging
