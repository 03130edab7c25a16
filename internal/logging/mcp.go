package logging

// ServeConfig returns the logging configuration for `unifind serve`.
// stdout carries JSON-RPC for MCP, so nothing may be written to the
// terminal: logs go only to the rotating file.
func ServeConfig(dataDir, level string) Config {
	cfg := DefaultConfig(dataDir)
	cfg.Level = level
	cfg.WriteToStderr = false
	return cfg
}

// CLIConfig returns the logging configuration for one-shot CLI commands.
// With debug set, logs are mirrored to stderr as well.
func CLIConfig(dataDir, level string, debug bool) Config {
	cfg := DefaultConfig(dataDir)
	cfg.Level = level
	if debug {
		cfg.Level = "debug"
		cfg.WriteToStderr = true
	}
	return cfg
}
