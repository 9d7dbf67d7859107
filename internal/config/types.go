// Package config provides configuration types and loading for leaptable.
// It is decoupled from CLI concerns; the CLI passes its flag set in.
package config

// Config holds all configuration options.
type Config struct {
	// DatabasePath is the SQLite file holding tables and rows (":memory:" for a scratch database).
	DatabasePath string `koanf:"database_path"`
	// PageSize is the number of rows read per page when a command does not give one.
	PageSize int `koanf:"page_size"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `koanf:"log_level"`
	// Output is the rendering format: table, json or yaml.
	Output string `koanf:"output"`
	// DefaultColumnWidth is the width of newly created columns.
	DefaultColumnWidth int64 `koanf:"default_column_width"`
}
