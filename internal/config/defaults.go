package config

// Default configuration values.
const (
	DefaultDatabasePath       = ".leaptable/data.db"
	DefaultPageSize           = 50
	DefaultLogLevel           = "info"
	DefaultOutput             = OutputTable
	DefaultColumnWidth  int64 = 100
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// defaults returns the lowest-precedence configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"database_path":        DefaultDatabasePath,
		"page_size":            DefaultPageSize,
		"log_level":            DefaultLogLevel,
		"output":               DefaultOutput,
		"default_column_width": DefaultColumnWidth,
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		DatabasePath:       DefaultDatabasePath,
		PageSize:           DefaultPageSize,
		LogLevel:           DefaultLogLevel,
		Output:             DefaultOutput,
		DefaultColumnWidth: DefaultColumnWidth,
	}
}
