package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaptable/internal/config"
	"github.com/leapstack-labs/leaptable/internal/engine"
)

// configKey and loggerKey store the loaded configuration and logger in the
// command context.
type (
	configKey struct{}
	loggerKey struct{}
)

// WithConfig returns ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger returns ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetConfig retrieves the config from the command context, or the defaults.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return config.Default()
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *Renderer
}

// NewCommandContext opens the engine on the configured database.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := GetConfig(cmd.Context())
	logger := GetLogger(cmd.Context())

	eng, err := engine.New(engine.Config{
		DatabasePath:       cfg.DatabasePath,
		DefaultColumnWidth: cfg.DefaultColumnWidth,
		Logger:             logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: NewRenderer(cmd.OutOrStdout(), cfg.Output),
	}, cleanup, nil
}

// withEngine wraps a command body that needs the engine.
func withEngine(run func(cmd *cobra.Command, cc *CommandContext, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cc, cleanup, err := NewCommandContext(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		return run(cmd, cc, args)
	}
}

// parseOID parses a positional oid argument.
func parseOID(name, s string) (int64, error) {
	oid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || oid < 1 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive integer", name, s)
	}
	return oid, nil
}

// parseOIDs parses consecutive positional oid arguments.
func parseOIDs(args []string, names ...string) ([]int64, error) {
	oids := make([]int64, len(names))
	for i, name := range names {
		oid, err := parseOID(name, args[i])
		if err != nil {
			return nil, err
		}
		oids[i] = oid
	}
	return oids, nil
}

// optionalOID returns a pointer to the value of an int64 flag when it was set.
func optionalOID(cmd *cobra.Command, flag string) (*int64, error) {
	if !cmd.Flags().Changed(flag) {
		return nil, nil
	}
	v, err := cmd.Flags().GetInt64(flag)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
