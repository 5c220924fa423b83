package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/postwriter/internal"
	pkgconfig "github.com/starford/postwriter/pkg/config"
)

// loadConfig reads the config file. A missing file leaves the defaults.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "postwriter",
		Usage:  "Frontmatter and markdown editor service with REST, SSE, and MCP interfaces",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml or .toml)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default)",
				Action: run,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdin/stdout",
				Action: runMCP,
			},
			{
				Name:  "copy",
				Usage: "Copy the document as frontmatter and markdown to the clipboard",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "legacy", Usage: "Unescaped output of the original editor"},
					&cli.BoolFlag{Name: "stdout", Usage: "Print instead of copying"},
				},
				Action: copyAction,
			},
			{
				Name:  "export",
				Usage: "Write the field list as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default: stdout)"},
				},
				Action: exportAction,
			},
			{
				Name:      "import",
				Usage:     "Replace the fields with an exported field list",
				ArgsUsage: "<file>",
				Action:    importAction,
			},
			{
				Name:      "migrate",
				Usage:     "Load a legacy local-storage dump into the configured storage",
				ArgsUsage: "<local-storage.json>",
				Action:    migrateAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
