package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/routemesh-go/internal/cli/output"
	"github.com/yndnr/routemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/routemesh-go/internal/server/config"
	"github.com/yndnr/routemesh-go/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "routemesh-server",
		Usage:   "Embeddable HTTP request router",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			ConfigCommand(),
			UserCommand(),
			HashPasswordCommand(),
			TokenCommand(),
		},
		Action: runServe,
	}
}

// globalFlags returns the flags available to every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			EnvVars: []string{"ROUTEMESH_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Override log.level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
	}
}

// overrides collects the configuration keys set through flags.
func overrides(c *cli.Context) map[string]any {
	m := make(map[string]any)
	if v := c.String("log-level"); v != "" {
		m["log.level"] = v
	}
	if v := c.String("addr"); v != "" {
		m["server.http.addr"] = v
	}
	return m
}

// loadConfig loads the configuration named by the global flags.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg, err := config.Load(c.String("config"), overrides(c))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// initLogger builds the process logger from the configuration and
// installs it as the default.
func initLogger(cfg *config.ServerConfig, w io.Writer) (*slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: w,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log.Slog(), nil
}

// printResult writes data to the app's writer in the selected format.
func printResult(c *cli.Context, data any) error {
	return output.Print(c.App.Writer, c.String("output"), data)
}
