package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/sockhttp/internal/infra/buildinfo"
	"github.com/yndnr/sockhttp/internal/infra/confloader"
	"github.com/yndnr/sockhttp/internal/server/config"
)

// newApp creates the CLI application.
func newApp() *cli.App {
	return &cli.App{
		Name:    "sockhttp-server",
		Usage:   "HTTP endpoint listener with prefix routing",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"SOCKHTTP_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			configCommand(),
			versionCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "watch-config",
				Usage: "Reload when the configuration file changes",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			return runServe(c.Context, newLoader(c), c.Bool("watch-config"))
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the merged configuration with secrets masked",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration",
				Action: configValidate,
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			return writeYAML(c.App.Writer, buildinfo.Get())
		},
	}
}

func newLoader(c *cli.Context) *confloader.Loader {
	opts := []confloader.Option{confloader.WithDefaults(config.Default())}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	return confloader.NewLoader(opts...)
}

// loadConfig loads and validates the configuration.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := &config.ServerConfig{}
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configShow(c *cli.Context) error {
	cfg := &config.ServerConfig{}
	if err := newLoader(c).Load(cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return writeYAML(c.App.Writer, config.Sanitize(cfg))
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func configValidate(c *cli.Context) error {
	cfg, err := loadConfig(newLoader(c))
	if err != nil {
		return err
	}
	prefixes := 0
	for _, a := range cfg.Apps {
		prefixes += len(a.Prefixes)
	}
	fmt.Fprintf(c.App.Writer, "configuration ok: %d apps, %d prefixes\n", len(cfg.Apps), prefixes)
	return nil
}
