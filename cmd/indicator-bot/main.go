package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rxtech-lab/indicator-bot/internal/config"
	"github.com/rxtech-lab/indicator-bot/internal/version"
	"github.com/urfave/cli/v3"
)

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the `YAML` config file; built-in defaults and env credentials are used when it is absent",
		Value:   config.DefaultPath,
		Sources: cli.EnvVars("INDICATOR_BOT_CONFIG"),
	}
}

// runAction loads the config and runs the bot until SIGINT or SIGTERM.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return run(ctx, cfg)
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := config.Schema()
	if err != nil {
		return fmt.Errorf("failed to generate config schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}

func versionAction(_ context.Context, _ *cli.Command) error {
	fmt.Println(version.GetVersion())

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "indicator-bot",
		Usage:   "Trade one crypto pair on EMA/RSI signals with resting limit orders",
		Version: version.GetVersion(),
		Flags:   []cli.Flag{configFlag()},
		Action:  runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the trading bot (default)",
				Flags:  []cli.Flag{configFlag()},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the config file",
				Action: schemaAction,
			},
			{
				Name:   "version",
				Usage:  "Print the version",
				Action: versionAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
