package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankur-anand/statusdb/cmd/statusdb/cliapp"
	"github.com/ankur-anand/statusdb/cmd/statusdb/config"
	"github.com/urfave/cli/v2"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "./config.toml",
	Usage:   "Path to TOML config file",
}

var waitFlag = &cli.DurationFlag{
	Name:  "wait",
	Usage: "How long to retry while a running server holds the store",
}

func main() {
	app := &cli.App{
		Name:    "statusdb",
		Usage:   "Account status record store",
		Version: "0.1.0",
		Commands: []*cli.Command{
			serverCommand(),
			encodeCommand(),
			decodeCommand(),
			backupCommand(),
			getCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Serve the status API over HTTP",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Value:   "dev",
				Usage:   "Environment: dev, staging, prod",
			},
			&cli.StringFlag{
				Name:  "ports-file",
				Usage: "Write bound listener addresses as JSON to this file",
			},
		},
		Action: runServer,
	}
}

func runServer(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := &cliapp.Server{PortsFile: c.String("ports-file")}
	setupFunc := []func(context.Context) error{
		server.InitFromCLI(c.String("config"), c.String("env")),
		server.InitTelemetry,
		server.SetupStorage,
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.CloseServices(shutdownCtx)
		server.Shutdown(shutdownCtx)
	}

	for _, fn := range setupFunc {
		if err := fn(ctx); err != nil {
			shutdown()
			return err
		}
	}

	deps := server.BuildDeps()
	interval, err := deps.Config.Storage.ReportInterval()
	if err != nil {
		shutdown()
		return err
	}

	server.Register(&cliapp.HTTPService{})
	server.Register(&cliapp.PProfService{})
	server.Register(cliapp.NewStatsLoggerService(interval))

	if err := server.SetupServices(ctx); err != nil {
		shutdown()
		return err
	}

	cliapp.PrintBanner(deps.Store.Namespace(), deps.Store.Stats().Engine)
	slog.Info("[statusdb.main]",
		slog.String("event_type", "server.started"),
		slog.String("config_file", c.String("config")),
		slog.String("env", c.String("env")),
	)

	runErr := server.RunServices(ctx)
	slog.Info("[statusdb.main]", slog.String("event_type", "server.shutting_down"))
	shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "encode",
		Usage: "Print the structured payload for a message",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "msg",
				Aliases:  []string{"m"},
				Required: true,
				Usage:    "Message to encode",
			},
			&cli.BoolFlag{
				Name:  "hex",
				Usage: "Print hex instead of base64",
			},
		},
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, cliapp.EncodeMessage(c.String("msg"), c.Bool("hex")))
			return nil
		},
	}
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode",
		Usage: "Validate a structured payload and print its message",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "payload",
				Aliases:  []string{"p"},
				Required: true,
				Usage:    "Base64 (default) or hex encoded payload",
			},
			&cli.BoolFlag{
				Name:  "hex",
				Usage: "Payload is hex encoded",
			},
		},
		Action: func(c *cli.Context) error {
			msg, err := cliapp.DecodePayload(c.String("payload"), c.Bool("hex"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, msg)
			return nil
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write a snapshot of the store (requires server stopped)",
		Flags: []cli.Flag{
			configFlag,
			waitFlag,
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Required: true,
				Usage:    "Directory receiving the snapshot",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			result, err := cliapp.Backup(c.Context, cfg, c.String("out"), c.Duration("wait"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s (%s)\n", result.Path, result.HumanSize())
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Print the status of an account (requires server stopped)",
		Flags: []cli.Flag{
			configFlag,
			waitFlag,
			&cli.StringFlag{
				Name:     "account",
				Aliases:  []string{"a"},
				Required: true,
				Usage:    "Account id",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			msg, found, err := cliapp.ReadStatus(c.Context, cfg, c.String("account"), c.Duration("wait"))
			if err != nil {
				return err
			}
			if !found {
				return cli.Exit(fmt.Sprintf("no status for %q", c.String("account")), 2)
			}
			fmt.Fprintln(c.App.Writer, msg)
			return nil
		},
	}
}
