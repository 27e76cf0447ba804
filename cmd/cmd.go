package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/helphub/relay-service/config"
	"github.com/helphub/relay-service/internal/security"
)

const ServiceName = "helphub-relay"

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Offline-first message relay for disaster response deployments",
		Commands: []*cli.Command{
			serverCmd(),
			keygenCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the relay server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config_file"))
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stopWatch, err := cfg.Watch(slog.Default())
			if err != nil {
				slog.Warn("config watch unavailable", slog.Any("err", err))
			} else {
				defer stopWatch()
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func keygenCmd() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate the TLS keystore used by the framed listener",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: "helphub.keystore",
				Usage: "Path to write the keystore bundle",
			},
		},
		Action: func(c *cli.Context) error {
			password := os.Getenv("KEYSTORE_PASSWORD")
			if password == "" {
				// A deployment without a chosen secret still needs a working
				// listener; print the generated one exactly once.
				buf := make([]byte, 16)
				if _, err := rand.Read(buf); err != nil {
					return err
				}
				password = hex.EncodeToString(buf)
				fmt.Printf("KEYSTORE_PASSWORD not set, generated: %s\n", password)
			}
			out := c.String("out")
			if err := security.Generate(out, password); err != nil {
				return err
			}
			fmt.Printf("keystore written to %s\n", out)
			return nil
		},
	}
}
