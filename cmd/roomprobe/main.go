// Command roomprobe checks a running game room server end to end. It creates
// a room over REST, connects several WebSocket clients, sends one message and
// reports which clients received the echo. It exits non-zero when any
// expected client missed it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "roomprobe",
		Usage: "Probe room fan-out on a game room server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Value:   "http://localhost:8080",
				Usage:   "Base URL of the server",
				Sources: cli.EnvVars("GAMEROOM_API_URL"),
			},
			&cli.IntFlag{
				Name:  "clients",
				Value: 3,
				Usage: "Number of WebSocket clients to connect",
			},
			&cli.StringFlag{
				Name:  "message",
				Value: "hello from roomprobe",
				Usage: "Message the first client sends",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "Overall deadline for the probe",
			},
			&cli.BoolFlag{
				Name:  "expect-sender",
				Value: true,
				Usage: "Expect the sender to receive its own echo",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log each step",
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := zap.NewNop().Sugar()
	if cmd.Bool("verbose") {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer l.Sync()
		logger = l.Sugar()
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	report, err := Probe(ctx, NewClient(cmd.String("url")), int(cmd.Int("clients")), cmd.String("message"), cmd.Bool("expect-sender"), logger)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	fmt.Fprint(cmd.Root().Writer, report.String())
	if !report.OK() {
		return cli.Exit(fmt.Sprintf("%d client(s) missed the echo", len(report.Missing)), 1)
	}
	return nil
}
