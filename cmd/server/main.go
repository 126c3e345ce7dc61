// Command server runs the central endpoint of the sensor datagram protocol:
// it binds a UDP socket, authenticates device sessions with a Noise
// handshake and records the encrypted readings they report.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/sensornet/server"
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Encrypted sensor telemetry server (UDP + Noise_NN)",
	SilenceUsage: true,
	RunE:         runServer,
}

var (
	flagAddr            string
	flagMaxSessions     int
	flagCleanupInterval time.Duration
	flagIdleThreshold   time.Duration
	flagDropRate        int
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAddr, "addr", server.DefaultAddr, "UDP bind address")
	flags.IntVar(&flagMaxSessions, "max-sessions", server.DefaultMaxSessions, "maximum concurrently active sessions")
	flags.DurationVar(&flagCleanupInterval, "cleanup-interval", server.DefaultCleanupInterval, "period of the idle-session eviction pass")
	flags.DurationVar(&flagIdleThreshold, "idle-threshold", 0, "evict sessions idle longer than this (default: one cleanup interval)")
	flags.IntVar(&flagDropRate, "drop-rate", 0, "drop one in N datagrams to simulate a lossy channel (0 = off)")
}

func main() {
	configureLogging()
	if err := rootCmd.Execute(); err != nil {
		logrus.WithField("error", err.Error()).Error("Server failed")
		os.Exit(1)
	}
}

// configureLogging selects the log level from the LOG_LEVEL environment
// variable, defaulting to info.
func configureLogging() {
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := server.NewService(server.Config{
		Addr:            flagAddr,
		MaxSessions:     flagMaxSessions,
		CleanupInterval: flagCleanupInterval,
		IdleThreshold:   flagIdleThreshold,
		DropRate:        flagDropRate,
	})
	if err != nil {
		return err
	}

	return svc.Serve(ctx)
}
