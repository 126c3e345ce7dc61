// Command client simulates one embedded device: it opens an encrypted
// session with the server over UDP and reports a temperature reading,
// retrying through packet loss until acknowledged.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/sensornet/client"
)

var rootCmd = &cobra.Command{
	Use:          "client",
	Short:        "Sensor device client (UDP + Noise_NN)",
	SilenceUsage: true,
	RunE:         runClient,
}

var (
	flagServer      string
	flagDeviceID    uint32
	flagTimeout     time.Duration
	flagRetries     int
	flagTemperature float32
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", "127.0.0.1:8080", "server UDP address")
	flags.Uint32Var(&flagDeviceID, "device-id", 1234567890, "device identifier")
	flags.DurationVar(&flagTimeout, "timeout", time.Second, "per-attempt reply timeout")
	flags.IntVar(&flagRetries, "retries", 5, "maximum send attempts per message")
	flags.Float32Var(&flagTemperature, "temperature", 25.0, "temperature reading to report")
}

func main() {
	configureLogging()
	if err := rootCmd.Execute(); err != nil {
		logrus.WithField("error", err.Error()).Error("Client failed")
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

func runClient(cmd *cobra.Command, args []string) error {
	// An ephemeral local port, connected to the server address so plain
	// Read/Write drive the exchange.
	conn, err := net.Dial("udp", flagServer)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", flagServer, err)
	}
	defer conn.Close()

	logrus.WithFields(logrus.Fields{
		"function": "runClient",
		"local":    conn.LocalAddr().String(),
		"server":   flagServer,
	}).Info("Client bound")

	session := client.NewSession(flagDeviceID)

	handshake, err := session.InitiateHandshake()
	if err != nil {
		return fmt.Errorf("failed to initiate handshake: %w", err)
	}
	reply, err := client.SendAndWait(conn, handshake, session.SendSequence(), flagTimeout, flagRetries)
	if err != nil {
		return fmt.Errorf("handshake exchange failed: %w", err)
	}
	if err := session.ReceiveHandshake(reply); err != nil {
		return fmt.Errorf("failed to process handshake response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "runClient",
		"session_id": session.SessionID(),
	}).Info("Sending encrypted temperature report")

	report, err := session.TemperatureMessage(flagTemperature)
	if err != nil {
		return fmt.Errorf("failed to create temperature message: %w", err)
	}
	reply, err = client.SendAndWait(conn, report, session.SendSequence(), flagTimeout, flagRetries)
	if err != nil {
		return fmt.Errorf("report exchange failed: %w", err)
	}
	if err := session.ReceiveAck(reply); err != nil {
		return fmt.Errorf("failed to process ack: %w", err)
	}

	logrus.WithField("function", "runClient").Info("Received ack, closing connection")
	return nil
}
