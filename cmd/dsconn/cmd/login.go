package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/dsconn/pkg/dsconn/client"
	"github.com/tsarna/dsconn/pkg/dsconn/record"
)

var (
	loginDialTimeout time.Duration
	loginAuthJSON    string
)

// loginCmd represents the login command.
var loginCmd = &cobra.Command{
	Use:   "login <websocket-url> <record-name>",
	Short: "Log in to a dsconn server and watch a record",
	Long: `Connect to a dsconn server, authenticate, then print the named record's
value every time it changes until interrupted.

Examples:
  dsconn login ws://localhost:8080/ws documents/doc-1
  dsconn login ws://localhost:8080/ws documents/doc-1 --auth '{"token":"abc123"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().DurationVar(&loginDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	loginCmd.Flags().StringVar(&loginAuthJSON, "auth", "{}", "authentication params, as a JSON object")
}

func runLogin(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	wsURL := args[0]
	recordName := args[1]

	var authParams map[string]any
	if err := json.Unmarshal([]byte(loginAuthJSON), &authParams); err != nil {
		return fmt.Errorf("invalid --auth JSON: %w", err)
	}

	c := client.New(wsURL, client.WithLogger(logger), client.WithDialTimeout(loginDialTimeout))

	c.On("#", func(event string, payload any) {
		logger.Debug("event", zap.String("event", event), zap.Any("payload", payload))
	})

	loggedIn := make(chan struct{}, 1)
	authFailed := make(chan any, 1)

	loginCtx, cancelLogin := context.WithTimeout(context.Background(), loginDialTimeout)
	defer cancelLogin()

	if err := c.Login(loginCtx, authParams, func(ok bool, data any) {
		if ok {
			logger.Info("authenticated", zap.Any("data", data))
			select {
			case loggedIn <- struct{}{}:
			default:
			}
			return
		}
		logger.Warn("authentication failed", zap.Any("reason", data))
		select {
		case authFailed <- data:
		default:
		}
	}); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	select {
	case <-loggedIn:
	case reason := <-authFailed:
		return fmt.Errorf("authentication rejected: %v", reason)
	case <-time.After(loginDialTimeout):
		return fmt.Errorf("timed out waiting for authentication")
	}

	rec := c.Records.GetRecord(recordName)
	rec.OnError(func(kind record.ErrorKind, recErr error) {
		logger.Warn("record error", zap.Int("kind", int(kind)), zap.Error(recErr))
	})
	rec.SubscribeAll(func(value any) {
		b, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			fmt.Printf("%s\t<error marshaling JSON: %v>\n", recordName, marshalErr)
			return
		}
		fmt.Printf("%s\t%s\n", recordName, string(b))
	}, true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("watching record, press Ctrl+C to exit", zap.String("record", recordName))
	<-sigChan

	if err := rec.Discard(); err != nil {
		logger.Warn("error discarding record", zap.Error(err))
	}

	logger.Info("shutting down")
	return c.Close()
}
