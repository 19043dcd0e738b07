package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/dsconn/pkg/dsconn/client"
	"github.com/tsarna/dsconn/pkg/dsconn/record"
)

var (
	setDialTimeout time.Duration
	setTimeout     time.Duration
	setAuthJSON    string
)

// setCmd represents the set command.
var setCmd = &cobra.Command{
	Use:   "set <websocket-url> <record-name> <path> <json-value>",
	Short: "Set a path on a dsconn record",
	Long: `Connect to a dsconn server, authenticate, wait for the named record to become
ready, then set path to json-value. Use an empty string for path to replace the
whole record.

Examples:
  dsconn set ws://localhost:8080/ws documents/doc-1 "" '{"title":"hello"}'
  dsconn set ws://localhost:8080/ws documents/doc-1 title '"hello"'`,
	Args: cobra.ExactArgs(4),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)

	setCmd.Flags().DurationVar(&setDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	setCmd.Flags().DurationVar(&setTimeout, "timeout", 30*time.Second, "total operation timeout")
	setCmd.Flags().StringVar(&setAuthJSON, "auth", "{}", "authentication params, as a JSON object")
}

func runSet(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	wsURL := args[0]
	recordName := args[1]
	path := args[2]
	rawValue := args[3]

	var value any
	if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
		return fmt.Errorf("invalid json-value: %w", err)
	}

	var authParams map[string]any
	if err := json.Unmarshal([]byte(setAuthJSON), &authParams); err != nil {
		return fmt.Errorf("invalid --auth JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), setTimeout)
	defer cancel()

	c := client.New(wsURL, client.WithLogger(logger), client.WithDialTimeout(setDialTimeout))
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			logger.Warn("error closing client", zap.Error(closeErr))
		}
	}()

	loggedIn := make(chan struct{}, 1)
	authFailed := make(chan any, 1)

	if err := c.Login(ctx, authParams, func(ok bool, data any) {
		if ok {
			select {
			case loggedIn <- struct{}{}:
			default:
			}
			return
		}
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
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for authentication")
	}

	logger.Info("authenticated", zap.String("url", wsURL))

	rec := c.Records.GetRecord(recordName)

	ready := make(chan struct{}, 1)
	recErr := make(chan error, 1)
	rec.OnReady(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	rec.OnError(func(kind record.ErrorKind, err error) {
		select {
		case recErr <- fmt.Errorf("record error (kind=%d): %w", kind, err):
		default:
		}
	})

	select {
	case <-ready:
	case err := <-recErr:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for record %q to become ready", recordName)
	}

	rec.Set(path, value)

	logger.Info("set applied",
		zap.String("record", recordName),
		zap.String("path", path),
		zap.Any("value", value),
	)

	return nil
}
