package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/internal/infrastructure/monitoring"
	"github.com/turtacn/contentsdk/pkg/logger"
	"github.com/turtacn/contentsdk/sdk/go/contentsdk"
)

var configPath string

// rootCmd represents the base command when the `contentctl` binary is called without any subcommands.
// rootCmd 代表在没有任何子命令的情况下调用 `contentctl` 二进制文件时的基本命令。
var rootCmd = &cobra.Command{
	Use:   "contentctl",
	Short: "A CLI for the content API: tokens and the event stream.",
	Long: `contentctl obtains and revokes access tokens for an enterprise or user
and tails the enterprise event stream into stdout or Kafka.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default ./contentsdk.yaml or $HOME/.contentsdk/contentsdk.yaml)")
}

// Execute is the main entry point for the CLI application.
// If an error occurs, it prints the error and exits.
// Execute 是 CLI 应用程序的主入口点。如果发生错误，它会打印错误并退出。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is what every command needs: the loaded config, a leveled logger and an SDK client.
type session struct {
	cfg    *config.Config
	log    *monitoring.ZapLogger
	client *contentsdk.Client
}

// openSession loads configuration and builds the SDK client. With watch set and
// a config file given, later edits to log.level apply without a restart.
func openSession(ctx context.Context, stderr io.Writer, watch bool) (*session, error) {
	var (
		cfg *config.Config
		err error
		zl  *monitoring.ZapLogger
	)
	if watch && configPath != "" {
		cfg, err = config.Watch(configPath, func(next *config.Config) {
			if zl == nil {
				return
			}
			if err := zl.SetLevel(next.Log.Level); err != nil {
				zl.Warn(ctx, "Ignoring invalid log level from config", logger.String("level", next.Log.Level))
				return
			}
			zl.Info(ctx, "Log level changed", logger.String("level", next.Log.Level))
		})
	} else {
		cfg, err = config.LoadConfig(configPath)
	}
	if err != nil {
		return nil, err
	}

	zl, err = monitoring.NewZapLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	client, err := contentsdk.New(ctx, cfg, contentsdk.WithLogger(zl))
	if err != nil {
		_ = zl.Sync()
		return nil, err
	}
	return &session{cfg: cfg, log: zl, client: client}, nil
}

func (s *session) Close() error {
	err := s.client.Close()
	_ = s.log.Sync()
	return err
}
