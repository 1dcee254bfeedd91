// Package cmd contains the laoshi command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/laoshi-bot/laoshi/internal/app"
	"github.com/laoshi-bot/laoshi/internal/config"
	"github.com/laoshi-bot/laoshi/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "laoshi",
	Short: "laoshi - Discord 上的中文老師",
	Long: `laoshi 是一個 Discord 機器人，扮演一位中文老師。

在入口頻道提到機器人即可開啟一個新的對話串；之後在該串中的每則
訊息都會交給模型，回覆會串流回 Discord。執行前需要設定
DISCORD_TOKEN 與模型供應商的 API key。`,
	SilenceUsage: true,
	RunE:         runBot,
}

// Execute 執行根命令
func Execute() error {
	return rootCmd.Execute()
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	logger.Info("laoshi starting",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"policy", cfg.Policy,
	)

	return a.Run(ctx)
}

// parseLevel maps the configured log level name to a slog level,
// defaulting to info for anything unrecognized.
func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
