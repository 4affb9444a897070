// Command underwriter evaluates financial-document packets for receivables underwriting.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// version is set at build time via ldflags.
var version = "dev"

var v = common.NewViper()

var rootCmd = &cobra.Command{
	Use:     "underwriter",
	Short:   "Extract, reconcile and score underwriting case packets",
	Version: version,
	Long: `underwriter loads a case from the record store, OCRs its attachments,
extracts typed fields, reconciles them against the case's reference values,
runs adverse-media and payment-stability enrichment and scores the result.

Configuration comes from an optional YAML file and UNDERWRITER_* environment
variables (for example UNDERWRITER_DB_URL, UNDERWRITER_OCR_API_KEY).`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./underwriter.yaml or ~/.config/underwriter/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "debug | info | warn | error")
	rootCmd.PersistentFlags().String("log-format", "", "json | text")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(evaluateCmd, probeCmd, serveCmd, dbhealthCmd, seedCmd)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("underwriter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "underwriter"))
		}
	}
	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Reading config file:", err)
	}
}

// newLogger builds the process logger and makes it the slog default.
func newLogger(cfg common.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
