package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shortmark/shortmark/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "shortmark",
	Short: "LLM grading for short free-text answers",
	Long:  "Shortmark grades school students' short free-text answers with a tiered LLM pipeline: a fast model first, a stronger model on low-confidence or boundary scores, and a similarity heuristic when no model is reachable.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "Path to SQLite database file (overrides SHORTMARK_DB env var)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(questionCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(versionCmd)
}

// viperForCmd binds a command's flags and environment to a fresh viper
// instance, so every flag is also settable as SHORTMARK_<FLAG>.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.Root().PersistentFlags())

	v.SetEnvPrefix("SHORTMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("shortmark")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/shortmark")
	v.AddConfigPath("/etc/shortmark")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	}

	return v
}

func setupLogging(v *viper.Viper) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// resolveDBPath returns the database path using the --db flag (highest
// priority), then SHORTMARK_DB, then the default XDG path.
func resolveDBPath(v *viper.Viper) (string, error) {
	if p := v.GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}
