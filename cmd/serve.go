package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shortmark/shortmark/internal/api"
	"github.com/shortmark/shortmark/internal/grading"
	"github.com/shortmark/shortmark/internal/llm"
	"github.com/shortmark/shortmark/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the grading HTTP server",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("addr", "a", ":8230", "HTTP listen address")
	f.String("token", "", "Bearer token required on grading routes (empty = no auth)")
	f.Int("rate-limit", 6, "Grading requests per minute per caller (0 = unlimited)")
	f.Bool("escalation", true, "Allow escalation to the strong model tier")
	f.Bool("heuristic", true, "Fall back to similarity grading when models fail")
	f.Bool("rubrics", true, "Cache inferred key facts per reference answer")
	f.Duration("timeout", grading.DefaultCallTimeout, "Default per-request grading timeout")
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	logger := setupLogging(v)

	dbPath, err := resolveDBPath(v)
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	registry, providerName, err := buildRegistry(cmd.Context(), logger, s)
	if err != nil {
		return err
	}

	svcCfg := grading.Config{
		Provider:         providerName,
		EnableEscalation: v.GetBool("escalation"),
		EnableHeuristic:  v.GetBool("heuristic"),
		PersistRubrics:   v.GetBool("rubrics"),
		DefaultTimeout:   v.GetDuration("timeout"),
	}
	svc := grading.NewService(registry, s, svcCfg, logger)

	server := api.NewServer(svc, api.Config{
		Token:              v.GetString("token"),
		RateLimitPerMinute: v.GetInt("rate-limit"),
	}, logger)

	httpServer := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grading server listening", "addr", httpServer.Addr, "provider", providerName, "db", dbPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	return nil
}

// buildRegistry constructs the model adapters from environment
// configuration. When no provider credentials are present the registry
// comes back empty and the service runs heuristic-only.
func buildRegistry(ctx context.Context, logger *slog.Logger, logs llm.RequestLogRepo) (*grading.Registry, string, error) {
	cfg := llm.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		discovered, ok := llm.DiscoverConfig()
		if !ok {
			logger.Warn("no LLM provider configured, grading heuristic-only", "reason", err)
			return grading.NewRegistry(nil, nil), "none", nil
		}
		cfg = discovered
	}

	primary, err := llm.NewProvider(ctx, cfg, llm.TierPrimary, logs)
	if err != nil {
		return nil, "", fmt.Errorf("create primary provider: %w", err)
	}
	strong, err := llm.NewProvider(ctx, cfg, llm.TierStrong, logs)
	if err != nil {
		return nil, "", fmt.Errorf("create strong provider: %w", err)
	}

	registry := grading.NewRegistry(
		grading.NewAdapter(primary.ModelID(), primary, llm.TierPrimary),
		grading.NewAdapter(strong.ModelID(), strong, llm.TierStrong),
	)
	return registry, cfg.Provider, nil
}
