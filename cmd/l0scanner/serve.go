package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l0scanner/l0scanner/internal/service"
	"github.com/l0scanner/l0scanner/pkg/auditlog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Layer-0 scanner as an HTTP service",
	Long: `Run l0scanner as a long-lived HTTP service exposing /scan,
/datasets/reload, /health, /health/live, /health/ready, /stats, and
/metrics. The process loads its configured datasets once at startup and
serves until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := bootstrap()
	if err != nil {
		return err
	}

	auditStore, err := auditlog.Open(c.cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditStore.Close()

	_, handler := service.New(service.Deps{
		Scanner:        c.scanner,
		Registry:       c.registry,
		Loader:         c.loader,
		DatasetDir:     ".",
		AuditLog:       auditStore,
		Evaluator:      c.evaluator,
		APIKey:         c.cfg.APIKey,
		MetricsEnabled: c.cfg.MetricsEnabled,
		Logger:         c.logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		c.logger.Info("shutdown signal received")
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", c.cfg.APIHost, c.cfg.APIPort)
	return service.Serve(ctx, addr, handler, c.logger)
}
