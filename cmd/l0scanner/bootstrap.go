package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/l0scanner/l0scanner/internal/config"
	"github.com/l0scanner/l0scanner/pkg/audit"
	"github.com/l0scanner/l0scanner/pkg/codedetect"
	"github.com/l0scanner/l0scanner/pkg/dataset"
	"github.com/l0scanner/l0scanner/pkg/normalize"
	"github.com/l0scanner/l0scanner/pkg/registry"
	"github.com/l0scanner/l0scanner/pkg/regexeval"
	"github.com/l0scanner/l0scanner/pkg/scanner"
	"github.com/l0scanner/l0scanner/pkg/types"
)

// components bundles every long-lived object a running scanner needs,
// assembled once at process startup from a loaded Config.
type components struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *registry.Registry
	loader    *dataset.Loader
	evaluator *regexeval.Evaluator
	scanner   *scanner.Scanner
	tokenizer *audit.Tokenizer
}

// bootstrap loads config, builds every long-lived component, and loads the
// configured dataset directory into the registry.
func bootstrap() (*components, error) {
	cfg := config.Load()
	logger := newLogger(cfg)

	reg := registry.New()
	loader := dataset.New(os.DirFS(cfg.DatasetPath), []byte(cfg.DatasetHMACSecret), cfg.FailOpen,
		dataset.WithLogger(logger))

	datasets, err := loader.LoadDir(".")
	if err != nil {
		if !cfg.FailOpen {
			return nil, fmt.Errorf("loading datasets from %s: %w", cfg.DatasetPath, err)
		}
		logger.Warn("dataset load failed, continuing fail-open with zero rules", "err", err)
	}
	reg.Load(datasets)

	evaluator := regexeval.New(time.Duration(cfg.RegexTimeoutMS) * time.Millisecond)
	tokenizer := audit.New([]byte(cfg.DatasetHMACSecret))

	allowlisted := make(map[types.InputHash]bool)
	for _, h := range cfg.AllowlistedHashesList() {
		raw, err := hex.DecodeString(h)
		if err != nil || len(raw) != 32 {
			logger.Warn("ignoring malformed allowlisted hash", "hash", h)
			continue
		}
		var hash types.InputHash
		copy(hash[:], raw)
		allowlisted[hash] = true
	}

	sc := scanner.New(scanner.Config{
		StopOnFirstMatch:        cfg.StopOnFirstMatch,
		EnsembleScoring:         cfg.EnsembleScoring,
		EnsembleThresholdReject: cfg.EnsembleThresholdReject,
		EnsembleThresholdWarn:   cfg.EnsembleThresholdWarn,
		PrefilterEnabled:        cfg.PrefilterEnabled,
		PrefilterKeywords:       cfg.PrefilterKeywordsList(),
		FailOpen:                cfg.FailOpen,
		MaxChunkWorkers:         4,
		ScannerVersion:          version,
		AllowlistedHashes:       allowlisted,
		MLSuspicionEnabled:      cfg.MLSuspicionEnabled,
		MaxInputLength:          cfg.MaxInputLength,
		MaxChunks:               cfg.MaxChunks,
		ChunkProcessingTimeout:  cfg.ChunkProcessingTimeout(),
	}, reg, normalize.New(cfg.NormalizationEnabled, cfg.DisabledNormalizationStepsList()),
		codedetect.New(cfg.CodeDetectionEnabled, cfg.CodeConfidenceThreshold), evaluator, tokenizer)
	sc.SyncRules()

	return &components{
		cfg: cfg, logger: logger, registry: reg, loader: loader,
		evaluator: evaluator, scanner: sc, tokenizer: tokenizer,
	}, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug", "DEBUG":
		level = slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		level = slog.LevelWarn
	case "error", "ERROR":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
