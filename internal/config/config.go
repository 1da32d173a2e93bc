// Package config loads Layer-0 settings from the environment with secure
// defaults, the way AIBoMGen's root.go wires viper's env-var support, but
// with every setting keyed directly (no config file - Layer-0 runs as a
// sidecar service provisioned by env vars, not interactively by operators).
// Field names and defaults are grounded on original_source/layer0/config.py.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the Layer-0 scanner reads at startup. Changing
// it after startup has no effect except through the dataset hot-reload path
// (internal/service's /datasets/reload), which re-reads the dataset
// directory under DatasetPath but not this struct.
type Config struct {
	RegexTimeoutMS int
	RegexEngine    string

	StopOnFirstMatch        bool
	EnsembleScoring         bool
	EnsembleThresholdReject float64
	EnsembleThresholdWarn   float64

	PrefilterKeywords string
	PrefilterEnabled  bool

	DisableNormalizationSteps string
	NormalizationEnabled      bool

	CodeDetectionEnabled    bool
	CodeConfidenceThreshold float64

	DatasetHMACSecret string
	DatasetPath       string
	AllowlistedHashes string

	FailOpen bool

	MLSuspicionEnabled bool

	MetricsEnabled bool
	LogLevel       string
	LogFormat      string

	APIHost    string
	APIPort    int
	APIWorkers int
	APIReload  bool
	APIKey     string

	MaxInputLength           int
	MaxChunks                int
	ChunkProcessingTimeoutMS int

	AuditLogPath string
}

// Load reads Config from the environment, using the L0_ prefix the way
// the Python original's BaseSettings did with env_prefix="L0_".
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("L0")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("regex_timeout_ms", 100)
	v.SetDefault("regex_engine", "re2")
	v.SetDefault("stop_on_first_match", true)
	v.SetDefault("ensemble_scoring", false)
	v.SetDefault("ensemble_threshold_reject", 0.95)
	v.SetDefault("ensemble_threshold_warn", 0.7)
	v.SetDefault("prefilter_keywords", "ignore,override,jailbreak,system,prompt,instructions")
	v.SetDefault("prefilter_enabled", true)
	v.SetDefault("disable_normalization_steps", "")
	v.SetDefault("normalization_enabled", true)
	v.SetDefault("code_detection_enabled", true)
	v.SetDefault("code_confidence_threshold", 0.7)
	v.SetDefault("dataset_hmac_secret", "change-me-in-production")
	v.SetDefault("dataset_path", "datasets")
	v.SetDefault("allowlisted_hashes", "")
	v.SetDefault("fail_open", false)
	v.SetDefault("ml_suspicion_enabled", false)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 8000)
	v.SetDefault("api_workers", 4)
	v.SetDefault("api_reload", false)
	v.SetDefault("api_key", "")
	v.SetDefault("max_input_length", 100_000)
	v.SetDefault("max_chunks", 1000)
	v.SetDefault("chunk_processing_timeout_ms", 5000)
	v.SetDefault("audit_log_path", "l0scanner-audit.db")

	for _, key := range []string{
		"regex_timeout_ms", "regex_engine", "stop_on_first_match", "ensemble_scoring",
		"ensemble_threshold_reject", "ensemble_threshold_warn", "prefilter_keywords",
		"prefilter_enabled", "disable_normalization_steps", "normalization_enabled",
		"code_detection_enabled", "code_confidence_threshold", "dataset_hmac_secret",
		"dataset_path", "allowlisted_hashes", "fail_open", "ml_suspicion_enabled",
		"metrics_enabled", "log_level", "log_format", "api_host", "api_port",
		"api_workers", "api_reload", "api_key", "max_input_length", "max_chunks",
		"chunk_processing_timeout_ms", "audit_log_path",
	} {
		_ = v.BindEnv(key)
	}

	return &Config{
		RegexTimeoutMS:            v.GetInt("regex_timeout_ms"),
		RegexEngine:               v.GetString("regex_engine"),
		StopOnFirstMatch:          v.GetBool("stop_on_first_match"),
		EnsembleScoring:           v.GetBool("ensemble_scoring"),
		EnsembleThresholdReject:   v.GetFloat64("ensemble_threshold_reject"),
		EnsembleThresholdWarn:     v.GetFloat64("ensemble_threshold_warn"),
		PrefilterKeywords:         v.GetString("prefilter_keywords"),
		PrefilterEnabled:          v.GetBool("prefilter_enabled"),
		DisableNormalizationSteps: v.GetString("disable_normalization_steps"),
		NormalizationEnabled:      v.GetBool("normalization_enabled"),
		CodeDetectionEnabled:      v.GetBool("code_detection_enabled"),
		CodeConfidenceThreshold:   v.GetFloat64("code_confidence_threshold"),
		DatasetHMACSecret:         v.GetString("dataset_hmac_secret"),
		DatasetPath:               v.GetString("dataset_path"),
		AllowlistedHashes:         v.GetString("allowlisted_hashes"),
		FailOpen:                  v.GetBool("fail_open"),
		MLSuspicionEnabled:        v.GetBool("ml_suspicion_enabled"),
		MetricsEnabled:            v.GetBool("metrics_enabled"),
		LogLevel:                  v.GetString("log_level"),
		LogFormat:                 v.GetString("log_format"),
		APIHost:                   v.GetString("api_host"),
		APIPort:                   v.GetInt("api_port"),
		APIWorkers:                v.GetInt("api_workers"),
		APIReload:                 v.GetBool("api_reload"),
		APIKey:                    v.GetString("api_key"),
		MaxInputLength:            v.GetInt("max_input_length"),
		MaxChunks:                 v.GetInt("max_chunks"),
		ChunkProcessingTimeoutMS:  v.GetInt("chunk_processing_timeout_ms"),
		AuditLogPath:              v.GetString("audit_log_path"),
	}
}

// PrefilterKeywordsList splits PrefilterKeywords on commas, trimming and
// lower-casing each entry, mirroring config.py's prefilter_keywords_list.
func (c *Config) PrefilterKeywordsList() []string {
	return splitLower(c.PrefilterKeywords)
}

// DisabledNormalizationStepsList splits DisableNormalizationSteps on commas,
// mirroring config.py's disabled_normalization_steps.
func (c *Config) DisabledNormalizationStepsList() []string {
	if c.DisableNormalizationSteps == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(c.DisableNormalizationSteps, ",") {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// AllowlistedHashesList splits AllowlistedHashes on commas, mirroring
// config.py's allowlisted_hashes_list.
func (c *Config) AllowlistedHashesList() []string {
	if c.AllowlistedHashes == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(c.AllowlistedHashes, ",") {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func splitLower(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, kw := range strings.Split(s, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// RegexTimeoutMSString returns RegexTimeoutMS as a decimal string of
// milliseconds for logging/display contexts.
func (c *Config) RegexTimeoutMSString() string {
	return strconv.Itoa(c.RegexTimeoutMS)
}

// ChunkProcessingTimeout converts ChunkProcessingTimeoutMS to a
// time.Duration for the scanner's end-to-end scan deadline.
func (c *Config) ChunkProcessingTimeout() time.Duration {
	return time.Duration(c.ChunkProcessingTimeoutMS) * time.Millisecond
}
