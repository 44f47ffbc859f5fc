// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"

	"github.com/niavasha/greenledger/internal/domain/model"
)

// ThresholdBoundary is one classification boundary in configuration form.
type ThresholdBoundary struct {
	Lower float64 `koanf:"lower"`
	Label string  `koanf:"label"`
}

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory intake queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of intake workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Thresholds classify completion ratios into status labels.
	Thresholds []ThresholdBoundary `koanf:"thresholds"`

	// VelocityWindowDays bounds the lookback for velocity KPIs.
	VelocityWindowDays int `koanf:"velocity_window_days"`

	// LedgerDriver selects the ledger backend: memory or sqlite.
	LedgerDriver string `koanf:"ledger_driver"`

	// LedgerSQLitePath is the database file for the sqlite driver.
	LedgerSQLitePath string `koanf:"ledger_sqlite_path"`

	// ArtifactBackend selects the artifact store: memory, fs or s3.
	ArtifactBackend string `koanf:"artifact_backend"`

	// ArtifactFSDir is the directory for the fs backend.
	ArtifactFSDir string `koanf:"artifact_fs_dir"`

	// ArtifactS3Bucket and ArtifactS3Prefix configure the s3 backend.
	ArtifactS3Bucket string `koanf:"artifact_s3_bucket"`
	ArtifactS3Prefix string `koanf:"artifact_s3_prefix"`

	// ReportServiceURL is the narrative generation endpoint. Empty
	// disables report generation.
	ReportServiceURL string `koanf:"report_service_url"`

	// ReportTimeoutMS bounds a single narrative service call.
	ReportTimeoutMS int `koanf:"report_timeout_ms"`

	// ReportMaxRetries caps narrative call attempts.
	ReportMaxRetries int `koanf:"report_max_retries"`

	// ReportMaxNarrativeBytes caps accepted narrative size.
	ReportMaxNarrativeBytes int `koanf:"report_max_narrative_bytes"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		EventQueueSize: 100_000,
		WorkerCount:    runtime.NumCPU() * 4,
		DedupeSize:     50_000,
		Thresholds: []ThresholdBoundary{
			{Lower: 0, Label: "off-track"},
			{Lower: 0.5, Label: "at-risk"},
			{Lower: 0.8, Label: "on-track"},
		},
		VelocityWindowDays:      30,
		LedgerDriver:            "memory",
		LedgerSQLitePath:        "greenledger.db",
		ArtifactBackend:         "memory",
		ArtifactFSDir:           "artifacts",
		ReportTimeoutMS:         180_000,
		ReportMaxRetries:        3,
		ReportMaxNarrativeBytes: 1 << 20,
	}
}

// ThresholdSet converts the configured boundaries to the domain type.
func (c *Config) ThresholdSet() model.ThresholdSet {
	out := make(model.ThresholdSet, 0, len(c.Thresholds))
	for _, b := range c.Thresholds {
		out = append(out, model.Threshold{Lower: b.Lower, Label: b.Label})
	}
	return out
}
