package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gitlab.com/zkboost.net/internal/domain"
)

const (
	DefaultPort            = 3000
	DefaultSyncWaitTimeout = 30 * time.Second
	DefaultJobRetention    = time.Hour
)

// Duration reads "30s"-style strings from YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServiceConfig is the program file
type ServiceConfig struct {
	Port            int                       `yaml:"port" toml:"port"`
	WebhookURL      string                    `yaml:"webhook_url" toml:"webhook_url"`
	SyncWaitTimeout Duration                  `yaml:"sync_wait_timeout" toml:"sync_wait_timeout"`
	JobRetention    Duration                  `yaml:"job_retention" toml:"job_retention"`
	Coordinator     CoordinatorConfig         `yaml:"coordinator" toml:"coordinator"`
	Backends        map[string]BackendSection `yaml:"backends" toml:"backends"`
	Programs        []ProgramConfig           `yaml:"programs" toml:"programs"`
}

// CoordinatorConfig tunes the worker pool. Zero values take the
// coordinator defaults; a negative retry ceiling disables reassignment.
type CoordinatorConfig struct {
	RetryCeiling  int      `yaml:"retry_ceiling" toml:"retry_ceiling"`
	ProbeInterval Duration `yaml:"probe_interval" toml:"probe_interval"`
	ProbeTimeout  Duration `yaml:"probe_timeout" toml:"probe_timeout"`
	EvictAfter    Duration `yaml:"evict_after" toml:"evict_after"`
}

type BackendSection struct {
	MaxConcurrent   int      `yaml:"max_concurrent" toml:"max_concurrent"`
	QueueDepth      int      `yaml:"queue_depth" toml:"queue_depth"`
	Timeout         Duration `yaml:"timeout" toml:"timeout"`
	Binary          string   `yaml:"binary" toml:"binary"`
	Endpoint        string   `yaml:"endpoint" toml:"endpoint"`
	APIKey          string   `yaml:"api_key" toml:"api_key"`
	MockProvingTime Duration `yaml:"mock_proving_time" toml:"mock_proving_time"`
	MockProofSize   int      `yaml:"mock_proof_size" toml:"mock_proof_size"`
}

type ProgramConfig struct {
	ProgramID      string `yaml:"program_id" toml:"program_id"`
	Backend        string `yaml:"backend" toml:"backend"`
	Engine         string `yaml:"engine" toml:"engine"`
	Artifact       string `yaml:"artifact" toml:"artifact"`
	ArtifactURL    string `yaml:"artifact_url" toml:"artifact_url"`
	ArtifactDigest string `yaml:"artifact_digest" toml:"artifact_digest"`
}

// LoadServiceConfig reads a program file, picking TOML for .toml and YAML
// otherwise.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseServiceConfig(raw, filepath.Ext(path))
}

func ParseServiceConfig(raw []byte, ext string) (*ServiceConfig, error) {
	var cfg ServiceConfig
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.SyncWaitTimeout <= 0 {
		c.SyncWaitTimeout = Duration(DefaultSyncWaitTimeout)
	}
	if c.JobRetention <= 0 {
		c.JobRetention = Duration(DefaultJobRetention)
	}
	if c.Backends == nil {
		c.Backends = map[string]BackendSection{}
	}
}

// Validate checks shape only; duplicate ids and missing adapters are
// caught when the registry is built.
func (c *ServiceConfig) Validate() error {
	for name, b := range c.Backends {
		if _, err := domain.ParseBackendKind(name); err != nil {
			return fmt.Errorf("backends: %w", err)
		}
		if b.MaxConcurrent < 0 || b.QueueDepth < 0 {
			return fmt.Errorf("backends.%s: max_concurrent and queue_depth must not be negative", name)
		}
	}
	for i, p := range c.Programs {
		if p.ProgramID == "" {
			return fmt.Errorf("programs[%d]: program_id is required", i)
		}
		if _, err := domain.ParseBackendKind(p.Backend); err != nil {
			return fmt.Errorf("programs[%d] %s: %w", i, p.ProgramID, err)
		}
		if p.Artifact != "" && p.ArtifactURL != "" {
			return fmt.Errorf("programs[%d] %s: artifact and artifact_url are exclusive", i, p.ProgramID)
		}
		if p.ArtifactDigest != "" {
			if _, err := domain.ParseDigest(p.ArtifactDigest); err != nil {
				return fmt.Errorf("programs[%d] %s: %w", i, p.ProgramID, err)
			}
		}
	}
	return nil
}

// Backend returns the section of kind, zero if absent
func (c *ServiceConfig) Backend(kind domain.BackendKind) (BackendSection, bool) {
	b, ok := c.Backends[string(kind)]
	return b, ok
}
