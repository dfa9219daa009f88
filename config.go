package pagetrace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/flags"
	"github.com/pagetrace/pagetrace/types"
)

// Config holds the application configuration
type Config struct {
	ReportsDir  string // Root directory for per-execution report directories
	ExecutionID string // Explicit execution id; generated from the start time when empty
	LaunchName  string // Name of the remote launch; defaults to the execution id

	RemoteEndpoint string        // Remote reporting service base URL; empty disables remote reporting
	RemoteProject  string        // Project name on the remote service
	RemoteAPIKey   string        // API key for the remote service
	FlushTimeout   time.Duration // Bound on draining the remote delivery queue at finalization
	SettleDelay    time.Duration // Grace period for asynchronous writers before exit

	HealthzAddr string // Healthz server listen address; empty disables it
	MetricsAddr string // Metrics server listen address; empty disables it

	Policy           artifacts.Policy  // Per-type attachment enablement
	NetworkURLFilter string            // Substring filter for captured network events
	Metadata         map[string]string // Key-value pairs stamped onto the execution

	Log *zap.SugaredLogger
}

// fileConfig is the optional YAML config file shape.
type fileConfig struct {
	Attachments struct {
		Local *bool           `yaml:"local"`
		Types map[string]bool `yaml:"types"`
	} `yaml:"attachments"`
	Remote struct {
		Endpoint string `yaml:"endpoint"`
		Project  string `yaml:"project"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"remote"`
	Network struct {
		URLFilter string `yaml:"url_filter"`
	} `yaml:"network"`
	Metadata map[string]string `yaml:"metadata"`
}

// NewConfig creates a new Config from cli context. Flag values take precedence
// over the config file; the file takes precedence over built-in defaults.
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger) (*Config, error) {
	if err := flags.CheckRemote(ctx); err != nil {
		return nil, fmt.Errorf("inconsistent remote flags: %w", err)
	}

	cfg := &Config{
		ReportsDir:     ctx.String(flags.ReportsDir.Name),
		ExecutionID:    ctx.String(flags.ExecutionID.Name),
		LaunchName:     ctx.String(flags.LaunchName.Name),
		RemoteEndpoint: ctx.String(flags.RemoteEndpoint.Name),
		RemoteProject:  ctx.String(flags.RemoteProject.Name),
		RemoteAPIKey:   ctx.String(flags.RemoteAPIKey.Name),
		FlushTimeout:   ctx.Duration(flags.FlushTimeout.Name),
		SettleDelay:    ctx.Duration(flags.SettleDelay.Name),
		HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:    ctx.String(flags.MetricsAddr.Name),
		Policy:         artifacts.DefaultPolicy(),
		Metadata:       make(map[string]string),
		Log:            log,
	}

	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.ExecutionID != "" {
		if err := types.ValidateExecutionID(cfg.ExecutionID); err != nil {
			return nil, fmt.Errorf("invalid execution id: %w", err)
		}
	}

	absReportsDir, err := filepath.Abs(cfg.ReportsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for reports directory '%s': %w", cfg.ReportsDir, err)
	}
	cfg.ReportsDir = absReportsDir

	return cfg, nil
}

// applyFile merges the YAML config file into the config. Values already set
// from flags are kept.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Attachments.Local != nil {
		c.Policy.LocalEnabled = *fc.Attachments.Local
	}
	for name, enabled := range fc.Attachments.Types {
		t := types.AttachmentType(name)
		if _, known := c.Policy.Enabled[t]; !known {
			return fmt.Errorf("config file %s names unknown attachment type %q", path, name)
		}
		c.Policy.Enabled[t] = enabled
	}

	if c.RemoteEndpoint == "" {
		c.RemoteEndpoint = fc.Remote.Endpoint
	}
	if c.RemoteProject == "" {
		c.RemoteProject = fc.Remote.Project
	}
	if c.RemoteAPIKey == "" {
		c.RemoteAPIKey = fc.Remote.APIKey
	}
	if (c.RemoteEndpoint == "") != (c.RemoteProject == "") {
		return fmt.Errorf("config file %s must set remote endpoint and project together", path)
	}

	c.NetworkURLFilter = fc.Network.URLFilter
	for k, v := range fc.Metadata {
		c.Metadata[k] = v
	}
	return nil
}

// RemoteEnabled reports whether remote reporting is configured.
func (c *Config) RemoteEnabled() bool {
	return c.RemoteEndpoint != "" && c.RemoteProject != ""
}
