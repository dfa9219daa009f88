package flags

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "PAGETRACE"

// prefixEnvVar turns a flag name into its single prefixed env var,
// e.g. "reports-dir" becomes PAGETRACE_REPORTS_DIR.
func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + strings.ReplaceAll(strings.ToUpper(name), "-", "_")}
}

var (
	ReportsDir = &cli.StringFlag{
		Name:    "reports-dir",
		Value:   "reports",
		EnvVars: prefixEnvVar("reports-dir"),
		Usage:   "Root directory under which per-execution report directories are created",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVar("config"),
		Usage:   "Path to config file (eg. 'pagetrace.yaml')",
	}
	ExecutionID = &cli.StringFlag{
		Name:    "execution-id",
		Value:   "",
		EnvVars: []string{"PAGETRACE_EXECUTION_ID"},
		Usage:   "Execution identifier; generated from the start time when omitted",
	}
	LaunchName = &cli.StringFlag{
		Name:    "launch-name",
		Value:   "",
		EnvVars: prefixEnvVar("launch-name"),
		Usage:   "Name for the remote launch; defaults to the execution id",
	}
	RemoteEndpoint = &cli.StringFlag{
		Name:    "remote-endpoint",
		Value:   "",
		EnvVars: prefixEnvVar("remote-endpoint"),
		Usage:   "Base URL of the remote reporting service; remote reporting is disabled when empty",
	}
	RemoteProject = &cli.StringFlag{
		Name:    "remote-project",
		Value:   "",
		EnvVars: prefixEnvVar("remote-project"),
		Usage:   "Project name on the remote reporting service",
	}
	RemoteAPIKey = &cli.StringFlag{
		Name:    "remote-api-key",
		Value:   "",
		EnvVars: prefixEnvVar("remote-api-key"),
		Usage:   "API key for the remote reporting service",
	}
	FlushTimeout = &cli.DurationFlag{
		Name:    "flush-timeout",
		Value:   10 * time.Second,
		EnvVars: prefixEnvVar("flush-timeout"),
		Usage:   "Maximum time to wait for the remote delivery queue to drain at finalization",
	}
	SettleDelay = &cli.DurationFlag{
		Name:    "settle-delay",
		Value:   2 * time.Second,
		EnvVars: prefixEnvVar("settle-delay"),
		Usage:   "Grace period for asynchronous writers to settle before the process exits",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("log-level"),
		Usage:   "Log level (debug, info, warn, error)",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "",
		EnvVars: prefixEnvVar("metrics-addr"),
		Usage:   "Listen address for the Prometheus metrics server (eg. ':7300'); disabled when empty",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "",
		EnvVars: prefixEnvVar("healthz-addr"),
		Usage:   "Listen address for the health check server (eg. ':8080'); disabled when empty",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	ReportsDir,
	ConfigFile,
	ExecutionID,
	LaunchName,
	RemoteEndpoint,
	RemoteProject,
	RemoteAPIKey,
	FlushTimeout,
	SettleDelay,
	LogLevel,
	MetricsAddr,
	HealthzAddr,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

// CheckRemote validates that the remote flags are set consistently: an
// endpoint needs a project, and vice versa.
func CheckRemote(ctx *cli.Context) error {
	endpoint := ctx.String(RemoteEndpoint.Name)
	project := ctx.String(RemoteProject.Name)
	if endpoint != "" && project == "" {
		return fmt.Errorf("flag %s is required when %s is set", RemoteProject.Name, RemoteEndpoint.Name)
	}
	if project != "" && endpoint == "" {
		return fmt.Errorf("flag %s is required when %s is set", RemoteEndpoint.Name, RemoteProject.Name)
	}
	return nil
}
