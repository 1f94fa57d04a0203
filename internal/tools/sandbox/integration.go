package sandbox

import (
	"strconv"
	"strings"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/config"
)

// Register registers the sandbox executor as a tool with the agent runtime.
// This is a convenience function for integration with the Nexus agent.
func Register(runtime *agent.AgenticRuntime, opts ...Option) error {
	executor, err := NewExecutor(opts...)
	if err != nil {
		return err
	}

	runtime.RegisterTool(executor)
	return nil
}

// MustRegister registers the sandbox executor and panics on error.
// Use this in initialization code where errors should be fatal.
func MustRegister(runtime *agent.AgenticRuntime, opts ...Option) {
	if err := Register(runtime, opts...); err != nil {
		panic(err)
	}
}

// BuildExecutor translates a SandboxConfig into an Executor, wiring the
// Daytona backend configuration through when selected. workspaceRoot falls
// back to cfg.WorkspaceRoot when cfg.WorkspaceRoot is empty.
func BuildExecutor(cfg config.SandboxConfig, workspaceRoot string) (*Executor, error) {
	opts := []Option{
		WithBackend(Backend(backendOrDefault(cfg.Backend))),
		WithDefaultWorkspaceAccess(ParseWorkspaceAccess(cfg.WorkspaceAccess)),
	}

	if cfg.PoolSize > 0 {
		opts = append(opts, WithPoolSize(cfg.PoolSize))
	}
	if cfg.MaxPoolSize > 0 {
		opts = append(opts, WithMaxPoolSize(cfg.MaxPoolSize))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithDefaultTimeout(cfg.Timeout))
	}
	opts = append(opts, WithNetworkEnabled(cfg.NetworkEnabled))

	if cfg.Limits.MaxCPU > 0 {
		opts = append(opts, WithDefaultCPU(cfg.Limits.MaxCPU))
	}
	if mb := parseMemoryMB(cfg.Limits.MaxMemory); mb > 0 {
		opts = append(opts, WithDefaultMemory(mb))
	}

	root := cfg.WorkspaceRoot
	if root == "" {
		root = workspaceRoot
	}
	if root != "" {
		opts = append(opts, WithWorkspaceRoot(root))
	}

	if Backend(backendOrDefault(cfg.Backend)) == BackendDaytona {
		opts = append(opts, WithDaytonaConfig(DaytonaConfig{
			APIKey:         cfg.Daytona.APIKey,
			JWTToken:       cfg.Daytona.JWTToken,
			OrganizationID: cfg.Daytona.OrganizationID,
			APIURL:         cfg.Daytona.APIURL,
			Target:         cfg.Daytona.Target,
			Snapshot:       cfg.Daytona.Snapshot,
			Image:          cfg.Daytona.Image,
			SandboxClass:   cfg.Daytona.SandboxClass,
			WorkspaceDir:   cfg.Daytona.WorkspaceDir,
			NetworkAllow:   cfg.Daytona.NetworkAllow,
			ReuseSandbox:   cfg.Daytona.ReuseSandbox,
			AutoStop:       cfg.Daytona.AutoStop,
			AutoArchive:    cfg.Daytona.AutoArchive,
			AutoDelete:     cfg.Daytona.AutoDelete,
		}))
	}

	return NewExecutor(opts...)
}

func backendOrDefault(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case string(BackendDocker), string(BackendFirecracker), string(BackendDaytona):
		return v
	default:
		return string(BackendDocker)
	}
}

// parseMemoryMB parses free-form memory limit strings ("512", "512m",
// "512mb", "1g", "1gb") into megabytes. Returns 0 if raw is empty or
// unparseable, in which case the executor's built-in default applies.
func parseMemoryMB(raw string) int {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return 0
	}
	multiplier := 1
	switch {
	case strings.HasSuffix(v, "gb"):
		v = strings.TrimSuffix(v, "gb")
		multiplier = 1024
	case strings.HasSuffix(v, "g"):
		v = strings.TrimSuffix(v, "g")
		multiplier = 1024
	case strings.HasSuffix(v, "mb"):
		v = strings.TrimSuffix(v, "mb")
	case strings.HasSuffix(v, "m"):
		v = strings.TrimSuffix(v, "m")
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0
	}
	return n * multiplier
}
