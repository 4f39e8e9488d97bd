package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/usulan/commitmsg"
	"github.com/byte4ever/usulan/proposal"
)

// Supported providers.
const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
	ProviderMemory    = "memory"
)

// ErrInvalid reports an unusable configuration.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration
// string in YAML (e.g. "30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (d *Duration) UnmarshalYAML(b []byte) error {
	const errCtx = "decoding duration"

	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	*d = Duration(v)

	return nil
}

// MarshalYAML implements yaml.BytesMarshaler.
func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// GitHub configures the GitHub provider.
type GitHub struct {
	Owner          string `yaml:"owner"`
	Repo           string `yaml:"repo"`
	Token          string `yaml:"token"`
	EnterpriseHost string `yaml:"enterprise_host"`
	APIURL         string `yaml:"api_url"`
}

// GitLab configures the GitLab provider.
type GitLab struct {
	Host  string `yaml:"host"`
	Repo  string `yaml:"repo"`
	Token string `yaml:"token"`
}

// Bitbucket configures the Bitbucket Server provider.
type Bitbucket struct {
	BaseURL  string `yaml:"base_url"`
	Project  string `yaml:"project"`
	Repo     string `yaml:"repo"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Memory configures the in-memory provider used for
// local runs.
type Memory struct {
	// Seed is a local JSON file loaded as the initial
	// dataset. Empty starts from an empty array.
	Seed    string `yaml:"seed"`
	BaseURL string `yaml:"base_url"`
}

// Config is the full service configuration.
type Config struct {
	Provider string `yaml:"provider"`
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	// Paths lists the routes accepting submissions.
	Paths []string `yaml:"paths"`

	BaseBranch       string `yaml:"base_branch"`
	DatasetPath      string `yaml:"dataset_path"`
	BranchPrefix     string `yaml:"branch_prefix"`
	MaxSegmentLength int    `yaml:"max_segment_length"`
	EmptySegment     string `yaml:"empty_segment"`

	WriteAttempts         int      `yaml:"write_attempts"`
	RetryInitialInterval  Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval      Duration `yaml:"retry_max_interval"`
	CleanupOrphanBranches bool     `yaml:"cleanup_orphan_branches"`
	CleanupTimeout        Duration `yaml:"cleanup_timeout"`

	RequestTimeout    Duration `yaml:"request_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64    `yaml:"max_body_bytes"`
	LegacyErrors      bool     `yaml:"legacy_errors"`
	ExposeErrorDetail bool     `yaml:"expose_error_detail"`

	Messages commitmsg.Templates `yaml:"messages"`

	GitHub    GitHub    `yaml:"github"`
	GitLab    GitLab    `yaml:"gitlab"`
	Bitbucket Bitbucket `yaml:"bitbucket"`
	Memory    Memory    `yaml:"memory"`
}

// Default returns the configuration used when nothing
// is set.
func Default() *Config {
	return &Config{
		Provider: ProviderGitHub,
		Listen:   ":8888",
		LogLevel: "info",
		Paths: []string{
			"/submit-word",
			"/.netlify/functions/submit-word",
		},
		BaseBranch:            proposal.DefaultBaseBranch,
		DatasetPath:           proposal.DefaultDatasetPath,
		BranchPrefix:          proposal.DefaultBranchPrefix,
		WriteAttempts:         proposal.DefaultWriteAttempts,
		RetryInitialInterval:  Duration(proposal.DefaultRetryInitialInterval),
		RetryMaxInterval:      Duration(proposal.DefaultRetryMaxInterval),
		CleanupOrphanBranches: true,
		CleanupTimeout:        Duration(proposal.DefaultCleanupTimeout),
		RequestTimeout:        Duration(30 * time.Second),
		ShutdownTimeout:       Duration(10 * time.Second),
		MaxBodyBytes:          64 << 10,
		ExposeErrorDetail:     true,
		GitLab: GitLab{
			Host: "https://gitlab.com",
		},
		Memory: Memory{
			BaseURL: "http://localhost/kamus",
		},
	}
}

// Load reads the YAML file at path over the defaults,
// applies the process environment, and validates the
// result. An empty path skips the file.
func Load(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is Load with override applied after the
// environment and before validation. Command line flags
// use it.
func LoadWith(
	path string,
	override func(*Config),
) (*Config, error) {
	const errCtx = "loading configuration"

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		if err := cfg.Decode(raw); err != nil {
			return nil, fmt.Errorf(
				"%s: %s: %w", errCtx, path, err,
			)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

// Decode overlays YAML document raw on cfg. Keys absent
// from raw keep their current value.
func (c *Config) Decode(raw []byte) error {
	const errCtx = "decoding yaml"

	if err := yaml.UnmarshalWithOptions(
		raw, c, yaml.Strict(),
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// ApplyEnv overlays environment variables read through
// lookup.
func (c *Config) ApplyEnv(
	lookup func(string) (string, bool),
) error {
	const errCtx = "applying environment"

	strs := []struct {
		key string
		dst *string
	}{
		{"GITHUB_TOKEN", &c.GitHub.Token},
		{"GITHUB_REPO", &c.GitHub.Repo},
		{"GITHUB_USER", &c.GitHub.Owner},
		{"USULAN_PROVIDER", &c.Provider},
		{"USULAN_LISTEN", &c.Listen},
		{"USULAN_LOG_LEVEL", &c.LogLevel},
		{"USULAN_BASE_BRANCH", &c.BaseBranch},
		{"USULAN_DATASET_PATH", &c.DatasetPath},
		{"USULAN_BRANCH_PREFIX", &c.BranchPrefix},
		{"USULAN_GITHUB_API_URL", &c.GitHub.APIURL},
		{"USULAN_GITLAB_HOST", &c.GitLab.Host},
		{"USULAN_GITLAB_REPO", &c.GitLab.Repo},
		{"USULAN_GITLAB_TOKEN", &c.GitLab.Token},
		{"USULAN_BITBUCKET_URL", &c.Bitbucket.BaseURL},
		{"USULAN_BITBUCKET_PROJECT", &c.Bitbucket.Project},
		{"USULAN_BITBUCKET_REPO", &c.Bitbucket.Repo},
		{"USULAN_BITBUCKET_USER", &c.Bitbucket.User},
		{"USULAN_BITBUCKET_PASSWORD", &c.Bitbucket.Password},
	}

	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup("USULAN_WRITE_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf(
				"%s: USULAN_WRITE_ATTEMPTS: %w", errCtx, err,
			)
		}

		c.WriteAttempts = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"USULAN_LEGACY_ERRORS", &c.LegacyErrors},
		{"USULAN_EXPOSE_ERROR_DETAIL", &c.ExposeErrorDetail},
		{"USULAN_CLEANUP_ORPHAN_BRANCHES", &c.CleanupOrphanBranches},
	}

	for _, b := range bools {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}

		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", errCtx, b.key, err)
		}

		*b.dst = parsed
	}

	if v, ok := lookup("USULAN_REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf(
				"%s: USULAN_REQUEST_TIMEOUT: %w", errCtx, err,
			)
		}

		c.RequestTimeout = Duration(d)
	}

	return nil
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []error

	problem := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(
			"%w: "+format, append([]any{ErrInvalid}, args...)...,
		))
	}

	switch c.Provider {
	case ProviderGitHub:
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			problem("github owner and repo must be set")
		}

		if c.GitHub.Token == "" {
			problem("github token must be set")
		}
	case ProviderGitLab:
		if c.GitLab.Repo == "" || c.GitLab.Token == "" {
			problem("gitlab repo and token must be set")
		}
	case ProviderBitbucket:
		if c.Bitbucket.BaseURL == "" ||
			c.Bitbucket.Project == "" ||
			c.Bitbucket.Repo == "" {
			problem("bitbucket base_url, project and repo must be set")
		}

		if c.Bitbucket.User == "" || c.Bitbucket.Password == "" {
			problem("bitbucket user and password must be set")
		}
	case ProviderMemory:
	default:
		problem("unknown provider %q", c.Provider)
	}

	if _, err := c.Level(); err != nil {
		problem("log_level: %v", err)
	}

	if len(c.Paths) == 0 {
		problem("at least one path must be set")
	}

	for _, p := range c.Paths {
		if !strings.HasPrefix(p, "/") {
			problem("path %q must start with /", p)
		}
	}

	if slices.Contains(c.Paths, "/healthz") ||
		slices.Contains(c.Paths, "/metrics") {
		problem("paths must not shadow /healthz or /metrics")
	}

	if c.BaseBranch == "" || c.DatasetPath == "" {
		problem("base_branch and dataset_path must be set")
	}

	if c.WriteAttempts < 1 {
		problem("write_attempts must be at least 1")
	}

	if c.MaxSegmentLength < 0 {
		problem("max_segment_length must not be negative")
	}

	if c.MaxBodyBytes <= 0 {
		problem("max_body_bytes must be positive")
	}

	if err := c.Messages.Validate(); err != nil {
		problem("messages: %v", err)
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level

	err := lvl.UnmarshalText([]byte(c.LogLevel))

	return lvl, err
}

// ProposalConfig returns the orchestrator settings.
func (c *Config) ProposalConfig() proposal.Config {
	return proposal.Config{
		BaseBranch:  c.BaseBranch,
		DatasetPath: c.DatasetPath,
		Branch: proposal.BranchOptions{
			Prefix:           c.BranchPrefix,
			MaxSegmentLength: c.MaxSegmentLength,
			EmptySegment:     c.EmptySegment,
		},
		Templates:            c.Messages,
		WriteAttempts:        c.WriteAttempts,
		RetryInitialInterval: time.Duration(c.RetryInitialInterval),
		RetryMaxInterval:     time.Duration(c.RetryMaxInterval),
		KeepOrphanBranches:   !c.CleanupOrphanBranches,
		CleanupTimeout:       time.Duration(c.CleanupTimeout),
	}
}
