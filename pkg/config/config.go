package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable override, e.g.
	// ACTIONSDASH_SERVER_LISTEN for server.listen.
	EnvPrefix = "ACTIONSDASH"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":5000"

	// DefaultSessionTTL is the default lifetime of a login session.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultCookieName is the default session cookie name.
	DefaultCookieName = "actionsdash_session"

	// DefaultGitHubAPIURL is the public GitHub REST API.
	DefaultGitHubAPIURL = "https://api.github.com"

	// DefaultGitHubTimeout bounds every call made to the GitHub API.
	DefaultGitHubTimeout = 10 * time.Second

	// DefaultWorkflowFile is the workflow dispatched by the deploy action.
	DefaultWorkflowFile = "ci.yml"

	// DefaultRegistryKey is the document name of the user registry.
	DefaultRegistryKey = "users.json"

	// DefaultRegistryDir is the default directory of the file registry.
	DefaultRegistryDir = "./data"

	minSecretLength = 16
)

// Registry backends.
const (
	RegistryBackendFile     = "file"
	RegistryBackendS3       = "s3"
	RegistryBackendDatabase = "database"
)

// Config is the root configuration for actionsdash.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	GitHub   GitHubConfig   `yaml:"github" mapstructure:"github"`
	Access   AccessConfig   `yaml:"access" mapstructure:"access"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
}

// Load reads the given YAML files in order (later files override earlier
// ones), applies ACTIONSDASH_* environment overrides and defaults, and
// decodes the result. With no paths only defaults and environment apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Environment names understood by earlier deployments of the dashboard.
	if err := v.BindEnv(
		"access.deploy_allow_users",
		EnvPrefix+"_ACCESS_DEPLOY_ALLOW_USERS", "DEPLOY_ALLOW_USERS",
	); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	if err := v.BindEnv(
		"github.workflow_file",
		EnvPrefix+"_GITHUB_WORKFLOW_FILE", "WORKFLOW_FILE",
	); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every known key so that AutomaticEnv can override
// keys absent from the config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.auth.requests_per_minute", 20)
	v.SetDefault("server.rate_limit.authenticated.requests_per_minute", 300)
	v.SetDefault("server.static_dir", "")

	v.SetDefault("auth.session_ttl", DefaultSessionTTL.String())
	v.SetDefault("auth.cookie_name", DefaultCookieName)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.github.client_id", "")
	v.SetDefault("auth.github.client_secret", "")
	v.SetDefault("auth.github.redirect_url", "")
	v.SetDefault("auth.github.scopes", []string{"repo", "workflow"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "actionsdash.db")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "actionsdash")
	v.SetDefault("database.postgres.ssl_mode", "disable")

	v.SetDefault("github.api_url", DefaultGitHubAPIURL)
	v.SetDefault("github.timeout", DefaultGitHubTimeout.String())
	v.SetDefault("github.workflow_file", DefaultWorkflowFile)

	v.SetDefault("access.deploy_allow_users", []string{})

	v.SetDefault("registry.backend", RegistryBackendFile)
	v.SetDefault("registry.key", DefaultRegistryKey)
	v.SetDefault("registry.file.dir", DefaultRegistryDir)
	v.SetDefault("registry.file.owner", "")
	v.SetDefault("registry.s3.endpoint_url", "")
	v.SetDefault("registry.s3.region", "")
	v.SetDefault("registry.s3.bucket", "")
	v.SetDefault("registry.s3.prefix", "")
	v.SetDefault("registry.s3.access_key_id", "")
	v.SetDefault("registry.s3.secret_access_key", "")
	v.SetDefault("registry.s3.force_path_style", false)
}

// Validate checks the settings shared by every command: the database and
// the user registry backend.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Registry.Key == "" {
		return fmt.Errorf("registry.key is required")
	}

	switch c.Registry.Backend {
	case RegistryBackendFile:
		if c.Registry.File.Dir == "" {
			return fmt.Errorf("registry.file.dir is required")
		}

		if strings.ContainsAny(c.Registry.Key, `/\`) {
			return fmt.Errorf("registry.key %q must be a plain file name", c.Registry.Key)
		}
	case RegistryBackendS3:
		if c.Registry.S3.Bucket == "" {
			return fmt.Errorf("registry.s3.bucket is required")
		}
	case RegistryBackendDatabase:
	default:
		return fmt.Errorf("unsupported registry backend %q", c.Registry.Backend)
	}

	return nil
}

// ValidateServer checks the settings needed to run the HTTP server.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	if len(c.Auth.Secret) < minSecretLength {
		return fmt.Errorf(
			"auth.secret must be at least %d characters", minSecretLength,
		)
	}

	gh := c.Auth.GitHub
	if gh.ClientID == "" || gh.ClientSecret == "" || gh.RedirectURL == "" {
		return fmt.Errorf(
			"auth.github.client_id, client_secret and redirect_url are required",
		)
	}

	if c.GitHub.WorkflowFile == "" {
		return fmt.Errorf("github.workflow_file is required")
	}

	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be positive")
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Auth.RequestsPerMinute <= 0 ||
			c.Server.RateLimit.Authenticated.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate limit tiers must allow at least one request per minute")
		}
	}

	return nil
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c *Config) Redacted() *Config {
	out := *c

	mask := func(s string) string {
		if s == "" {
			return ""
		}

		return "********"
	}

	out.Auth.Secret = mask(c.Auth.Secret)
	out.Auth.GitHub.ClientSecret = mask(c.Auth.GitHub.ClientSecret)
	out.Database.Postgres.Password = mask(c.Database.Postgres.Password)
	out.Registry.S3.SecretAccessKey = mask(c.Registry.S3.SecretAccessKey)

	return &out
}
