package config

import "time"

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	// StaticDir holds the built dashboard assets. Empty disables serving
	// them, leaving only /api and /auth.
	StaticDir string `yaml:"static_dir,omitempty" mapstructure:"static_dir"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig contains session and OAuth settings.
type AuthConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	CookieName string        `yaml:"cookie_name" mapstructure:"cookie_name"`
	// Secret derives the key that encrypts GitHub access tokens at rest.
	Secret string           `yaml:"secret" mapstructure:"secret"`
	GitHub GitHubAuthConfig `yaml:"github" mapstructure:"github"`
}

// GitHubAuthConfig configures the GitHub OAuth application.
type GitHubAuthConfig struct {
	ClientID     string   `yaml:"client_id,omitempty" mapstructure:"client_id"`
	ClientSecret string   `yaml:"client_secret,omitempty" mapstructure:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url,omitempty" mapstructure:"redirect_url"`
	Scopes       []string `yaml:"scopes,omitempty" mapstructure:"scopes"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// GitHubConfig contains settings for calls made against the GitHub REST API
// with the signed-in user's token.
type GitHubConfig struct {
	APIURL       string        `yaml:"api_url" mapstructure:"api_url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	WorkflowFile string        `yaml:"workflow_file" mapstructure:"workflow_file"`
}

// AccessConfig contains the static deploy policy.
type AccessConfig struct {
	// DeployAllowUsers are always allowed to deploy, regardless of the
	// user registry.
	DeployAllowUsers []string `yaml:"deploy_allow_users,omitempty" mapstructure:"deploy_allow_users"`
}

// RegistryConfig selects where the user registry document is persisted.
type RegistryConfig struct {
	Backend string             `yaml:"backend" mapstructure:"backend"`
	Key     string             `yaml:"key" mapstructure:"key"`
	File    RegistryFileConfig `yaml:"file,omitempty" mapstructure:"file"`
	S3      RegistryS3Config   `yaml:"s3,omitempty" mapstructure:"s3"`
}

// RegistryFileConfig stores the registry as a JSON file in Dir.
type RegistryFileConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Owner optionally chowns the written file, formatted as "UID:GID".
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// RegistryS3Config stores the registry as an object in an S3 bucket.
type RegistryS3Config struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}
