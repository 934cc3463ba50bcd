package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
server:
  listen: ":8080"
auth:
  session_ttl: 12h
  secret: "0123456789abcdef0123"
  github:
    client_id: id
    client_secret: shh
    redirect_url: http://localhost:8080/auth/github/callback
database:
  driver: sqlite
  sqlite:
    path: /tmp/actionsdash.db
access:
  deploy_allow_users:
    - alice
    - bob
registry:
  backend: file
  file:
    dir: /tmp/registry
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, validConfig)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":8080", cfg.Server.Listen)
				assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
				assert.Equal(t, []string{"alice", "bob"}, cfg.Access.DeployAllowUsers)
				assert.Equal(t, "/tmp/registry", cfg.Registry.File.Dir)
			},
		},
		{
			name: "string override - server.listen",
			envVars: map[string]string{
				"ACTIONSDASH_SERVER_LISTEN": ":9090",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":9090", cfg.Server.Listen)
			},
		},
		{
			name: "duration override - github.timeout",
			envVars: map[string]string{
				"ACTIONSDASH_GITHUB_TIMEOUT": "3s",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 3*time.Second, cfg.GitHub.Timeout)
			},
		},
		{
			name: "boolean override - rate_limit.enabled",
			envVars: map[string]string{
				"ACTIONSDASH_SERVER_RATE_LIMIT_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Server.RateLimit.Enabled)
			},
		},
		{
			name: "csv allowlist override",
			envVars: map[string]string{
				"ACTIONSDASH_ACCESS_DEPLOY_ALLOW_USERS": "carol,dave",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"carol", "dave"}, cfg.Access.DeployAllowUsers)
			},
		},
		{
			name: "legacy allowlist variable",
			envVars: map[string]string{
				"DEPLOY_ALLOW_USERS": "erin",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"erin"}, cfg.Access.DeployAllowUsers)
			},
		},
		{
			name: "legacy workflow file variable",
			envVars: map[string]string{
				"WORKFLOW_FILE": "deploy.yml",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "deploy.yml", cfg.GitHub.WorkflowFile)
			},
		},
		{
			name: "nested override - registry.s3.bucket",
			envVars: map[string]string{
				"ACTIONSDASH_REGISTRY_BACKEND":   "s3",
				"ACTIONSDASH_REGISTRY_S3_BUCKET": "registry-bucket",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, RegistryBackendS3, cfg.Registry.Backend)
				assert.Equal(t, "registry-bucket", cfg.Registry.S3.Bucket)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultSessionTTL, cfg.Auth.SessionTTL)
	assert.Equal(t, DefaultCookieName, cfg.Auth.CookieName)
	assert.Equal(t, []string{"repo", "workflow"}, cfg.Auth.GitHub.Scopes)
	assert.Equal(t, DefaultGitHubAPIURL, cfg.GitHub.APIURL)
	assert.Equal(t, DefaultGitHubTimeout, cfg.GitHub.Timeout)
	assert.Equal(t, DefaultWorkflowFile, cfg.GitHub.WorkflowFile)
	assert.Equal(t, RegistryBackendFile, cfg.Registry.Backend)
	assert.Equal(t, DefaultRegistryKey, cfg.Registry.Key)
	assert.Empty(t, cfg.Access.DeployAllowUsers)
}

func TestLoad_LaterFilesOverride(t *testing.T) {
	base := writeConfig(t, validConfig)
	override := writeConfig(t, "server:\n  listen: \":7000\"\n")

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Listen)
	assert.Equal(t, "/tmp/registry", cfg.Registry.File.Dir)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: yaml: content:")

	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_ValidateServer(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()

		cfg, err := Load(writeConfig(t, validConfig))
		require.NoError(t, err)

		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:      "short secret",
			mutate:    func(cfg *Config) { cfg.Auth.Secret = "short" },
			errSubstr: "auth.secret",
		},
		{
			name:      "missing oauth client",
			mutate:    func(cfg *Config) { cfg.Auth.GitHub.ClientID = "" },
			errSubstr: "auth.github",
		},
		{
			name:      "unknown database driver",
			mutate:    func(cfg *Config) { cfg.Database.Driver = "mysql" },
			errSubstr: "unsupported database driver",
		},
		{
			name:      "unknown registry backend",
			mutate:    func(cfg *Config) { cfg.Registry.Backend = "etcd" },
			errSubstr: "unsupported registry backend",
		},
		{
			name: "s3 backend without bucket",
			mutate: func(cfg *Config) {
				cfg.Registry.Backend = RegistryBackendS3
			},
			errSubstr: "registry.s3.bucket",
		},
		{
			name:      "file backend with nested key",
			mutate:    func(cfg *Config) { cfg.Registry.Key = "../users.json" },
			errSubstr: "plain file name",
		},
		{
			name: "rate limit tier of zero",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit.Enabled = true
				cfg.Server.RateLimit.Auth.RequestsPerMinute = 0
			},
			errSubstr: "rate limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)

			err := cfg.ValidateServer()
			if tt.errSubstr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	red := cfg.Redacted()

	assert.Equal(t, "********", red.Auth.Secret)
	assert.Equal(t, "********", red.Auth.GitHub.ClientSecret)
	assert.Empty(t, red.Registry.S3.SecretAccessKey)
	// Original is untouched.
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.Secret)
}
