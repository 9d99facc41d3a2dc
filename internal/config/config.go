package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Blob      BlobConfig      `yaml:"blob"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Deploy    DeployConfig    `yaml:"deploy"`
	Retention RetentionConfig `yaml:"retention"`
	GitHost   GitHostConfig   `yaml:"githost"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// LedgerConfig selects and configures the durable record store.
type LedgerConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`
}

// BlobConfig contains blob bucket settings for large-content overflow.
type BlobConfig struct {
	// Backend is "azure" or "memory".
	Backend string `yaml:"backend"`

	StorageAccount   string `yaml:"storage_account"`
	Container        string `yaml:"container"`
	ConnectionString string `yaml:"connection_string"`
	SASToken         string `yaml:"sas_token"`
	// For service principal auth
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// Use managed identity
	UseManagedIdentity bool `yaml:"use_managed_identity"`
}

// WebhookConfig contains inbound webhook settings.
type WebhookConfig struct {
	// Secret is the shared HMAC secret. Empty disables signature checks.
	Secret string `yaml:"secret"`
}

// DeployConfig contains deployment orchestration settings.
type DeployConfig struct {
	// BranchMappings overrides the default branch→environment mapping.
	BranchMappings map[string]string `yaml:"branch_mappings"`
	// DocumentExtensions lists file extensions treated as documents.
	DocumentExtensions []string `yaml:"document_extensions"`
	// SiteBaseURL is the root URL previews and production deploys hang off.
	SiteBaseURL string `yaml:"site_base_url"`
	// RawContentBaseURL is where pushed document bodies are fetched from,
	// pinned per push to the delivered commit.
	RawContentBaseURL string `yaml:"raw_content_base_url"`
}

// RetentionConfig contains version retention settings.
type RetentionConfig struct {
	Days        int `yaml:"days"`
	MinVersions int `yaml:"min_versions"`
}

// GitHostConfig contains Git hosting API settings for status reporting.
type GitHostConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	Token      string `yaml:"token"`
	// Repository is the "owner/name" slug statuses and comments target.
	Repository string `yaml:"repository"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified config options
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "sqlite"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "./press-vault.db"
	}

	if c.Blob.Backend == "" {
		c.Blob.Backend = "memory"
	}
	if c.Blob.Container == "" {
		c.Blob.Container = "content-overflow"
	}

	if len(c.Deploy.DocumentExtensions) == 0 {
		c.Deploy.DocumentExtensions = []string{".md", ".markdown", ".mdx"}
	}
	if c.Deploy.SiteBaseURL == "" {
		c.Deploy.SiteBaseURL = "https://example.com"
	}
	if c.Deploy.RawContentBaseURL == "" {
		c.Deploy.RawContentBaseURL = "https://raw.githubusercontent.com"
	}

	if c.Retention.Days == 0 {
		c.Retention.Days = 30
	}
	if c.Retention.MinVersions == 0 {
		c.Retention.MinVersions = 1
	}

	if c.GitHost.APIBaseURL == "" {
		c.GitHost.APIBaseURL = "https://api.github.com"
	}
}

// validate checks that the configuration is valid
func (c *Config) validate() error {
	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q (sqlite or postgres)", c.Ledger.Driver)
	}

	switch c.Blob.Backend {
	case "memory":
	case "azure":
		if c.Blob.StorageAccount == "" {
			return fmt.Errorf("blob.storage_account is required for the azure backend")
		}
		if c.Blob.GetAuthMethod() == "none" {
			return fmt.Errorf("no Azure authentication method configured (connection_string, sas_token, managed_identity, or service principal)")
		}
	default:
		return fmt.Errorf("unknown blob backend %q (azure or memory)", c.Blob.Backend)
	}

	for _, ext := range c.Deploy.DocumentExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("document extension %q must start with a dot", ext)
		}
	}

	if c.GitHost.Token != "" && c.GitHost.Repository == "" {
		return fmt.Errorf("githost.repository is required when githost.token is set")
	}

	return nil
}

// GetAuthMethod returns a string describing the configured auth method
func (c *BlobConfig) GetAuthMethod() string {
	if c.ConnectionString != "" {
		return "connection_string"
	}
	if c.SASToken != "" {
		return "sas_token"
	}
	if c.UseManagedIdentity {
		return "managed_identity"
	}
	if c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" {
		return "service_principal"
	}
	return "none"
}

// GetServiceURL returns the Azure Blob service URL
func (c *BlobConfig) GetServiceURL() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.StorageAccount)
}
