package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for the chat proxy. It is built once
// at process start and handed to the components that need it.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     toml:"server"`
	CORS       CORSConfig       `mapstructure:"cors"       toml:"cors"`
	Shopify    ShopifyConfig    `mapstructure:"shopify"    toml:"shopify"`
	Completion CompletionConfig `mapstructure:"completion" toml:"completion"`
	Assistant  AssistantConfig  `mapstructure:"assistant"  toml:"assistant"`
	Tracing    TracingConfig    `mapstructure:"tracing"    toml:"tracing"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port         int    `mapstructure:"port"          toml:"port"`
	MetricsPort  int    `mapstructure:"metrics_port"  toml:"metrics_port"` // 0 disables
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	LogFormat    string `mapstructure:"log_format"    toml:"log_format"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// CORSConfig is emitted on every response. Only a single origin is allowed.
type CORSConfig struct {
	AllowedOrigin  string   `mapstructure:"allowed_origin"  toml:"allowed_origin"`
	AllowedMethods []string `mapstructure:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers" toml:"allowed_headers"`
}

// ShopifyConfig describes the commerce admin API used for enrichment.
type ShopifyConfig struct {
	StoreDomain   string `mapstructure:"store_domain"    toml:"store_domain"`
	AdminToken    string `mapstructure:"admin_token"     toml:"admin_token"`
	AdminTokenRef string `mapstructure:"admin_token_ref" toml:"admin_token_ref"`
	APIVersion    string `mapstructure:"api_version"     toml:"api_version"`
	APIBase       string `mapstructure:"api_base"        toml:"api_base"` // overrides https://{store_domain}/admin/api/{api_version}
	ProductLimit  int    `mapstructure:"product_limit"   toml:"product_limit"`
	Timeout       int    `mapstructure:"timeout"         toml:"timeout"` // seconds
}

// AdminBaseURL returns the admin API root that resource paths are appended to.
func (s ShopifyConfig) AdminBaseURL() string {
	if s.APIBase != "" {
		return s.APIBase
	}
	return "https://" + s.StoreDomain + "/admin/api/" + s.APIVersion
}

// TimeoutDuration returns the commerce call timeout as a time.Duration.
func (s ShopifyConfig) TimeoutDuration() time.Duration {
	if s.Timeout <= 0 {
		return DefaultShopifyTimeout * time.Second
	}
	return time.Duration(s.Timeout) * time.Second
}

// Configured reports whether both the store domain and the admin token are set.
func (s ShopifyConfig) Configured() bool {
	return strings.TrimSpace(s.StoreDomain) != "" && strings.TrimSpace(s.AdminToken) != ""
}

// CompletionConfig describes the downstream completion API.
type CompletionConfig struct {
	APIBase          string `mapstructure:"api_base"           toml:"api_base"`
	APIKey           string `mapstructure:"api_key"            toml:"api_key"`
	APIKeyRef        string `mapstructure:"api_key_ref"        toml:"api_key_ref"`
	Model            string `mapstructure:"model"              toml:"model"`
	Timeout          int    `mapstructure:"timeout"            toml:"timeout"` // seconds
	MaxContextTokens int    `mapstructure:"max_context_tokens" toml:"max_context_tokens"`
}

// TimeoutDuration returns the completion call timeout as a time.Duration.
func (c CompletionConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return DefaultCompletionTimeout * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// Configured reports whether an API key is available.
func (c CompletionConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// AssistantConfig holds the fixed texts used around the model.
type AssistantConfig struct {
	Persona             string `mapstructure:"persona"              toml:"persona"`
	FallbackReply       string `mapstructure:"fallback_reply"       toml:"fallback_reply"`
	StatusMessage       string `mapstructure:"status_message"       toml:"status_message"`
	ProductsUnavailable string `mapstructure:"products_unavailable" toml:"products_unavailable"`
	PoliciesUnavailable string `mapstructure:"policies_unavailable" toml:"policies_unavailable"`
	ScreenMessages      bool   `mapstructure:"screen_messages"      toml:"screen_messages"` // log suspected injection or secrets
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "chatproxy"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`
}

// SecretResolver turns a key reference ("keyring://chatproxy/openai",
// "env:NAME", "file:///path") into the secret it points at.
type SecretResolver interface {
	ResolveKeyRef(keyRef string) (string, error)
}

// Load reads configuration with the following precedence:
//  1. Environment variables (CHATPROXY_ prefix, _ as separator, plus
//     OPENAI_API_KEY, SHOPIFY_STORE_DOMAIN and SHOPIFY_ADMIN_API_TOKEN)
//  2. The file at explicitPath if non-empty
//  3. ~/.chatproxy/chatproxy.toml
//  4. ./chatproxy.toml
//  5. Built-in defaults
//
// It returns the loaded config and the path of the file used, if any.
// Missing credentials are not a load error.
func Load(explicitPath string) (*Config, string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	v.SetEnvPrefix("CHATPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindConventionalEnv(v); err != nil {
		return nil, "", err
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		if dir := expandHome(DefaultConfigDir); dir != DefaultConfigDir {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFilename, ".toml"))
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, "", fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.normalize()

	if err := validate(cfg); err != nil {
		return nil, "", err
	}

	return cfg, v.ConfigFileUsed(), nil
}

// ResolveSecrets fills empty credentials from their key references. A
// credential that is already set is left untouched. Every failed reference is
// reported; the config remains usable and the affected credential stays empty.
func (c *Config) ResolveSecrets(r SecretResolver) error {
	var errs []error

	if c.Completion.APIKey == "" && c.Completion.APIKeyRef != "" {
		key, err := r.ResolveKeyRef(c.Completion.APIKeyRef)
		if err != nil {
			errs = append(errs, fmt.Errorf("completion.api_key_ref: %w", err))
		} else {
			c.Completion.APIKey = key
		}
	}

	if c.Shopify.AdminToken == "" && c.Shopify.AdminTokenRef != "" {
		token, err := r.ResolveKeyRef(c.Shopify.AdminTokenRef)
		if err != nil {
			errs = append(errs, fmt.Errorf("shopify.admin_token_ref: %w", err))
		} else {
			c.Shopify.AdminToken = token
		}
	}

	return errors.Join(errs...)
}

// InitConfig writes the default configuration file to ~/.chatproxy/chatproxy.toml.
// If the file already exists it is not overwritten. It returns the file path.
func InitConfig() (string, error) {
	dir := expandHome(DefaultConfigDir)
	if dir == DefaultConfigDir {
		return "", fmt.Errorf("determining home directory for %s", DefaultConfigDir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := ExportConfig(DefaultConfig(), path); err != nil {
		return "", err
	}
	return path, nil
}

// ExportConfig writes cfg to the given path in TOML format. Inline secrets
// are blanked so an exported file can be shared; key references are kept.
func ExportConfig(cfg *Config, path string) error {
	out := *cfg
	out.Completion.APIKey = ""
	out.Shopify.AdminToken = ""

	data, err := toml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// normalize trims values that are commonly pasted with stray decoration.
func (c *Config) normalize() {
	domain := strings.TrimSpace(c.Shopify.StoreDomain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	c.Shopify.StoreDomain = strings.TrimSuffix(domain, "/")

	c.Shopify.AdminToken = strings.TrimSpace(c.Shopify.AdminToken)
	c.Shopify.APIBase = strings.TrimSuffix(strings.TrimSpace(c.Shopify.APIBase), "/")
	c.Completion.APIKey = strings.TrimSpace(c.Completion.APIKey)
	c.Completion.APIBase = strings.TrimSuffix(strings.TrimSpace(c.Completion.APIBase), "/")
	c.CORS.AllowedOrigin = strings.TrimSuffix(strings.TrimSpace(c.CORS.AllowedOrigin), "/")
}

// bindConventionalEnv binds the credential keys to the environment variable
// names most hosting dashboards already use.
func bindConventionalEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"completion.api_key":   {"CHATPROXY_COMPLETION_API_KEY", "OPENAI_API_KEY"},
		"shopify.store_domain": {"CHATPROXY_SHOPIFY_STORE_DOMAIN", "SHOPIFY_STORE_DOMAIN"},
		"shopify.admin_token":  {"CHATPROXY_SHOPIFY_ADMIN_TOKEN", "SHOPIFY_ADMIN_API_TOKEN"},
	}
	for key, names := range bindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	return nil
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.metrics_port", d.Server.MetricsPort)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.log_format", d.Server.LogFormat)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// CORS
	v.SetDefault("cors.allowed_origin", d.CORS.AllowedOrigin)
	v.SetDefault("cors.allowed_methods", d.CORS.AllowedMethods)
	v.SetDefault("cors.allowed_headers", d.CORS.AllowedHeaders)

	// Shopify
	v.SetDefault("shopify.store_domain", d.Shopify.StoreDomain)
	v.SetDefault("shopify.admin_token", d.Shopify.AdminToken)
	v.SetDefault("shopify.admin_token_ref", d.Shopify.AdminTokenRef)
	v.SetDefault("shopify.api_version", d.Shopify.APIVersion)
	v.SetDefault("shopify.api_base", d.Shopify.APIBase)
	v.SetDefault("shopify.product_limit", d.Shopify.ProductLimit)
	v.SetDefault("shopify.timeout", d.Shopify.Timeout)

	// Completion
	v.SetDefault("completion.api_base", d.Completion.APIBase)
	v.SetDefault("completion.api_key", d.Completion.APIKey)
	v.SetDefault("completion.api_key_ref", d.Completion.APIKeyRef)
	v.SetDefault("completion.model", d.Completion.Model)
	v.SetDefault("completion.timeout", d.Completion.Timeout)
	v.SetDefault("completion.max_context_tokens", d.Completion.MaxContextTokens)

	// Assistant
	v.SetDefault("assistant.persona", d.Assistant.Persona)
	v.SetDefault("assistant.fallback_reply", d.Assistant.FallbackReply)
	v.SetDefault("assistant.status_message", d.Assistant.StatusMessage)
	v.SetDefault("assistant.products_unavailable", d.Assistant.ProductsUnavailable)
	v.SetDefault("assistant.policies_unavailable", d.Assistant.PoliciesUnavailable)
	v.SetDefault("assistant.screen_messages", d.Assistant.ScreenMessages)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
