package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearCredentialEnv makes sure the host environment cannot leak credentials
// into a test.
func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"OPENAI_API_KEY", "SHOPIFY_STORE_DOMAIN", "SHOPIFY_ADMIN_API_TOKEN",
		"CHATPROXY_COMPLETION_API_KEY", "CHATPROXY_SHOPIFY_STORE_DOMAIN", "CHATPROXY_SHOPIFY_ADMIN_TOKEN",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatproxy.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err == nil {
		t.Fatal("expected error for a nonexistent explicit config path")
	}
}

func TestLoad_WithExplicitFile(t *testing.T) {
	clearCredentialEnv(t)

	path := writeConfig(t, `
[server]
port = 9090
log_level = "debug"

[shopify]
store_domain = "https://example.myshopify.com/"
admin_token = "shpat_test"
product_limit = 10

[completion]
api_key = "sk-test"
model = "gpt-4o"
`)

	cfg, used, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != path {
		t.Errorf("config file used: got %q, want %q", used, path)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Shopify.StoreDomain != "example.myshopify.com" {
		t.Errorf("StoreDomain should be normalised: got %q", cfg.Shopify.StoreDomain)
	}
	if cfg.Shopify.ProductLimit != 10 {
		t.Errorf("ProductLimit: got %d, want 10", cfg.Shopify.ProductLimit)
	}
	if cfg.Completion.Model != "gpt-4o" {
		t.Errorf("Model: got %q, want gpt-4o", cfg.Completion.Model)
	}
	if !cfg.Completion.Configured() || !cfg.Shopify.Configured() {
		t.Error("expected both upstreams to be configured")
	}
	// Untouched keys keep their defaults.
	if cfg.Assistant.FallbackReply != DefaultFallbackReply {
		t.Errorf("FallbackReply: got %q, want default", cfg.Assistant.FallbackReply)
	}
}

func TestLoad_PrefixedEnvOverride(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, "[server]\nport = 3000\n")

	t.Setenv("CHATPROXY_SERVER_PORT", "8888")
	t.Setenv("CHATPROXY_CORS_ALLOWED_ORIGIN", "https://shop.example.com")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("Port with env override: got %d, want 8888", cfg.Server.Port)
	}
	if cfg.CORS.AllowedOrigin != "https://shop.example.com" {
		t.Errorf("AllowedOrigin with env override: got %q", cfg.CORS.AllowedOrigin)
	}
}

func TestLoad_ConventionalCredentialEnv(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, "")

	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("SHOPIFY_STORE_DOMAIN", "store.myshopify.com")
	t.Setenv("SHOPIFY_ADMIN_API_TOKEN", "shpat_env")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Completion.APIKey != "sk-from-env" {
		t.Errorf("APIKey: got %q", cfg.Completion.APIKey)
	}
	if cfg.Shopify.StoreDomain != "store.myshopify.com" {
		t.Errorf("StoreDomain: got %q", cfg.Shopify.StoreDomain)
	}
	if cfg.Shopify.AdminToken != "shpat_env" {
		t.Errorf("AdminToken: got %q", cfg.Shopify.AdminToken)
	}
}

func TestLoad_MissingCredentialsIsNotAnError(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, "")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load without credentials: %v", err)
	}
	if cfg.Completion.Configured() {
		t.Error("completion should not be configured")
	}
	if cfg.Shopify.Configured() {
		t.Error("shopify should not be configured")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 0\n")

	_, _, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
	if !strings.Contains(err.Error(), "server.port") {
		t.Errorf("error should mention server.port: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Shopify.ProductLimit != DefaultProductLimit {
		t.Errorf("ProductLimit: got %d, want %d", cfg.Shopify.ProductLimit, DefaultProductLimit)
	}
	if got := strings.Join(cfg.CORS.AllowedMethods, ","); got != "GET,POST,OPTIONS" {
		t.Errorf("AllowedMethods: got %q", got)
	}
	if got := strings.Join(cfg.CORS.AllowedHeaders, ","); got != "Content-Type" {
		t.Errorf("AllowedHeaders: got %q", got)
	}
	if cfg.Assistant.FallbackReply != "Sorry, I don\u2019t know." {
		t.Errorf("FallbackReply: got %q, want the typographic apostrophe", cfg.Assistant.FallbackReply)
	}
	if !cfg.Assistant.ScreenMessages {
		t.Error("ScreenMessages should default to true")
	}
	if err := validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestTimeoutDuration(t *testing.T) {
	tests := []struct {
		timeout int
		wantSec int
	}{
		{0, DefaultShopifyTimeout},
		{-1, DefaultShopifyTimeout},
		{3, 3},
	}

	for _, tt := range tests {
		s := ShopifyConfig{Timeout: tt.timeout}
		if got := int(s.TimeoutDuration().Seconds()); got != tt.wantSec {
			t.Errorf("ShopifyConfig.TimeoutDuration(%d): got %ds, want %ds", tt.timeout, got, tt.wantSec)
		}
	}

	c := CompletionConfig{}
	if got := int(c.TimeoutDuration().Seconds()); got != DefaultCompletionTimeout {
		t.Errorf("CompletionConfig.TimeoutDuration(0): got %ds, want %ds", got, DefaultCompletionTimeout)
	}
}

type fakeResolver map[string]string

func (f fakeResolver) ResolveKeyRef(ref string) (string, error) {
	if v, ok := f[ref]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestResolveSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Completion.APIKeyRef = "keyring://chatproxy/openai"
	cfg.Shopify.AdminTokenRef = "env:MISSING"

	err := cfg.ResolveSecrets(fakeResolver{"keyring://chatproxy/openai": "sk-vault"})
	if err == nil {
		t.Fatal("expected an error for the unresolvable shopify reference")
	}
	if !strings.Contains(err.Error(), "shopify.admin_token_ref") {
		t.Errorf("error should name the failing reference: %v", err)
	}
	if cfg.Completion.APIKey != "sk-vault" {
		t.Errorf("APIKey: got %q, want sk-vault", cfg.Completion.APIKey)
	}
	if cfg.Shopify.AdminToken != "" {
		t.Errorf("AdminToken should stay empty, got %q", cfg.Shopify.AdminToken)
	}
}

func TestResolveSecrets_InlineValueWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Completion.APIKey = "sk-inline"
	cfg.Completion.APIKeyRef = "keyring://chatproxy/openai"

	if err := cfg.ResolveSecrets(fakeResolver{"keyring://chatproxy/openai": "sk-vault"}); err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if cfg.Completion.APIKey != "sk-inline" {
		t.Errorf("APIKey: got %q, want sk-inline", cfg.Completion.APIKey)
	}
}

func TestExportConfig_BlanksInlineSecrets(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), "exported.toml")

	cfg := DefaultConfig()
	cfg.Completion.APIKey = "sk-secret"
	cfg.Completion.APIKeyRef = "env:OPENAI_API_KEY"
	cfg.Shopify.AdminToken = "shpat_secret"

	if err := ExportConfig(cfg, path); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "sk-secret") || strings.Contains(text, "shpat_secret") {
		t.Error("exported config must not contain inline secrets")
	}
	if !strings.Contains(text, "env:OPENAI_API_KEY") {
		t.Error("exported config should keep key references")
	}
	if cfg.Completion.APIKey != "sk-secret" {
		t.Error("ExportConfig must not mutate the caller's config")
	}

	// The exported file loads back cleanly.
	if _, _, err := Load(path); err != nil {
		t.Errorf("Load exported config: %v", err)
	}
}

func TestShopifyConfig_AdminBaseURL(t *testing.T) {
	s := ShopifyConfig{StoreDomain: "plants.myshopify.com", APIVersion: "2024-07"}
	if got, want := s.AdminBaseURL(), "https://plants.myshopify.com/admin/api/2024-07"; got != want {
		t.Errorf("AdminBaseURL() = %q, want %q", got, want)
	}

	s.APIBase = "http://127.0.0.1:9999/admin"
	if got := s.AdminBaseURL(); got != s.APIBase {
		t.Errorf("AdminBaseURL() with override = %q, want %q", got, s.APIBase)
	}
}
