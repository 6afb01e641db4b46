package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail. Credentials are not
// checked here: a deployment without them must still answer liveness checks.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.metrics_port must be between 0 and 65535, got %d", cfg.Server.MetricsPort))
	}
	if cfg.Server.MetricsPort != 0 && cfg.Server.MetricsPort == cfg.Server.Port {
		errs = append(errs, fmt.Sprintf("server.port and server.metrics_port must differ, both are %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if !isValidEnum(cfg.Server.LogFormat, ValidLogFormats) {
		errs = append(errs, fmt.Sprintf("server.log_format must be one of %v, got %q", ValidLogFormats, cfg.Server.LogFormat))
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// CORS validation
	if !isHTTPURL(cfg.CORS.AllowedOrigin) {
		errs = append(errs, fmt.Sprintf("cors.allowed_origin must be an absolute http(s) origin, got %q", cfg.CORS.AllowedOrigin))
	}
	if len(cfg.CORS.AllowedMethods) == 0 {
		errs = append(errs, "cors.allowed_methods must not be empty")
	}

	// Shopify validation
	if cfg.Shopify.APIVersion == "" {
		errs = append(errs, "shopify.api_version must not be empty")
	}
	if cfg.Shopify.ProductLimit < 1 || cfg.Shopify.ProductLimit > MaxProductLimit {
		errs = append(errs, fmt.Sprintf("shopify.product_limit must be between 1 and %d, got %d", MaxProductLimit, cfg.Shopify.ProductLimit))
	}
	if cfg.Shopify.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("shopify.timeout must be non-negative, got %d", cfg.Shopify.Timeout))
	}
	if strings.ContainsAny(cfg.Shopify.StoreDomain, "/?# ") {
		errs = append(errs, fmt.Sprintf("shopify.store_domain must be a bare host name, got %q", cfg.Shopify.StoreDomain))
	}

	if cfg.Shopify.APIBase != "" && !isHTTPURL(cfg.Shopify.APIBase) {
		errs = append(errs, fmt.Sprintf("shopify.api_base must be an absolute http(s) URL, got %q", cfg.Shopify.APIBase))
	}

	// Completion validation
	if !isHTTPURL(cfg.Completion.APIBase) {
		errs = append(errs, fmt.Sprintf("completion.api_base must be an absolute http(s) URL, got %q", cfg.Completion.APIBase))
	}
	if cfg.Completion.Model == "" {
		errs = append(errs, "completion.model must not be empty")
	}
	if cfg.Completion.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("completion.timeout must be non-negative, got %d", cfg.Completion.Timeout))
	}
	if cfg.Completion.MaxContextTokens < 0 {
		errs = append(errs, fmt.Sprintf("completion.max_context_tokens must be non-negative, got %d", cfg.Completion.MaxContextTokens))
	}

	// Assistant validation
	if strings.TrimSpace(cfg.Assistant.FallbackReply) == "" {
		errs = append(errs, "assistant.fallback_reply must not be empty")
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidTracingExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", ValidTracingExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
