package config

// DefaultPort is the default listen port for the chat endpoint.
const DefaultPort = 3000

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultLogFormat is the default log output format.
const DefaultLogFormat = "json"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "chatproxy.toml"

// DefaultConfigDir is the per-user config directory (before tilde expansion).
const DefaultConfigDir = "~/.chatproxy"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// It must cover both enrichment fetches plus the completion call.
const DefaultWriteTimeout = 60

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum inbound request body size (64 KiB).
const DefaultMaxBodySize = 64 << 10

// DefaultAllowedOrigin is the storefront origin allowed by CORS.
const DefaultAllowedOrigin = "https://devilsdick.myshopify.com"

// DefaultShopifyAPIVersion is the admin API version used in request paths.
const DefaultShopifyAPIVersion = "2024-07"

// DefaultProductLimit is the number of products requested per chat turn.
const DefaultProductLimit = 5

// MaxProductLimit is the largest page size the admin API accepts.
const MaxProductLimit = 250

// DefaultShopifyTimeout is the per-call commerce API timeout in seconds.
const DefaultShopifyTimeout = 10

// DefaultCompletionAPIBase is the completion API base URL.
const DefaultCompletionAPIBase = "https://api.openai.com/v1"

// DefaultCompletionModel is the model identifier sent with every completion.
const DefaultCompletionModel = "gpt-4o-mini"

// DefaultCompletionTimeout is the completion call timeout in seconds.
const DefaultCompletionTimeout = 30

// DefaultMaxContextTokens bounds each rendered enrichment block.
const DefaultMaxContextTokens = 1500

// DefaultPersona is the fixed persona description opening the system prompt.
const DefaultPersona = "You are Planty, a helpful AI assistant for a Shopify store. " +
	"You can answer questions about store policies, products, and general help."

// DefaultFallbackReply is returned whenever no model answer is available.
const DefaultFallbackReply = "Sorry, I don’t know."

// DefaultStatusMessage is the liveness payload returned on GET.
const DefaultStatusMessage = "Chat proxy running ✅"

// DefaultProductsUnavailable replaces the product block when it cannot be fetched.
const DefaultProductsUnavailable = "Product information is currently unavailable."

// DefaultPoliciesUnavailable replaces the policy block when it cannot be fetched.
const DefaultPoliciesUnavailable = "Store policy information is currently unavailable."

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "chatproxy"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidLogFormats lists the allowed log output formats.
var ValidLogFormats = []string{"json", "console"}

// ValidTracingExporters lists the supported span exporters.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			MetricsPort:  0,
			LogLevel:     DefaultLogLevel,
			LogFormat:    DefaultLogFormat,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		CORS: CORSConfig{
			AllowedOrigin:  DefaultAllowedOrigin,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		},
		Shopify: ShopifyConfig{
			StoreDomain:   "",
			AdminToken:    "",
			AdminTokenRef: "",
			APIVersion:    DefaultShopifyAPIVersion,
			APIBase:       "",
			ProductLimit:  DefaultProductLimit,
			Timeout:       DefaultShopifyTimeout,
		},
		Completion: CompletionConfig{
			APIBase:          DefaultCompletionAPIBase,
			APIKey:           "",
			APIKeyRef:        "",
			Model:            DefaultCompletionModel,
			Timeout:          DefaultCompletionTimeout,
			MaxContextTokens: DefaultMaxContextTokens,
		},
		Assistant: AssistantConfig{
			Persona:             DefaultPersona,
			FallbackReply:       DefaultFallbackReply,
			StatusMessage:       DefaultStatusMessage,
			ProductsUnavailable: DefaultProductsUnavailable,
			PoliciesUnavailable: DefaultPoliciesUnavailable,
			ScreenMessages:      true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
	}
}
