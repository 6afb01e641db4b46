// Command chatproxy-lambda serves the chat endpoint from AWS Lambda behind an
// API Gateway HTTP API (payload format 2.0). Configuration comes from the
// environment, e.g. OPENAI_API_KEY, SHOPIFY_STORE_DOMAIN and
// SHOPIFY_ADMIN_API_TOKEN.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/daemon"
	"github.com/allaspectsdev/chatproxy/internal/version"
)

var adapter *httpadapter.HandlerAdapterV2

// newAdapter wraps the same router the standalone server uses. Metrics are
// not collected: there is no scrape endpoint in Lambda.
func newAdapter(cfg *config.Config, logger zerolog.Logger) *httpadapter.HandlerAdapterV2 {
	stack := daemon.NewStack(cfg, logger, nil)
	return httpadapter.NewV2(stack.Handler)
}

func handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return adapter.ProxyWithContext(ctx, req)
}

func main() {
	cfg, _, err := config.Load(os.Getenv("CHATPROXY_CONFIG"))
	logger := daemon.NewLogger(os.Stdout, "json")
	if err != nil {
		logger.Fatal().Err(err).Msg("loading config")
	}
	zerolog.SetGlobalLevel(daemon.ParseLogLevel(cfg.Server.LogLevel))

	shutdown := daemon.InitTracing(context.Background(), cfg.Tracing, logger)
	defer shutdown(context.Background())

	logger.Info().
		Str("version", version.Version).
		Str("function", os.Getenv("AWS_LAMBDA_FUNCTION_NAME")).
		Msg("chatproxy lambda initialised")

	adapter = newAdapter(cfg, logger)
	lambda.Start(handle)
}
