package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/daemon"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/shopify"
	"github.com/allaspectsdev/chatproxy/internal/tokenizer"
	"github.com/allaspectsdev/chatproxy/internal/upstream"
	"github.com/allaspectsdev/chatproxy/internal/vault"
)

func cmdCheck(args []string) {
	path, rest := splitConfigFlag(args)
	live := false
	for _, a := range rest {
		if a == "--live" {
			live = true
		}
	}

	cfg, used, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ResolveSecrets(vault.New()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if used == "" {
		used = "(defaults and environment only)"
	}
	fmt.Printf("Config:      %s\n", used)
	fmt.Printf("Listen:      :%d\n", cfg.Server.Port)
	fmt.Printf("CORS origin: %s\n", cfg.CORS.AllowedOrigin)
	fmt.Printf("Completion:  %s (model %s) %s\n", cfg.Completion.APIBase, cfg.Completion.Model, status(cfg.Completion.Configured()))
	fmt.Printf("Shopify:     %s %s\n", cfg.Shopify.StoreDomain, status(cfg.Shopify.Configured()))
	fmt.Printf("Persona:     %s\n", personaTokens(cfg))

	ok := cfg.Completion.Configured()
	if live && cfg.Shopify.Configured() {
		observer := observe.NewLogger(daemon.NewLogger(os.Stderr, "console"))
		shop := shopify.NewClient(upstream.NewClient(observer, nil), cfg.Shopify)
		ctx := context.Background()
		_, productsOK := shop.ProductBlock(ctx, "")
		_, policiesOK := shop.PolicyBlock(ctx, "")
		fmt.Printf("Products:    %s\n", reach(productsOK))
		fmt.Printf("Policies:    %s\n", reach(policiesOK))
		ok = ok && productsOK && policiesOK
	}

	if !ok {
		os.Exit(1)
	}
}

func personaTokens(cfg *config.Config) string {
	tok := tokenizer.New()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := tok.Preload(ctx, cfg.Completion.Model); err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}
	return fmt.Sprintf("%d tokens", tok.CountTokens(cfg.Completion.Model, cfg.Assistant.Persona))
}

func status(configured bool) string {
	if configured {
		return "[configured]"
	}
	return "[MISSING CREDENTIALS]"
}

func reach(ok bool) string {
	if ok {
		return "reachable"
	}
	return "FAILED"
}
