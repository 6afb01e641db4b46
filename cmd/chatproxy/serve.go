package main

import (
	"fmt"
	"os"

	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/daemon"
)

func cmdServe(args []string) {
	path, _ := splitConfigFlag(args)

	cfg, used, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := daemon.Run(cfg, used); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdInitConfig() {
	path, err := config.InitConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error generating config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", path)
	fmt.Println("Store secrets with 'chatproxy keys set openai' and 'chatproxy keys set shopify'.")
}

func cmdConfigExport(args []string) {
	configPath, rest := splitConfigFlag(args)
	path := "chatproxy-export.toml"
	if len(rest) > 0 {
		path = rest[0]
	}

	cfg, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ExportConfig(cfg, path); err != nil {
		fmt.Fprintf(os.Stderr, "error exporting config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config exported to %s\n", path)
}
