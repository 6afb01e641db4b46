package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/allaspectsdev/chatproxy/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "keys":
		cmdKeys(os.Args[2:])
	case "init-config":
		cmdInitConfig()
	case "config-export":
		cmdConfigExport(os.Args[2:])
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: chatproxy <command> [options]

Commands:
  serve            Run the chat proxy HTTP server
  check            Validate configuration and credentials
  keys             Manage API secrets (list|set|delete <openai|shopify>)
  init-config      Generate default config file
  config-export    Export current config to a TOML file (secrets blanked)
  version          Print version information
  help             Show this help message

Options:
  --config <path>  Use this config file (serve, check, config-export)
  --live           Also call the Shopify API (with 'check')`)
}

// splitConfigFlag pulls "--config <path>" or "--config=<path>" out of args.
func splitConfigFlag(args []string) (string, []string) {
	var path string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--config" || a == "-c":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(a, "--config="):
			path = strings.TrimPrefix(a, "--config=")
		default:
			rest = append(rest, a)
		}
	}
	return path, rest
}
