package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/allaspectsdev/chatproxy/internal/vault"
)

func cmdKeys(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: chatproxy keys <list|set|delete> [openai|shopify]")
		os.Exit(1)
	}

	v := vault.New()

	switch args[0] {
	case "list":
		names, err := v.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing keys: %v\n", err)
			os.Exit(1)
		}
		if len(names) == 0 {
			fmt.Println("No secrets stored")
			return
		}
		for _, n := range names {
			fmt.Printf("  %s: ****  (%s)\n", n, vault.KeyRef(n))
		}

	case "set":
		name := secretName(args)
		fmt.Printf("Enter secret for %s: ", name)
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading secret: %v\n", err)
			os.Exit(1)
		}
		if strings.TrimSpace(string(secret)) == "" {
			fmt.Fprintln(os.Stderr, "error: empty secret")
			os.Exit(1)
		}
		if err := v.Set(name, strings.TrimSpace(string(secret))); err != nil {
			fmt.Fprintf(os.Stderr, "error storing secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Secret for %s stored. Reference it as %q\n", name, vault.KeyRef(name))

	case "delete":
		name := secretName(args)
		if err := v.Delete(name); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Secret for %s deleted\n", name)

	default:
		fmt.Fprintf(os.Stderr, "unknown keys command: %s\n", args[0])
		os.Exit(1)
	}
}

func secretName(args []string) string {
	if len(args) < 2 {
		fmt.Printf("Usage: chatproxy keys %s <openai|shopify>\n", args[0])
		os.Exit(1)
	}
	name := strings.ToLower(args[1])
	if !vault.Known(name) {
		fmt.Fprintf(os.Stderr, "unknown secret %q (expected openai or shopify)\n", name)
		os.Exit(1)
	}
	return name
}
