// Package vault resolves the upstream credentials the proxy needs without
// requiring them to sit in plain text in the config file.
package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "chatproxy"

// knownSecrets is the list of secret names checked by List().
var knownSecrets = []string{"openai", "shopify"}

// Vault reads and writes secrets in the OS keychain, with fallback to
// environment variables.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores a secret under the given name in the OS keychain.
func (v *Vault) Set(name, secret string) error {
	return keyring.Set(serviceName, name, secret)
}

// Get retrieves the secret stored under name. It first checks the OS
// keychain, then falls back to CHATPROXY_KEY_{UPPER(name)}.
func (v *Vault) Get(name string) (string, error) {
	secret, err := keyring.Get(serviceName, name)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := envName(name)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no secret found for %q: not in keychain and %s not set", name, envKey)
}

// Delete removes the secret stored under name from the OS keychain.
func (v *Vault) Delete(name string) error {
	return keyring.Delete(serviceName, name)
}

// List returns the known secret names that are currently available from
// either the keychain or the environment.
func (v *Vault) List() ([]string, error) {
	var names []string
	for _, name := range knownSecrets {
		if _, err := v.Get(name); err == nil {
			names = append(names, name)
		}
	}
	return names, nil
}

// ResolveKeyRef parses a key reference and retrieves the corresponding secret.
// Supported formats:
//   - "keyring://chatproxy/<name>"
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/secret"
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	switch {
	case strings.HasPrefix(keyRef, "keyring://"):
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://%s/<name>\")", keyRef, serviceName)
		}
		return v.Get(parts[1])

	case strings.HasPrefix(keyRef, "env:"):
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := strings.TrimSpace(os.Getenv(envVar)); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)

	case strings.HasPrefix(keyRef, "file://"):
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", filePath, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %q is empty", filePath)
		}
		return key, nil
	}

	return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://%s/<name>\", \"env:VARIABLE_NAME\", or \"file:///path/to/key\")", keyRef, serviceName)
}

// KeyRef returns the keyring reference for a stored secret, suitable for
// completion.api_key_ref or shopify.admin_token_ref.
func KeyRef(name string) string {
	return "keyring://" + serviceName + "/" + name
}

// Known reports whether name is one of the secrets the proxy reads.
func Known(name string) bool {
	for _, n := range knownSecrets {
		if n == name {
			return true
		}
	}
	return false
}

func envName(name string) string {
	return "CHATPROXY_KEY_" + strings.ToUpper(name)
}
