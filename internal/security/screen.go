// Package security screens inbound customer messages for prompt injection
// attempts and sensitive data. Screening is advisory: findings are logged
// and counted, and the message is forwarded unchanged.
package security

import (
	"encoding/base64"
	"slices"
)

// Finding is a single pattern hit. The matched text is deliberately not
// kept so findings can be logged without copying customer data.
type Finding struct {
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
}

var (
	injection = injectionPatterns()
	sensitive = sensitivePatterns()
)

// Scan returns every distinct pattern that matches text, in pattern order.
func Scan(text string) []Finding {
	var findings []Finding
	seen := make(map[string]bool)
	add := func(name, category string) {
		if seen[name] {
			return
		}
		seen[name] = true
		findings = append(findings, Finding{Pattern: name, Category: category})
	}

	for _, p := range injection {
		if p.re.MatchString(text) {
			add(p.name, p.category)
		}
	}
	for _, p := range sensitive {
		for _, m := range p.re.FindAllString(text, -1) {
			if p.validate == nil || p.validate(m) {
				add(p.name, p.category)
				break
			}
		}
	}
	for _, block := range base64Block.FindAllString(text, -1) {
		decoded, ok := decodeBase64(block)
		if !ok {
			continue
		}
		for _, p := range injection {
			if p.re.MatchString(decoded) {
				add(p.name+"_base64", CategoryEncodedInjection)
			}
		}
	}
	return findings
}

// Categories returns the sorted distinct categories of findings.
func Categories(findings []Finding) []string {
	var out []string
	for _, f := range findings {
		if !slices.Contains(out, f.Category) {
			out = append(out, f.Category)
		}
	}
	slices.Sort(out)
	return out
}

func decodeBase64(s string) (string, bool) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding,
		base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), true
		}
	}
	return "", false
}
