package security

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Finding categories.
const (
	CategoryInstructionOverride = "instruction_override"
	CategoryDelimiterInjection  = "delimiter_injection"
	CategoryRoleConfusion       = "role_confusion"
	CategoryEncodedInjection    = "encoded_injection"
	CategorySensitiveData       = "sensitive_data"
)

type pattern struct {
	name     string
	category string
	re       *regexp.Regexp
	// validate rejects regex hits that are false positives. Nil accepts all.
	validate func(match string) bool
}

func injectionPatterns() []pattern {
	return []pattern{
		{name: "ignore_previous", category: CategoryInstructionOverride,
			re: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|directives?|rules?)`)},
		{name: "disregard_above", category: CategoryInstructionOverride,
			re: regexp.MustCompile(`(?i)disregard\s+(all\s+)?(above|previous|prior|earlier)\s*(instructions?|prompts?|directives?|text)?`)},
		{name: "new_instructions", category: CategoryInstructionOverride,
			re: regexp.MustCompile(`(?i)(new|updated|revised|real)\s+instructions?\s*:`)},
		{name: "system_prompt", category: CategoryInstructionOverride,
			re: regexp.MustCompile(`(?i)(system\s+prompt\s*:|(reveal|show|print|repeat)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions))`)},
		{name: "forget_instructions", category: CategoryInstructionOverride,
			re: regexp.MustCompile(`(?i)forget\s+(all\s+)?(your\s+)?(previous\s+)?(instructions?|rules?|guidelines?)`)},

		{name: "code_block_system", category: CategoryDelimiterInjection,
			re: regexp.MustCompile("(?i)```\\s*system")},
		{name: "markdown_system", category: CategoryDelimiterInjection,
			re: regexp.MustCompile(`(?i)###\s+SYSTEM`)},
		{name: "chatml", category: CategoryDelimiterInjection,
			re: regexp.MustCompile(`<\|im_(start|end)\|>`)},
		{name: "xml_system_tag", category: CategoryDelimiterInjection,
			re: regexp.MustCompile(`(?i)<\s*/?\s*system\s*>`)},

		{name: "you_are_now", category: CategoryRoleConfusion,
			re: regexp.MustCompile(`(?i)you\s+are\s+now\s+`)},
		{name: "act_as_if", category: CategoryRoleConfusion,
			re: regexp.MustCompile(`(?i)act\s+as\s+if\s+you\s+(are|were)\s+`)},
		{name: "pretend_you_are", category: CategoryRoleConfusion,
			re: regexp.MustCompile(`(?i)pretend\s+(that\s+)?you\s+are\s+`)},
		{name: "roleplay_as", category: CategoryRoleConfusion,
			re: regexp.MustCompile(`(?i)(roleplay|role[\-\s]play)\s+as\s+`)},
	}
}

// base64Block finds candidate encoded payloads; each is decoded and rescanned.
var base64Block = regexp.MustCompile(`[A-Za-z0-9+/_\-]{24,}={0,2}`)

func sensitivePatterns() []pattern {
	return []pattern{
		{name: "credit_card", category: CategorySensitiveData,
			re: regexp.MustCompile(`\b(?:\d[\s\-]?){13,19}\b`), validate: validateCreditCard},
		{name: "ssn", category: CategorySensitiveData,
			re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), validate: validateSSN},
		{name: "api_key", category: CategorySensitiveData,
			re: regexp.MustCompile(`(?:sk-[a-zA-Z0-9_\-]{20,})|(?:shpat_[a-fA-F0-9]{32})|(?:AKIA[A-Z0-9]{16})|(?:ghp_[a-zA-Z0-9]{36})`)},
		{name: "secret_assignment", category: CategorySensitiveData,
			re:       regexp.MustCompile(`(?i)(?:api[_\-]?key|secret|token|password)\s*[=:]\s*["']?[a-zA-Z0-9/+_\-]{16,}["']?`),
			validate: validateHighEntropy},
	}
}

// validateSSN rejects area, group or serial numbers that are never issued.
func validateSSN(match string) bool {
	if len(match) != 11 {
		return false
	}
	area, group, serial := match[0:3], match[4:6], match[7:11]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

// validateCreditCard keeps only the digits and applies the Luhn check.
func validateCreditCard(match string) bool {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, match)
	if n := len(digits); n < 13 || n > 19 {
		return false
	}
	return luhnCheck(digits)
}

func luhnCheck(number string) bool {
	sum := 0
	alt := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

func validateHighEntropy(match string) bool {
	if i := strings.IndexAny(match, "=:"); i >= 0 {
		match = strings.Trim(strings.TrimSpace(match[i+1:]), `"'`)
	}
	return shannonEntropy(match) > 3.5
}

// shannonEntropy returns the entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]float64)
	var n float64
	for _, r := range s {
		freq[r]++
		n++
	}
	entropy := 0.0
	for _, count := range freq {
		p := count / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
