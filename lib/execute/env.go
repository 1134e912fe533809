// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package execute

import (
	"sort"
	"strings"
)

// Baseline variables every child process needs to function.
var childEnvAllowlist = map[string]bool{
	"PATH":   true,
	"HOME":   true,
	"USER":   true,
	"SHELL":  true,
	"LANG":   true,
	"TERM":   true,
	"TMPDIR": true,
}

var childEnvAllowlistPrefixes = []string{"LC_", "XDG_"}

var childEnvSecretSuffixes = []string{"_TOKEN", "_KEY", "_SECRET"}

// Harness CLIs need these credentials to authenticate. The list is
// explicit so secret-shaped variables stay blocked unless named here.
var harnessEnvPassThrough = map[string]bool{
	"ANTHROPIC_API_KEY":  true,
	"ANTHROPIC_BASE_URL": true,
	"OPENAI_API_KEY":     true,
	"OPENAI_ORG_ID":      true,
	"OPENAI_PROJECT_ID":  true,
	"OPENAI_BASE_URL":    true,
	"OPENROUTER_API_KEY": true,
	"GEMINI_API_KEY":     true,
	"GOOGLE_API_KEY":     true,
	"GROQ_API_KEY":       true,
	"XAI_API_KEY":        true,
	"MISTRAL_API_KEY":    true,
	"COHERE_API_KEY":     true,
	"DEEPSEEK_API_KEY":   true,
	"TOGETHER_API_KEY":   true,
	"PERPLEXITY_API_KEY": true,
}

func isAllowlisted(key string) bool {
	if childEnvAllowlist[key] {
		return true
	}
	for _, prefix := range childEnvAllowlistPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func looksLikeSecret(key string) bool {
	for _, suffix := range childEnvSecretSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// SanitizeChildEnv builds the child environment from the parent's.
// Only allowlisted variables and named credential pass-throughs
// survive; anything ending in a secret suffix is dropped unless
// explicitly passed through. Overrides are applied last and bypass
// filtering, so callers can inject MERIDIAN_* variables freely.
func SanitizeChildEnv(baseEnv []string, overrides []string) []string {
	merged := map[string]string{}
	for _, entry := range baseEnv {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		normalized := strings.ToUpper(key)
		if looksLikeSecret(normalized) && !harnessEnvPassThrough[normalized] {
			continue
		}
		if harnessEnvPassThrough[normalized] || isAllowlisted(normalized) {
			merged[key] = value
		}
	}
	for _, entry := range overrides {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		merged[key] = value
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}
