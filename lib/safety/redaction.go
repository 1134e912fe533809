// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var secretKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Secret is one in-memory secret assignment for a run. The value is
// injected into the child environment as MERIDIAN_SECRET_<KEY> and
// scrubbed from every streamed or stored byte of output.
type Secret struct {
	Key   string
	Value string
}

// ParseSecrets parses repeated --secret KEY=VALUE assignments. Keys
// are normalized to upper case; a repeated key keeps the last value.
func ParseSecrets(assignments []string) ([]Secret, error) {
	byKey := make(map[string]Secret)
	for _, raw := range assignments {
		assignment := strings.TrimSpace(raw)
		if assignment == "" {
			continue
		}
		key, value, found := strings.Cut(assignment, "=")
		if !found {
			return nil, fmt.Errorf("invalid --secret value %q: expected KEY=VALUE", raw)
		}
		normalized := strings.ToUpper(strings.TrimSpace(key))
		if !secretKeyPattern.MatchString(normalized) {
			return nil, fmt.Errorf("invalid secret key %q: use letters, numbers, and underscores only", key)
		}
		byKey[normalized] = Secret{Key: normalized, Value: value}
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	secrets := make([]Secret, 0, len(keys))
	for _, key := range keys {
		secrets = append(secrets, byKey[key])
	}
	return secrets, nil
}

// SecretEnv converts secrets into child environment entries.
func SecretEnv(secrets []Secret) []string {
	env := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		env = append(env, "MERIDIAN_SECRET_"+secret.Key+"="+secret.Value)
	}
	return env
}

// Redact replaces secret values in text with key-specific
// placeholders. Longer values are replaced first so a secret that
// contains another secret as a substring redacts cleanly.
func Redact(text string, secrets []Secret) string {
	if len(secrets) == 0 {
		return text
	}
	ordered := make([]Secret, 0, len(secrets))
	for _, secret := range secrets {
		if secret.Value != "" {
			ordered = append(ordered, secret)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return len(ordered[i].Value) > len(ordered[j].Value)
	})
	for _, secret := range ordered {
		text = strings.ReplaceAll(text, secret.Value, "[REDACTED:"+secret.Key+"]")
	}
	return text
}

// RedactBytes is the byte wrapper used on streamed output lines.
func RedactBytes(data []byte, secrets []Secret) []byte {
	if len(secrets) == 0 {
		return data
	}
	return []byte(Redact(string(data), secrets))
}
