// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ParseJSONStreamEvent parses one line of harness stdout. Non-JSON
// lines and JSON scalars become progress events carrying the raw text;
// parsing never fails. Empty lines return nil.
func ParseJSONStreamEvent(line string) *StreamEvent {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(stripped), &payload); err != nil {
		return &StreamEvent{
			Type:     "line",
			Category: CategoryProgress,
			Text:     stripped,
			Raw:      line,
		}
	}

	eventType := firstString(payload, "type", "t", "event")
	if eventType == "" {
		eventType = "line"
	}

	category := CategoryProgress
	if isSubRunType(eventType) {
		category = CategorySubRun
	}

	text := firstString(payload, "text", "message")
	if text == "" && category == CategorySubRun {
		text = synthesizeSubRunText(eventType, payload)
	}

	return &StreamEvent{
		Type:     eventType,
		Category: category,
		Text:     text,
		CostUSD:  extractCost(payload),
		Raw:      line,
	}
}

// Categorize reassigns an event's category from its type. Exact
// matches from the harness-specific map win; otherwise substring
// heuristics apply, checked from most to least specific.
func Categorize(event *StreamEvent, exactMap map[string]string) *StreamEvent {
	if event == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(event.Type))
	event.Category = categoryForType(normalized, exactMap)
	return event
}

func categoryForType(normalized string, exactMap map[string]string) string {
	if category, ok := exactMap[normalized]; ok {
		return category
	}
	if isSubRunType(normalized) {
		return CategorySubRun
	}
	if containsAny(normalized, "error", "fail", "warning", "warn") {
		return CategoryError
	}
	if containsAny(normalized, "tool", "function_call", "call_tool") {
		return CategoryToolUse
	}
	if containsAny(normalized, "think", "reasoning", "reason") {
		return CategoryThinking
	}
	if containsAny(normalized, "assistant", "message", "response") {
		return CategoryAssistant
	}
	if containsAny(normalized, "start", "started", "finish", "finished",
		"complete", "completed", "done", "result") {
		return CategoryLifecycle
	}
	return CategoryProgress
}

func isSubRunType(eventType string) bool {
	return strings.HasPrefix(eventType, "run.") ||
		strings.HasPrefix(eventType, "meridian.run.")
}

func containsAny(value string, tokens ...string) bool {
	for _, token := range tokens {
		if strings.Contains(value, token) {
			return true
		}
	}
	return false
}

// synthesizeSubRunText renders a readable line for nested run protocol
// events that carry structured fields instead of text.
func synthesizeSubRunText(eventType string, payload map[string]any) string {
	trimmed := strings.TrimPrefix(eventType, "meridian.")
	switch trimmed {
	case "run.start":
		runID := payloadText(payload, "id")
		model := payloadText(payload, "model")
		agent := strings.TrimSpace(payloadText(payload, "agent"))
		if agent == "" || agent == "?" {
			return runID + " " + model + " started"
		}
		return runID + " " + model + " (" + agent + ") started"
	case "run.done":
		rendered := payloadText(payload, "id") + " completed " +
			payloadText(payload, "secs") + "s exit=" + payloadText(payload, "exit")
		if tokens, ok := payload["tok"]; ok && tokens != nil {
			rendered += " tok=" + payloadText(payload, "tok")
		}
		return rendered
	}
	return ""
}

func payloadText(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return "?"
	}
	rendered := strings.TrimSpace(anyToString(value))
	if rendered == "" {
		return "?"
	}
	return rendered
}

func anyToString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// costKeys and tokenKeyPairs cover the field spellings observed across
// harness vendors. Cost values may arrive as numbers or "$1.23"
// strings.
var costKeys = []string{
	"total_cost_usd",
	"cost_usd",
	"cost",
	"total_cost",
	"totalCostUsd",
}

var tokenKeyPairs = [][2]string{
	{"input_tokens", "output_tokens"},
	{"input", "output"},
	{"prompt_tokens", "completion_tokens"},
	{"prompt_token_count", "completion_token_count"},
	{"inputTokenCount", "outputTokenCount"},
}

// extractCost finds a cost figure anywhere in a decoded JSON payload.
func extractCost(payload map[string]any) float64 {
	for _, nested := range iterObjects(payload) {
		if cost, ok := costFromObject(nested); ok {
			return cost
		}
	}
	return 0
}

func costFromObject(payload map[string]any) (float64, bool) {
	for _, key := range costKeys {
		if value, ok := coerceFloat(payload[key]); ok {
			return value, true
		}
	}
	return 0, false
}

// iterObjects walks a decoded JSON value depth-first, collecting every
// object encountered.
func iterObjects(value any) []map[string]any {
	var found []map[string]any
	switch v := value.(type) {
	case map[string]any:
		found = append(found, v)
		for _, nested := range v {
			found = append(found, iterObjects(nested)...)
		}
	case []any:
		for _, item := range v {
			found = append(found, iterObjects(item)...)
		}
	}
	return found
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		stripped := strings.TrimSpace(v)
		if stripped == "" {
			return 0, false
		}
		stripped = strings.TrimPrefix(stripped, "$")
		parsed, err := strconv.ParseFloat(stripped, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func coerceInt(value any) (int64, bool) {
	parsed, ok := coerceFloat(value)
	if !ok {
		return 0, false
	}
	return int64(parsed), true
}
