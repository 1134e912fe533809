// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Usage is the token and cost accounting recovered from a run's
// output files.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// extractOutcome builds the shared Outcome all adapters use: usage and
// session ID scraped from the run directory, report text with
// report.md preferred over the stream.
func extractOutcome(output []byte, runDir string) Outcome {
	lines := decodeJSONLines(output)
	usage := extractUsage(runDir, lines)

	report, fromFile := extractReport(runDir, output)

	return Outcome{
		CostUSD:          usage.CostUSD,
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
		HarnessSessionID: extractSessionID(runDir, lines),
		Report:           report,
		ReportFromFile:   fromFile,
		OutputEmpty:      len(strings.TrimSpace(string(output))) == 0,
	}
}

func decodeJSONLines(output []byte) []map[string]any {
	var payloads []map[string]any
	for _, line := range strings.Split(string(output), "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(stripped), &payload); err != nil {
			continue
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

type usageCandidate struct {
	inputTokens  *int64
	outputTokens *int64
	costUSD      *float64
}

func (c usageCandidate) tokenScore() int {
	score := 0
	if c.inputTokens != nil {
		score++
	}
	if c.outputTokens != nil {
		score++
	}
	return score
}

// extractUsage searches tokens.json, usage.json, and the output stream
// for token counts and cost. The candidate with the most token fields
// wins; cost comes from the first candidate that carries one.
func extractUsage(runDir string, lines []map[string]any) Usage {
	var candidates []usageCandidate

	for _, name := range []string{"tokens.json", "usage.json"} {
		data, err := os.ReadFile(filepath.Join(runDir, name))
		if err != nil {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			continue
		}
		for _, nested := range iterObjects(payload) {
			candidates = append(candidates, candidateFromObject(nested))
		}
	}

	for _, payload := range lines {
		for _, nested := range iterObjects(payload) {
			candidates = append(candidates, candidateFromObject(nested))
		}
	}

	if len(candidates) == 0 {
		return Usage{}
	}

	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.tokenScore() > best.tokenScore() {
			best = candidate
		}
	}

	usage := Usage{}
	if best.inputTokens != nil {
		usage.InputTokens = *best.inputTokens
	}
	if best.outputTokens != nil {
		usage.OutputTokens = *best.outputTokens
	}
	for _, candidate := range candidates {
		if candidate.costUSD != nil {
			usage.CostUSD = *candidate.costUSD
			break
		}
	}
	return usage
}

func candidateFromObject(payload map[string]any) usageCandidate {
	candidate := usageCandidate{}
	if cost, ok := costFromObject(payload); ok {
		candidate.costUSD = &cost
	}
	for _, pair := range tokenKeyPairs {
		_, hasInput := payload[pair[0]]
		_, hasOutput := payload[pair[1]]
		if !hasInput && !hasOutput {
			continue
		}
		if value, ok := coerceInt(payload[pair[0]]); ok {
			candidate.inputTokens = &value
		}
		if value, ok := coerceInt(payload[pair[1]]); ok {
			candidate.outputTokens = &value
		}
		break
	}
	return candidate
}

// extractSessionID prefers an explicit session_id.txt dropped by the
// harness, then falls back to scanning the stream for a session ID
// field.
func extractSessionID(runDir string, lines []map[string]any) string {
	data, err := os.ReadFile(filepath.Join(runDir, "session_id.txt"))
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	for _, payload := range lines {
		for _, nested := range iterObjects(payload) {
			for _, key := range []string{"session_id", "sessionId"} {
				if value, ok := nested[key].(string); ok {
					if id := strings.TrimSpace(value); id != "" {
						return id
					}
				}
			}
		}
	}
	return ""
}

// extractReport returns the run's report text, preferring a report.md
// the agent wrote explicitly over the last assistant message in the
// stream. The second return reports which source was used.
func extractReport(runDir string, output []byte) (string, bool) {
	data, err := os.ReadFile(filepath.Join(runDir, "report.md"))
	if err == nil {
		if report := strings.TrimSpace(string(data)); report != "" {
			return report, true
		}
	}
	if message := lastAssistantMessage(string(output)); message != "" {
		return message, false
	}
	return "", false
}

// lastAssistantMessage scans the output stream for the final
// assistant-authored text. When no assistant text is found at all, the
// final non-empty line stands in so a run that only printed plain text
// still yields a report.
func lastAssistantMessage(output string) string {
	var lastAssistant, lastLine string
	for _, line := range strings.Split(output, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		lastLine = stripped
		var payload any
		if err := json.Unmarshal([]byte(stripped), &payload); err != nil {
			continue
		}
		texts := assistantTexts(payload)
		if len(texts) > 0 {
			lastAssistant = strings.TrimSpace(texts[len(texts)-1])
		}
	}
	if lastAssistant != "" {
		return lastAssistant
	}
	return lastLine
}

// assistantTexts collects assistant-authored text from a decoded JSON
// payload, including chat-completions style choices[].message shapes.
func assistantTexts(payload any) []string {
	var found []string
	switch obj := payload.(type) {
	case map[string]any:
		role := strings.ToLower(stringOr(obj, "role"))
		eventType := strings.ToLower(firstString(obj, "type", "event"))

		if role == "assistant" || strings.Contains(eventType, "assistant") {
			if text := textFromValue(obj["content"]); text != "" {
				found = append(found, text)
			}
			for _, key := range []string{"text", "message", "output"} {
				if text := textFromValue(obj[key]); text != "" {
					found = append(found, text)
				}
			}
		}

		if choices, ok := obj["choices"].([]any); ok {
			for _, choice := range choices {
				choiceObj, ok := choice.(map[string]any)
				if !ok {
					continue
				}
				message, ok := choiceObj["message"].(map[string]any)
				if !ok {
					continue
				}
				if strings.ToLower(stringOr(message, "role")) != "assistant" {
					continue
				}
				if text := textFromValue(message["content"]); text != "" {
					found = append(found, text)
				}
			}
		}

		for _, nested := range obj {
			found = append(found, assistantTexts(nested)...)
		}
	case []any:
		for _, item := range obj {
			found = append(found, assistantTexts(item)...)
		}
	}
	return found
}

// textFromValue flattens a message content value into text. Content
// arrives as a plain string, a block list, or a nested object
// depending on the harness.
func textFromValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		var parts []string
		for _, item := range v {
			if part := textFromValue(item); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case map[string]any:
		var parts []string
		for _, key := range []string{"text", "message", "output", "content"} {
			if _, ok := v[key]; !ok {
				continue
			}
			if part := textFromValue(v[key]); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return ""
}

func stringOr(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}
