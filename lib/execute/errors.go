// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package execute

import "strings"

// ErrorCategory drives the retry decision after a failed attempt.
type ErrorCategory string

const (
	// Retryable failures are transient infrastructure issues; a
	// blind retry with backoff has a real chance of succeeding.
	Retryable ErrorCategory = "retryable"

	// Unrecoverable failures will not change on retry: bad model
	// names, auth problems, or an operator interrupt.
	Unrecoverable ErrorCategory = "unrecoverable"

	// StrategyChange failures need a different prompt (usually a
	// shorter one), not repetition.
	StrategyChange ErrorCategory = "strategy_change"
)

var retryableMarkers = []string{
	"rate limit",
	"429",
	"timed out",
	"timeout",
	"temporarily unavailable",
	"temporary failure",
	"connection reset",
	"connection refused",
	"network error",
	"econnreset",
	"econnrefused",
	"etimedout",
	"resource busy",
}

var unrecoverableMarkers = []string{
	"model not found",
	"unknown model",
	"unsupported model",
	"permission denied",
	"access denied",
	"forbidden",
	"unauthorized",
	"invalid api key",
	"authentication failed",
	"token limit",
	"maximum tokens",
	"max tokens exceeded",
}

var strategyChangeMarkers = []string{
	"context length",
	"context too long",
	"maximum context length",
	"prompt too long",
	"output too large",
	"response too large",
	"please reduce",
}

func containsMarker(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// ClassifyError categorizes one failed attempt from its mapped exit
// code and stderr text. Marker matches outrank exit-code heuristics;
// strategy-change markers are checked first because a context-length
// error often also mentions tokens.
func ClassifyError(exitCode int, stderr string) ErrorCategory {
	normalized := strings.ToLower(stderr)

	if containsMarker(normalized, strategyChangeMarkers) {
		return StrategyChange
	}
	if containsMarker(normalized, unrecoverableMarkers) {
		return Unrecoverable
	}
	if containsMarker(normalized, retryableMarkers) {
		return Retryable
	}

	switch exitCode {
	case ExitTimeout:
		return Retryable
	case ExitInterrupted, ExitTerminated:
		return Unrecoverable
	case 1, ExitInfra:
		return Retryable
	}
	return Unrecoverable
}

// ShouldRetry reports whether another attempt is worthwhile.
func ShouldRetry(exitCode int, stderr string, retriesAttempted, maxRetries int) bool {
	if retriesAttempted >= maxRetries {
		return false
	}
	return ClassifyError(exitCode, stderr) == Retryable
}
