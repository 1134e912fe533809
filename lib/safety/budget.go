// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"fmt"
	"sync"
)

// Budget holds USD spending limits for one run. A zero limit means
// unlimited for that scope.
type Budget struct {
	PerRunUSD   float64
	PerSpaceUSD float64
}

// Enabled reports whether any limit is configured.
func (b Budget) Enabled() bool {
	return b.PerRunUSD > 0 || b.PerSpaceUSD > 0
}

// Validate rejects negative limits.
func (b Budget) Validate() error {
	if b.PerRunUSD < 0 {
		return fmt.Errorf("per-run budget must be >= 0, got %v", b.PerRunUSD)
	}
	if b.PerSpaceUSD < 0 {
		return fmt.Errorf("per-space budget must be >= 0, got %v", b.PerSpaceUSD)
	}
	return nil
}

// BudgetBreach describes an observed budget violation.
type BudgetBreach struct {
	// Scope is "run" or "space".
	Scope       string
	ObservedUSD float64
	LimitUSD    float64
}

func (b BudgetBreach) Error() string {
	return fmt.Sprintf("%s budget exceeded: $%.4f observed, $%.4f limit", b.Scope, b.ObservedUSD, b.LimitUSD)
}

// BudgetTracker accumulates streamed cost observations for one run and
// evaluates them against the configured limits. Harness cost figures
// are cumulative, so observations only ever raise the tracked value.
// Safe for concurrent use: stdout reading and post-exit extraction may
// race.
type BudgetTracker struct {
	mutex         sync.Mutex
	budget        Budget
	spaceSpentUSD float64
	runCostUSD    float64
}

// NewBudgetTracker creates a tracker seeded with the space's prior
// spend, so a per-space limit accounts for completed runs.
func NewBudgetTracker(budget Budget, spaceSpentUSD float64) *BudgetTracker {
	return &BudgetTracker{budget: budget, spaceSpentUSD: spaceSpentUSD}
}

// ObserveCost records a cumulative cost figure and returns breach
// details when a limit is now exceeded, nil otherwise.
func (t *BudgetTracker) ObserveCost(costUSD float64) *BudgetBreach {
	if costUSD < 0 {
		return nil
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if costUSD > t.runCostUSD {
		t.runCostUSD = costUSD
	}
	return t.checkLocked()
}

// Check evaluates the current totals without recording anything.
func (t *BudgetTracker) Check() *BudgetBreach {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.checkLocked()
}

// RunCostUSD returns the highest cost observed so far.
func (t *BudgetTracker) RunCostUSD() float64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.runCostUSD
}

func (t *BudgetTracker) checkLocked() *BudgetBreach {
	if t.budget.PerRunUSD > 0 && t.runCostUSD > t.budget.PerRunUSD {
		return &BudgetBreach{Scope: "run", ObservedUSD: t.runCostUSD, LimitUSD: t.budget.PerRunUSD}
	}
	if t.budget.PerSpaceUSD > 0 {
		observed := t.spaceSpentUSD + t.runCostUSD
		if observed > t.budget.PerSpaceUSD {
			return &BudgetBreach{Scope: "space", ObservedUSD: observed, LimitUSD: t.budget.PerSpaceUSD}
		}
	}
	return nil
}
