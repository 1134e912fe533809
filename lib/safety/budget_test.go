// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import "testing"

func TestBudgetValidate(t *testing.T) {
	if err := (Budget{PerRunUSD: 1, PerSpaceUSD: 5}).Validate(); err != nil {
		t.Errorf("Validate() error on valid budget: %v", err)
	}
	if err := (Budget{PerRunUSD: -1}).Validate(); err == nil {
		t.Error("negative per-run limit should be rejected")
	}
	if err := (Budget{PerSpaceUSD: -0.5}).Validate(); err == nil {
		t.Error("negative per-space limit should be rejected")
	}
	if (Budget{}).Enabled() {
		t.Error("zero budget should not report Enabled")
	}
	if !(Budget{PerSpaceUSD: 2}).Enabled() {
		t.Error("space-only budget should report Enabled")
	}
}

func TestBudgetTrackerRunLimit(t *testing.T) {
	tracker := NewBudgetTracker(Budget{PerRunUSD: 1.0}, 0)

	if breach := tracker.ObserveCost(0.5); breach != nil {
		t.Errorf("ObserveCost(0.5) = %v, want nil", breach)
	}
	breach := tracker.ObserveCost(1.5)
	if breach == nil {
		t.Fatal("ObserveCost(1.5) should breach the $1 run limit")
	}
	if breach.Scope != "run" || breach.LimitUSD != 1.0 {
		t.Errorf("breach = %+v, want run/$1.00", breach)
	}

	// Cost figures are cumulative; a lower later figure must not
	// lower the tracked value.
	tracker.ObserveCost(0.1)
	if tracker.RunCostUSD() != 1.5 {
		t.Errorf("RunCostUSD() = %v, want 1.5", tracker.RunCostUSD())
	}
}

func TestBudgetTrackerSpaceLimit(t *testing.T) {
	// Prior spend of $1.80 against a $2 space ceiling leaves $0.20
	// of headroom for this run.
	tracker := NewBudgetTracker(Budget{PerSpaceUSD: 2.0}, 1.8)

	if breach := tracker.ObserveCost(0.1); breach != nil {
		t.Errorf("ObserveCost(0.1) = %v, want nil", breach)
	}
	breach := tracker.ObserveCost(0.3)
	if breach == nil {
		t.Fatal("ObserveCost(0.3) should breach the space limit")
	}
	if breach.Scope != "space" || breach.ObservedUSD != 2.1 {
		t.Errorf("breach = %+v, want space/$2.10 observed", breach)
	}
}

func TestBudgetTrackerUnlimited(t *testing.T) {
	tracker := NewBudgetTracker(Budget{}, 100)
	if breach := tracker.ObserveCost(9999); breach != nil {
		t.Errorf("ObserveCost with no limits = %v, want nil", breach)
	}
	if breach := tracker.Check(); breach != nil {
		t.Errorf("Check() with no limits = %v, want nil", breach)
	}
	// Negative figures are harness noise and must be ignored.
	tracker.ObserveCost(-3)
	if tracker.RunCostUSD() != 9999 {
		t.Errorf("RunCostUSD() = %v, want 9999", tracker.RunCostUSD())
	}
}
