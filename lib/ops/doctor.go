// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"fmt"

	"github.com/haowjy/meridian-channel/lib/space"
	"github.com/haowjy/meridian-channel/lib/state"
)

// DoctorReport is what a health pass over the state directory found
// and fixed.
type DoctorReport struct {
	Fixed    []string
	Warnings []string
	Problems []string
}

// Doctor reconciles every space's session log against lock liveness,
// replays the run logs to surface repair warnings, and makes sure the
// state directory is ignored by git.
func (r *Runtime) Doctor() (DoctorReport, error) {
	var report DoctorReport

	fixed, err := space.ReconcileAll(r.Root, r.Spaces)
	if err != nil {
		return report, err
	}
	report.Fixed = fixed

	records, problems := r.Spaces.List()
	for _, problem := range problems {
		report.Problems = append(report.Problems, problem.Error())
	}
	for _, record := range records {
		paths := r.Root.Space(record.ID)
		_, runWarnings, err := state.NewRunLog(paths).ReadAll()
		if err != nil {
			report.Problems = append(report.Problems,
				fmt.Sprintf("space %s: %v", record.ID, err))
			continue
		}
		for _, warning := range runWarnings {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("space %s: %s", record.ID, warning))
		}
		_, sessionWarnings, err := state.NewSessionLog(paths).ReadAll()
		if err != nil {
			report.Problems = append(report.Problems,
				fmt.Sprintf("space %s: %v", record.ID, err))
			continue
		}
		for _, warning := range sessionWarnings {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("space %s: %s", record.ID, warning))
		}
	}

	if err := r.Root.EnsureGitignore(); err != nil {
		report.Problems = append(report.Problems, err.Error())
	}
	return report, nil
}
