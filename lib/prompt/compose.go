// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt composes run prompts from skills, agent profiles,
// model guidance, reference files, and the operator's prompt text.
// Composition is deterministic: the same inputs always produce the
// same prompt, which is what makes prompt hashes meaningful.
package prompt

import (
	"strings"
)

// Skill is one named block of reusable prompt content.
type Skill struct {
	Name    string
	Content string
}

// Inputs are the resolved pieces of one run prompt.
type Inputs struct {
	Skills        []Skill
	AgentBody     string
	ModelGuidance string
	References    []ReferenceFile
	Variables     map[string]string
	PriorOutput   string
	UserPrompt    string
}

// reportInstruction is appended to every composed prompt so the final
// assistant message is always usable as the run report.
const reportInstruction = "# Report\n\n" +
	"**IMPORTANT - Your final message should be a report of your work.**\n\n" +
	"Include: what was done, key decisions made, files created/modified, " +
	"verification results, and any issues or blockers.\n\n" +
	"Use plain markdown. Meridian captures your final message as the run report."

// Compose assembles the final prompt text. Section order is fixed:
// skills, agent body, model guidance, references, sanitized prior
// output, the report instruction, and the user prompt last. Template
// variables substitute into everything except skill content.
func Compose(inputs Inputs) (string, error) {
	var skillSections []string
	for _, skill := range DedupeSkills(inputs.Skills) {
		content := strings.TrimSpace(skill.Content)
		if content == "" {
			continue
		}
		skillSections = append(skillSections, "# Skill: "+skill.Name+"\n\n"+content)
	}

	var sections []string
	if body := strings.TrimSpace(inputs.AgentBody); body != "" {
		sections = append(sections, "# Agent Profile\n\n"+body)
	}
	if guidance := strings.TrimSpace(inputs.ModelGuidance); guidance != "" {
		sections = append(sections, "# Model Guidance\n\n"+guidance)
	}
	sections = append(sections, renderReferenceBlocks(inputs.References)...)
	if prior := strings.TrimSpace(inputs.PriorOutput); prior != "" {
		sections = append(sections, SanitizePriorOutput(prior))
	}

	rendered, err := SubstituteVariables(joinSections(sections), inputs.Variables)
	if err != nil {
		return "", err
	}

	userPrompt, err := SubstituteVariables(
		StripStaleReportInstructions(inputs.UserPrompt), inputs.Variables)
	if err != nil {
		return "", err
	}

	all := append(skillSections, rendered, reportInstruction, userPrompt)
	return joinSections(all), nil
}

// DedupeSkills drops repeated skill names, keeping the first
// occurrence so explicit request order wins over profile defaults.
func DedupeSkills(skills []Skill) []Skill {
	seen := make(map[string]bool, len(skills))
	var ordered []Skill
	for _, skill := range skills {
		name := strings.TrimSpace(skill.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		ordered = append(ordered, Skill{Name: name, Content: skill.Content})
	}
	return ordered
}

// DedupeSkillNames normalizes and de-duplicates skill names while
// preserving first-seen order.
func DedupeSkillNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	var ordered []string
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		ordered = append(ordered, name)
	}
	return ordered
}

func joinSections(sections []string) string {
	var nonEmpty []string
	for _, section := range sections {
		if trimmed := strings.TrimSpace(section); trimmed != "" {
			nonEmpty = append(nonEmpty, trimmed)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
