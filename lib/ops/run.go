// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/haowjy/meridian-channel/lib/catalog"
	"github.com/haowjy/meridian-channel/lib/execute"
	"github.com/haowjy/meridian-channel/lib/harness"
	"github.com/haowjy/meridian-channel/lib/profile"
	"github.com/haowjy/meridian-channel/lib/prompt"
	"github.com/haowjy/meridian-channel/lib/safety"
	"github.com/haowjy/meridian-channel/lib/state"
)

// SpawnRunInput is one run request as it arrives from the CLI.
type SpawnRunInput struct {
	Space  SpaceContext
	Prompt string
	Model  string
	Agent  string
	Skills []string
	Files  []string
	Vars   []string

	Tier              string
	Unsafe            bool
	SecretAssignments []string
	Guardrails        []string
	TimeoutSecs       float64
	BudgetPerRunUSD   float64
	BudgetPerSpaceUSD float64
	HarnessID         string
	ExtraArgs         []string

	EventObserver func(event *harness.StreamEvent)
	MirrorStdout  io.Writer
	MirrorStderr  io.Writer
}

// RunView is the operation-level result of one run.
type RunView struct {
	RunID    string
	ChatID   string
	SpaceID  string
	Status   string
	ExitCode int
	Report   string
	CostUSD  float64
	Warnings []string
}

// SpawnRun validates, composes, and executes one new run. All
// validation happens before the start event: a rejected request
// leaves no trace in any log.
func (r *Runtime) SpawnRun(ctx context.Context, input SpawnRunInput) (RunView, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return RunView{}, validationErrorf("prompt required: use --prompt/-p with non-empty text")
	}

	var warnings []string

	var agentProfile *profile.AgentProfile
	if input.Agent != "" {
		loaded, err := profile.LoadAgentProfile(r.RepoRoot, input.Agent)
		if err != nil {
			return RunView{}, err
		}
		agentProfile = &loaded
	}

	model, modelWarning, err := r.resolveModel(input.Model, agentProfile)
	if err != nil {
		return RunView{}, err
	}
	if modelWarning != "" {
		warnings = append(warnings, modelWarning)
	}

	permissions, tierWarning, err := r.resolvePermissions(input.Tier, input.Unsafe, agentProfile)
	if err != nil {
		return RunView{}, err
	}
	if tierWarning != "" {
		warnings = append(warnings, tierWarning)
	}

	secrets, err := r.mergedSecrets(input.SecretAssignments)
	if err != nil {
		return RunView{}, err
	}

	composed, skillNames, err := r.composePrompt(input, agentProfile, model)
	if err != nil {
		return RunView{}, err
	}

	paths, spaceWarning, err := r.resolveSpace(input.Space)
	if err != nil {
		return RunView{}, err
	}
	if spaceWarning != "" {
		warnings = append(warnings, spaceWarning)
	}

	harnessID := input.HarnessID
	if harnessID == "" {
		harnessID = model.Harness
	}
	sessions := state.NewSessionLog(paths)
	chatID, err := sessions.AppendStart(state.SessionRecord{
		Harness: harnessID,
		Model:   model.ModelID,
		Params:  input.ExtraArgs,
	})
	if err != nil {
		return RunView{}, err
	}

	// Holding the chat's advisory lock for the run's duration is what
	// makes lock-probe liveness work: doctor and space close must see
	// an executing session as alive.
	sessionLock, err := state.TryLock(paths.SessionLockPath(chatID))
	if err != nil {
		return RunView{}, err
	}
	if sessionLock != nil {
		lockPath := paths.SessionLockPath(chatID)
		defer func() {
			sessionLock.Release()
			os.Remove(lockPath)
		}()
	}

	view, err := r.executeRun(ctx, paths, executeInput{
		chatID:      chatID,
		model:       model.ModelID,
		agent:       agentName(agentProfile),
		skills:      skillNames,
		harnessID:   harnessID,
		prompt:      composed,
		permissions: permissions,
		secrets:     secrets,
		guardrails:  input.Guardrails,
		timeoutSecs: input.TimeoutSecs,
		perRunUSD:   input.BudgetPerRunUSD,
		perSpaceUSD: input.BudgetPerSpaceUSD,
		extraArgs:   input.ExtraArgs,
		observer:    input.EventObserver,
		stdout:      input.MirrorStdout,
		stderr:      input.MirrorStderr,
	})
	if err != nil {
		return view, err
	}

	if stopErr := sessions.AppendStop(chatID); stopErr != nil && r.Logger != nil {
		r.Logger.Warn("recording session stop failed", "chat", chatID, "error", stopErr)
	}
	view.Warnings = append(warnings, view.Warnings...)
	return view, nil
}

// ContinueRunInput continues an existing chat with a new prompt.
type ContinueRunInput struct {
	Space      SpaceContext
	SessionRef string
	Prompt     string
	Model      string

	Tier              string
	Unsafe            bool
	SecretAssignments []string
	Guardrails        []string
	TimeoutSecs       float64
	BudgetPerRunUSD   float64
	BudgetPerSpaceUSD float64
	ExtraArgs         []string

	EventObserver func(event *harness.StreamEvent)
	MirrorStdout  io.Writer
	MirrorStderr  io.Writer
}

// ContinueRun resumes a chat against its original harness. A model
// that routes to a different harness is rejected before any process
// is spawned.
func (r *Runtime) ContinueRun(ctx context.Context, input ContinueRunInput) (RunView, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return RunView{}, validationErrorf("prompt required: use --prompt/-p with non-empty text")
	}

	paths, session, err := r.ResolveSession(input.Space, input.SessionRef)
	if err != nil {
		return RunView{}, err
	}
	if session.StoppedAt != "" && !sessionResumable(session) {
		return RunView{}, validationErrorf(
			"session %s has no harness-native session id to resume", session.ChatID)
	}

	sessionLock, err := state.TryLock(paths.SessionLockPath(session.ChatID))
	if err != nil {
		return RunView{}, err
	}
	if sessionLock == nil {
		return RunView{}, validationErrorf(
			"session %s has a run in flight: wait for it to finish", session.ChatID)
	}
	defer sessionLock.Release()

	modelID := session.Model
	var warnings []string
	if strings.TrimSpace(input.Model) != "" {
		resolved, warning, err := r.resolveModel(input.Model, nil)
		if err != nil {
			return RunView{}, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if resolved.Harness != session.Harness {
			return RunView{}, validationErrorf(
				"harness mismatch: session %s was started on %s but model %s routes to %s",
				session.ChatID, session.Harness, resolved.ModelID, resolved.Harness)
		}
		modelID = resolved.ModelID
	}

	permissions, _, err := r.resolvePermissions(input.Tier, input.Unsafe, nil)
	if err != nil {
		return RunView{}, err
	}
	secrets, err := r.mergedSecrets(input.SecretAssignments)
	if err != nil {
		return RunView{}, err
	}

	composed, err := prompt.Compose(prompt.Inputs{UserPrompt: input.Prompt})
	if err != nil {
		return RunView{}, err
	}

	// Original passthrough flags serve as defaults on continuation.
	extraArgs := append(append([]string{}, session.Params...), input.ExtraArgs...)

	view, err := r.executeRun(ctx, paths, executeInput{
		chatID:          session.ChatID,
		model:           modelID,
		harnessID:       session.Harness,
		prompt:          composed,
		resumeSessionID: session.HarnessSessionID,
		permissions:     permissions,
		secrets:         secrets,
		guardrails:      input.Guardrails,
		timeoutSecs:     input.TimeoutSecs,
		perRunUSD:       input.BudgetPerRunUSD,
		perSpaceUSD:     input.BudgetPerSpaceUSD,
		extraArgs:       extraArgs,
		observer:        input.EventObserver,
		stdout:          input.MirrorStdout,
		stderr:          input.MirrorStderr,
	})
	if err != nil {
		return view, err
	}
	view.Warnings = append(warnings, view.Warnings...)
	return view, nil
}

type executeInput struct {
	chatID          string
	model           string
	agent           string
	skills          []string
	harnessID       string
	prompt          string
	resumeSessionID string
	permissions     safety.PermissionConfig
	secrets         []safety.Secret
	guardrails      []string
	timeoutSecs     float64
	perRunUSD       float64
	perSpaceUSD     float64
	extraArgs       []string
	observer        func(event *harness.StreamEvent)
	stdout          io.Writer
	stderr          io.Writer
}

func (r *Runtime) executeRun(ctx context.Context, paths state.SpacePaths, input executeInput) (RunView, error) {
	runs := state.NewRunLog(paths)
	sessions := state.NewSessionLog(paths)

	budget := safety.Budget{PerRunUSD: input.perRunUSD, PerSpaceUSD: input.perSpaceUSD}
	if !budget.Enabled() {
		budget = safety.Budget{
			PerRunUSD:   r.Config.BudgetPerRunUSD,
			PerSpaceUSD: r.Config.BudgetPerSpaceUSD,
		}
	}
	if err := budget.Validate(); err != nil {
		return RunView{}, &ValidationError{Message: err.Error()}
	}

	spaceSpent := 0.0
	if budget.PerSpaceUSD > 0 {
		stats, err := runs.Aggregate(nil)
		if err != nil {
			return RunView{}, err
		}
		spaceSpent = stats.TotalCostUSD
	}

	guardrails := input.guardrails
	if len(guardrails) == 0 {
		guardrails = r.Config.Guardrails
	}

	executor := &execute.Executor{
		Paths:    paths,
		Runs:     runs,
		Registry: r.Registry,
		Logger:   r.Logger,
	}
	result, err := executor.Execute(ctx, execute.RunSpec{
		ChatID:           input.chatID,
		SpaceID:          paths.SpaceID,
		Prompt:           input.prompt,
		Model:            input.model,
		Agent:            input.agent,
		Skills:           input.skills,
		HarnessID:        input.harnessID,
		ResumeSessionID:  input.resumeSessionID,
		Permissions:      input.permissions,
		ExtraArgs:        input.extraArgs,
		Secrets:          input.secrets,
		Budget:           budget,
		SpaceSpentUSD:    spaceSpent,
		Guardrails:       guardrails,
		Dir:              r.RepoRoot,
		Timeout:          secondsToDuration(input.timeoutSecs),
		KillGrace:        secondsToDuration(r.Config.KillGraceSeconds),
		GuardrailTimeout: secondsToDuration(r.Config.GuardrailTimeoutSeconds),
		MaxRetries:       r.Config.MaxRetries,
		RetryBackoff:     secondsToDuration(r.Config.RetryBackoffSeconds),
		EventObserver:    input.observer,
		MirrorStdout:     input.stdout,
		MirrorStderr:     input.stderr,
	})
	if err != nil {
		return RunView{}, err
	}

	if result.Outcome.HarnessSessionID != "" {
		if updateErr := sessions.AppendUpdate(input.chatID, result.Outcome.HarnessSessionID); updateErr != nil && r.Logger != nil {
			r.Logger.Warn("recording harness session id failed", "chat", input.chatID, "error", updateErr)
		}
	}

	view := RunView{
		RunID:    result.RunID,
		ChatID:   input.chatID,
		SpaceID:  paths.SpaceID,
		Status:   result.Status,
		ExitCode: result.ExitCode,
		Report:   result.Report,
		CostUSD:  result.Outcome.CostUSD,
	}
	if result.Warning != "" {
		view.Warnings = append(view.Warnings, result.Warning)
	}
	return view, nil
}

// resolveModel maps the requested name (or the profile's, or the
// configured default) through the catalog. A name that looks like a
// bare alias must resolve; a full model ID outside the catalog passes
// through to routing with a warning.
func (r *Runtime) resolveModel(requested string, agentProfile *profile.AgentProfile) (catalog.Model, string, error) {
	name := strings.TrimSpace(requested)
	if name == "" && agentProfile != nil {
		name = strings.TrimSpace(agentProfile.Model)
	}
	if name == "" {
		name = r.Config.DefaultModel
	}

	model, err := r.Catalog.Resolve(name)
	if err == nil {
		return model, "", nil
	}
	var unknown *catalog.UnknownModelError
	if !errors.As(err, &unknown) {
		return catalog.Model{}, "", err
	}

	if looksLikeAlias(name) {
		return catalog.Model{}, "", validationErrorf(
			"unknown model alias %q: run `meridian models` to inspect aliases", name)
	}

	decision := harness.RouteModel(name)
	if decision.Warning != "" {
		return catalog.Model{}, "", validationErrorf(
			"unknown model %q: run `meridian models` to inspect supported models", name)
	}
	warning := fmt.Sprintf("model %q is not in catalog: routing to %s", name, decision.HarnessID)
	return catalog.Model{ModelID: name, Harness: decision.HarnessID}, warning, nil
}

// looksLikeAlias reports whether a model name is a bare alias rather
// than a full model identifier.
func looksLikeAlias(name string) bool {
	return !strings.ContainsAny(name, "/-.")
}

// resolvePermissions merges the explicit tier, the profile's sandbox
// tier, and the configured default. A profile that escalates past the
// default without an explicit tier produces a warning.
func (r *Runtime) resolvePermissions(explicit string, unsafe bool, agentProfile *profile.AgentProfile) (safety.PermissionConfig, string, error) {
	tier := strings.TrimSpace(explicit)
	warning := ""
	if tier == "" && agentProfile != nil && agentProfile.Sandbox != "" {
		tier = agentProfile.Sandbox
		profileTier, err := safety.ParseTier(tier)
		if err == nil {
			defaultTier, defaultErr := safety.ParseTier(r.Config.DefaultPermissionTier)
			if defaultErr == nil && profileTier.Escalates(defaultTier) {
				warning = fmt.Sprintf(
					"agent profile %s escalates permission tier to %s (default %s)",
					agentProfile.Name, profileTier, defaultTier)
			}
		}
	}
	if tier == "" {
		tier = r.Config.DefaultPermissionTier
	}

	permissions, err := safety.NewPermissionConfig(tier, unsafe)
	if err != nil {
		return safety.PermissionConfig{}, "", &ValidationError{Message: err.Error()}
	}
	return permissions, warning, nil
}

func (r *Runtime) composePrompt(input SpawnRunInput, agentProfile *profile.AgentProfile, model catalog.Model) (string, []string, error) {
	skillNames := prompt.DedupeSkillNames(input.Skills)
	if agentProfile != nil {
		skillNames = prompt.DedupeSkillNames(append(skillNames, agentProfile.Skills...))
	}

	registry := profile.NewSkillRegistry(r.RepoRoot, r.Config.SkillDirs)
	documents, err := registry.Load(skillNames)
	if err != nil {
		return "", nil, err
	}
	skills := make([]prompt.Skill, 0, len(documents))
	for _, document := range documents {
		skills = append(skills, prompt.Skill{Name: document.Name, Content: document.Body})
	}

	references, err := prompt.LoadReferenceFiles(input.Files, r.RepoRoot, "")
	if err != nil {
		return "", nil, err
	}
	parsedVars, err := prompt.ParseVariableAssignments(input.Vars)
	if err != nil {
		return "", nil, &ValidationError{Message: err.Error()}
	}
	variables, err := prompt.ResolveVariables(parsedVars, r.RepoRoot)
	if err != nil {
		return "", nil, err
	}

	composed, err := prompt.Compose(prompt.Inputs{
		Skills:        skills,
		AgentBody:     agentBody(agentProfile),
		ModelGuidance: modelGuidance(model),
		References:    references,
		Variables:     variables,
		UserPrompt:    input.Prompt,
	})
	if err != nil {
		return "", nil, err
	}
	return composed, skillNames, nil
}

func agentName(agentProfile *profile.AgentProfile) string {
	if agentProfile == nil {
		return ""
	}
	return agentProfile.Name
}

func agentBody(agentProfile *profile.AgentProfile) string {
	if agentProfile == nil {
		return ""
	}
	return agentProfile.Body
}

// modelGuidance surfaces catalog strengths so the agent knows what
// the selected model is suited for.
func modelGuidance(model catalog.Model) string {
	if model.Strengths == "" {
		return ""
	}
	return fmt.Sprintf("You are running as %s. Strengths: %s", model.ModelID, model.Strengths)
}

// mergedSecrets combines the encrypted store's secrets with explicit
// KEY=VALUE assignments, the latter winning on key conflicts.
func (r *Runtime) mergedSecrets(assignments []string) ([]safety.Secret, error) {
	stored, err := safety.NewSecretStore(r.Root.StateDir).Load()
	if err != nil {
		return nil, err
	}
	combined := make([]string, 0, len(stored)+len(assignments))
	for _, secret := range stored {
		combined = append(combined, secret.Key+"="+secret.Value)
	}
	combined = append(combined, assignments...)
	secrets, err := safety.ParseSecrets(combined)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return secrets, nil
}

func sessionResumable(session state.SessionRecord) bool {
	return session.HarnessSessionID != ""
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
