package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/provider"
	"github.com/trybotster/botster-orchestrator/internal/registry"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

// CommandResponse is the structured result of executing an intent against a
// capability (spec.md §3).
type CommandResponse struct {
	Action        string
	Summary       string
	Details       string
	Suggestions   []string
	FilesAffected []string
	Confidence    float64
	Duration      time.Duration
}

// actionCapabilityKinds is the action -> capability kind filter table from
// spec.md §6, in preference order for actions that list more than one kind.
var actionCapabilityKinds = map[string][]registry.CapabilityKind{
	ActionAnalyzeCode:          {registry.CodeAnalysis},
	ActionExplain:               {registry.CodeAnalysis, registry.GeneralAssistance},
	ActionRunTests:              {registry.Testing},
	ActionGenerateDocumentation: {registry.Documentation},
	ActionSuggestImprovements:   {registry.CodeAnalysis},
	ActionReviewCode:            {registry.CodeAnalysis},
	ActionGeneralAssistance:     {registry.GeneralAssistance},
}

// successUsefulness/partialUsefulness are the defaults from spec.md §4.9.
const (
	successUsefulness = 0.8
	partialUsefulness = 0.3
)

// Executor is C10: it binds a ParsedIntent to the best-matching capability
// in a session's activation snapshot, invokes the owning provider, and
// records usage feedback.
type Executor struct {
	registry *registry.Registry
	invoker  *provider.Invoker
	logger   *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(reg *registry.Registry, inv *provider.Invoker, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: reg, invoker: inv, logger: logger}
}

// Execute implements the C10 procedure (spec.md §4.9) given an already
// resolved session. It never blocks the session's input path itself — that
// guarantee is provided by Queue, which calls Execute from a per-session
// worker goroutine.
func (e *Executor) Execute(ctx context.Context, sess *session.Session, intent ParsedIntent) CommandResponse {
	activation := sess.Activation() // immutable snapshot (spec.md §4.9 step 2)

	// help is synthetic: it is answered here without any provider.
	if intent.Action == ActionHelp {
		return CommandResponse{
			Action:     ActionHelp,
			Summary:    "commands: ae analyze code, ae explain <target>, ae run tests, ae generate docs, ae suggest improvements, ae review, ae help",
			Confidence: 1.0,
		}
	}

	chosen, providerDesc, found := selectCapability(activation, intent.Action)
	if !found {
		return fallbackResponse(activation, intent)
	}

	if err := validateParameters(chosen.Capability, intent.Parameters); err != nil {
		e.logger.Warn("command: parameter validation failed", "action", intent.Action, "provider", providerDesc.ID, "error", err)
		return CommandResponse{Action: ActionError, Summary: err.Error(), Confidence: intent.Confidence}
	}

	projectCtx := sess.ProjectContext()
	signature := ""
	payloadCtx := provider.ContextPayload{}
	if projectCtx != nil {
		signature = projectCtx.Signature()
		payloadCtx = provider.ContextPayload{
			ProjectType:           projectCtx.ProjectType,
			PrimaryLanguage:       projectCtx.PrimaryLanguage,
			Frameworks:            projectCtx.Frameworks,
			DependencyFingerprint: projectCtx.DependencyFingerprint,
		}
	}

	req := provider.Request{
		Action:         intent.Action,
		WorkingDir:     sess.WorkingDir(),
		ProjectContext: payloadCtx,
		Target:         intent.Target,
		Parameters:     intent.Parameters,
		Files:          resolveFiles(intent.Target, sess.WorkingDir(), payloadCtx.PrimaryLanguage),
	}

	timeout := provider.TimeoutForAction(intent.Action)
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.invoker.Invoke(invokeCtx, providerDesc.Invocation, req)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Warn("command: provider invocation failed", "action", intent.Action, "provider", providerDesc.ID, "error", err)
		e.registry.RecordFeedback(registry.UsageRecord{
			ProjectSignature: signature,
			ProviderID:       providerDesc.ID,
			CapabilityName:   chosen.Capability.Name,
			Outcome:          registry.OutcomeFailure,
			Timestamp:        time.Now(),
		})
		return CommandResponse{Action: ActionError, Summary: err.Error(), Confidence: intent.Confidence, Duration: elapsed}
	}

	usefulness := successUsefulness
	if partial, _ := result.Metrics["partial"].(bool); partial {
		usefulness = partialUsefulness
	}
	e.registry.RecordFeedback(registry.UsageRecord{
		ProjectSignature: signature,
		ProviderID:       providerDesc.ID,
		CapabilityName:   chosen.Capability.Name,
		Outcome:          registry.OutcomeSuccess,
		Usefulness:       usefulness,
		Timestamp:        time.Now(),
	})

	return CommandResponse{
		Action:        intent.Action,
		Summary:       result.Summary,
		Details:       result.Details,
		Suggestions:   result.Suggestions,
		FilesAffected: result.FilesAffected,
		Confidence:    intent.Confidence,
		Duration:      elapsed,
	}
}

// selectCapability implements step 3 of spec.md §4.9: filter
// activation.capabilities by the action's kind filter, returning the
// highest-scoring match (capabilities are already ranked by Select) and the
// provider descriptor that owns it.
func selectCapability(activation *registry.ActivationSet, action string) (registry.ScoredCapability, registry.ProviderDescriptor, bool) {
	if activation == nil {
		return registry.ScoredCapability{}, registry.ProviderDescriptor{}, false
	}
	for _, kind := range actionCapabilityKinds[action] {
		if c, ok := activation.FindCapability(kind); ok {
			for _, sp := range activation.Providers {
				if sp.Provider.ID == c.ProviderID {
					return c, sp.Provider, true
				}
			}
		}
	}
	return registry.ScoredCapability{}, registry.ProviderDescriptor{}, false
}

// fallbackResponse implements step 4 of spec.md §4.9: no capability found.
func fallbackResponse(activation *registry.ActivationSet, intent ParsedIntent) CommandResponse {
	var suggestions []string
	if activation != nil {
		for _, sp := range activation.Providers {
			suggestions = append(suggestions, sp.Provider.Name)
		}
	}
	confidence := intent.Confidence
	if confidence > 0.1 {
		confidence = 0.1
	}
	return CommandResponse{
		Action:      ActionFallback,
		Summary:     "no provider available for this action",
		Suggestions: suggestions,
		Confidence:  confidence,
	}
}

// validateParameters checks that intent parameters satisfy a capability's
// declared input shape before a provider is ever invoked, so a parameter
// mismatch fails fast with ActionError instead of invoking a provider that
// is doomed to reject the request itself (grounded on ai_command_executor.rs's
// pre-invocation shape check; SPEC_FULL.md §4 "Capability input/output
// JSON-shape validation"). cap.Input is an opaque JSON-schema-shaped map; only
// its top-level "required" list (a []any of strings, as decoded JSON yields)
// is enforced; a "required" value of any other type is not checked at all —
// matching the original's presence-only check, not full schema validation.
func validateParameters(cap registry.Capability, parameters map[string]any) error {
	if cap.Input == nil {
		return nil
	}
	required, ok := cap.Input["required"]
	if !ok {
		return nil
	}
	names, ok := required.([]any)
	if !ok {
		return nil
	}

	for _, n := range names {
		key, ok := n.(string)
		if !ok {
			continue
		}
		if _, present := parameters[key]; !present {
			return fmt.Errorf("missing required parameter %q for capability %q", key, cap.Name)
		}
	}
	return nil
}

// languageExtensions maps a primary_language to the file extensions
// considered "source files" for the default file-resolution rule in
// spec.md §4.9 step 5.
var languageExtensions = map[string][]string{
	"go":         {".go"},
	"rust":       {".rs"},
	"javascript": {".js", ".jsx", ".ts", ".tsx"},
	"python":     {".py"},
}

// resolveFiles implements spec.md §4.9 step 5's target resolution: if a
// target was given, treat it as a path relative to workingDir; otherwise walk
// workingDir (non-recursively, matching the original's get_available_files)
// and return every entry whose extension is in languageExtensions[primaryLanguage].
// Grounded on ai_command_executor.rs's resolve_analysis_targets falling back to
// the project's available_files when no explicit target is given.
func resolveFiles(target *string, workingDir, primaryLanguage string) []string {
	if target != nil {
		return []string{*target}
	}

	exts := languageExtensions[primaryLanguage]
	if len(exts) == 0 {
		return nil
	}

	entries, err := os.ReadDir(workingDir)
	if err != nil {
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		for _, ext := range exts {
			if strings.HasSuffix(name, ext) {
				files = append(files, filepath.Join(workingDir, name))
				break
			}
		}
	}
	return files
}

// ErrBusy is returned when a session's invocation queue is saturated
// (spec.md §5 backpressure, Q_MAX=16).
var ErrBusy = errors.New("command queue busy")
