// Package supervisor implements the Child Session Supervisor (spec §4.E):
// the central controller that wires the durable registry, the idle
// debouncer, the forwarding resolver, and the workspace provisioner
// against the host's session client, handling session_create,
// session_prompt, stable-idle delivery, session.error, session_status and
// session_list.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/config"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/debounce"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/forwarding"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/heuristics"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/hostclient"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/permission"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/registry"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/workspace"
)

// Kind values for ValidationError, matching spec §7's validation error
// kinds surfaced to the tool caller.
const (
	KindNestedOrchestrator = "nested_orchestrator"
	KindUnknownChild       = "unknown_child"
	KindNotOwnedByCaller   = "not_owned_by_caller"
	KindMissingMetadata    = "missing_metadata"
)

// ValidationError is a typed error carrying a stable machine-readable Kind,
// so the tool surface's JSON envelope can report a reason without parsing
// error strings (SPEC_FULL §2.2).
type ValidationError struct {
	Kind    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErr(kind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// maxErrorChars is the truncation bound spec §7 fixes for user-visible
// error strings; maxExcerptChars is the fallback for stored excerpts when
// no config is wired.
const (
	maxErrorChars   = 2000
	maxExcerptChars = 400
)

// Supervisor is the central controller of spec §4.E. It is not internally
// concurrent for a given child (spec §5): every mutation it drives for a
// child is serialized through the debouncer's busy/idle handling and the
// registry's own lock (one mutex over the whole document), so Supervisor itself holds only the
// wiring, not a lock over child state.
type Supervisor struct {
	registry    *registry.Registry
	debouncer   *debounce.Debouncer
	provisioner *workspace.Provisioner
	host        hostclient.Client
	permissions *permission.Cache
	cfg         *config.Config
	repoRoot    string
	log         *slog.Logger

	// now is overridable for tests; defaults to time.Now().UnixMilli().
	now func() int64
}

// New wires a Supervisor and its debouncer callbacks. repoRoot is the
// version-controlled root workspace provisioning operates against. The
// debouncer's OnError hook is intentionally left unset: spec §4.D routes
// session.error synchronously, but only OnHostEvent carries the actual
// error payload, so HandleError is invoked directly from there rather than
// through the debouncer's childID-only callback.
func New(
	reg *registry.Registry,
	provisioner *workspace.Provisioner,
	host hostclient.Client,
	permissions *permission.Cache,
	cfg *config.Config,
	repoRoot string,
	log *slog.Logger,
) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		registry:    reg,
		provisioner: provisioner,
		host:        host,
		permissions: permissions,
		cfg:         cfg,
		repoRoot:    repoRoot,
		log:         log,
		now:         func() int64 { return time.Now().UnixMilli() },
	}
	interval := time.Duration(cfg.DebounceMS) * time.Millisecond
	s.debouncer = debounce.New(reg.HasPendingForwardRequest, s.HandleStableIdle, nil)
	s.debouncer.WithInterval(interval)
	return s
}

// Registry exposes the wired registry for the tool surface and CLI.
func (s *Supervisor) Registry() *registry.Registry { return s.registry }

// Shutdown cancels all outstanding debounce timers, for clean process exit.
func (s *Supervisor) Shutdown() { s.debouncer.Shutdown() }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// CreateChild implements spec §4.E's session_create: refuse nested
// orchestration, provision a workspace, ask the host to create the child
// session in it, and register the result. On host failure the workspace
// (if isolated) is torn down best-effort.
func (s *Supervisor) CreateChild(ctx context.Context, orchestratorSessionID, orchestratorDirectory, title string) (protocol.ChildRecord, error) {
	if orchestratorSessionID == "" {
		return protocol.ChildRecord{}, validationErr(KindMissingMetadata, "orchestratorSessionID is required")
	}
	if s.registry.IsNestedOrchestrator(orchestratorSessionID) {
		return protocol.ChildRecord{}, validationErr(KindNestedOrchestrator, "session %s is a child session and cannot itself create children", orchestratorSessionID)
	}

	ws := s.provisioner.Provision(ctx, uuid.New().String(), title, orchestratorDirectory, s.repoRoot)

	created, err := s.host.SessionCreate(ctx, hostclient.CreateInput{
		ParentID:  orchestratorSessionID,
		Title:     title,
		Directory: ws.Directory,
	})
	if err != nil {
		if ws.Kind == workspace.KindIsolated {
			s.provisioner.Cleanup(ctx, s.repoRoot, ws.Directory)
		}
		return protocol.ChildRecord{}, fmt.Errorf("session_create: host session create failed: %w", err)
	}

	rec := protocol.ChildRecord{
		ChildSessionID:        created.ID,
		OrchestratorSessionID: orchestratorSessionID,
		OrchestratorDirectory: orchestratorDirectory,
		Title:                 title,
		CreatedAt:             s.now(),
		Workspace: protocol.Workspace{
			Directory: ws.Directory,
			Branch:    ws.Branch,
		},
		Tracking: protocol.Tracking{State: protocol.StateCreated},
	}
	s.registry.Register(rec)

	s.log.Info("supervisor: child session created",
		"child_id", created.ID, "orchestrator_id", orchestratorSessionID,
		"workspace_kind", string(ws.Kind), "workspace_directory", ws.Directory)

	return rec, nil
}

// PromptResult is the successful outcome of Prompt.
type PromptResult struct {
	ForwardToken string
	PathRewrite  bool
}

// Prompt implements spec §4.E's session_prompt: nested guard, best-effort
// path rewriting, a trigger marker snapshot, a fresh forward token,
// enqueue-before-dispatch, and the token instruction appended to the
// outgoing prompt.
func (s *Supervisor) Prompt(ctx context.Context, callerSessionID, childID, prompt, agent string) (PromptResult, error) {
	if s.registry.IsNestedOrchestrator(callerSessionID) {
		return PromptResult{}, validationErr(KindNestedOrchestrator, "session %s is a child session and cannot prompt children", callerSessionID)
	}
	rec, ok := s.registry.Get(childID)
	if !ok {
		return PromptResult{}, validationErr(KindUnknownChild, "unknown child session %s", childID)
	}

	childDir := rec.Workspace.Directory
	if childDir == "" {
		childDir = rec.OrchestratorDirectory
	}

	rewritten, rewrote := heuristics.RewritePaths(prompt, rec.OrchestratorDirectory, childDir)
	if rewrote {
		prompt = rewritten
	}

	var marker protocol.PendingForwardRequest
	if raw, err := s.host.SessionMessages(ctx, childID, childDir); err == nil {
		marker = forwarding.CreateTriggerMarker(forwarding.Normalize(raw))
	} else {
		s.log.Debug("supervisor: failed to snapshot trigger marker, proceeding with full scan on reply",
			"child_id", childID, "err", err)
	}

	token := uuid.New().String()
	marker.ForwardToken = token
	marker.CreatedAt = s.now()
	s.registry.EnqueuePendingForwardRequest(childID, marker)

	outgoing := prompt + "\n\n" + tokenInstruction(token)

	err := s.host.SessionPromptAsync(ctx, hostclient.PromptInput{
		SessionID: childID,
		Directory: childDir,
		Agent:     agent,
		Parts:     []hostclient.OutgoingPart{{Type: "text", Text: outgoing}},
	})
	if err != nil {
		s.registry.RemovePendingForwardRequest(childID, token)
		return PromptResult{}, fmt.Errorf("session_prompt: host prompt dispatch failed: %w", truncateErr(err))
	}

	s.registry.MarkPromptSent(childID, s.now(), agent)

	return PromptResult{ForwardToken: token, PathRewrite: rewrote}, nil
}

func truncateErr(err error) error {
	msg := truncate(err.Error(), maxErrorChars)
	if msg == err.Error() {
		return err
	}
	return fmt.Errorf("%s", msg)
}

func tokenInstruction(token string) string {
	return "When you have finished responding to this request, end your final " +
		"reply with exactly this line on its own:\n" +
		protocol.ForwardTokenPrefix + ": " + token
}

// HandleStableIdle implements spec §4.E's handleStableIdle: the
// debouncer's timer-fire callback. It re-verifies the child is not busy
// (closing the race with a late busy event), fetches and resolves the
// child's messages against the oldest pending request, and on a match
// delivers a synthetic message and advances registry state.
func (s *Supervisor) HandleStableIdle(childID string) {
	ctx := context.Background()

	req, ok := s.registry.PeekPendingForwardRequest(childID)
	if !ok {
		return
	}

	rec, ok := s.registry.Get(childID)
	if !ok {
		return
	}

	childDir := rec.Workspace.Directory
	if childDir == "" {
		childDir = rec.OrchestratorDirectory
	}

	statuses, err := s.host.SessionStatus(ctx, childDir)
	if err == nil {
		if entry, found := statuses[childID]; found && entry.Type == protocol.StatusBusy {
			return
		}
	}

	raw, err := s.host.SessionMessages(ctx, childID, childDir)
	if err != nil {
		s.log.Warn("supervisor: failed to fetch child messages on stable idle", "child_id", childID, "err", err)
		return
	}

	messages := forwarding.Normalize(raw)
	found, ok := forwarding.Resolve(messages, req)
	if !ok {
		return
	}

	if _, shifted := s.registry.ShiftPendingForwardRequest(childID); !shifted {
		return
	}

	if rec.LastDeliveredAssistantMessageID == found.AssistantMessageID {
		return
	}

	label := "completed"
	if rec.Tracking.LastPromptAgent == "plan" {
		label = "plan"
	}

	header := fmt.Sprintf("[Child session %s %s]", childID, label)
	body := header + "\n\n" + found.CleanedText

	metadata := map[string]interface{}{
		"childSessionID":     childID,
		"status":             "completed",
		"assistantMessageID": found.AssistantMessageID,
		"forwardToken":       req.ForwardToken,
	}

	if err := s.postSynthetic(ctx, rec, body, metadata); err != nil {
		s.log.Warn("supervisor: failed to post synthetic forwarded message", "child_id", childID, "err", err)
	}

	if questions := heuristics.ExtractQuestions(found.CleanedText); len(questions) > 0 {
		qMetadata := map[string]interface{}{
			"childSessionID": childID,
			"status":         "questions",
			"forwardToken":   req.ForwardToken,
		}
		qBody := fmt.Sprintf("[Child session %s questions]\n\n%s", childID, strings.Join(questions, "\n"))
		if err := s.postSynthetic(ctx, rec, qBody, qMetadata); err != nil {
			s.log.Warn("supervisor: failed to post synthetic questions message", "child_id", childID, "err", err)
		}
	}

	s.registry.SetLastDeliveredAssistantMessageID(childID, found.AssistantMessageID)

	excerpt := truncate(strings.TrimSpace(found.CleanedText), s.excerptMax())
	s.registry.MarkResultReceived(childID, s.now(), excerpt)
}

func (s *Supervisor) excerptMax() int {
	if s.cfg != nil && s.cfg.ExcerptMaxChars > 0 {
		return s.cfg.ExcerptMaxChars
	}
	return maxExcerptChars
}

func (s *Supervisor) postSynthetic(ctx context.Context, rec protocol.ChildRecord, body string, metadata map[string]interface{}) error {
	return s.host.SessionPrompt(ctx, hostclient.PromptInput{
		SessionID: rec.OrchestratorSessionID,
		Directory: rec.OrchestratorDirectory,
		Parts: []hostclient.OutgoingPart{{
			Type:      "text",
			Text:      body,
			Synthetic: true,
			Metadata:  metadata,
		}},
	})
}

// HandleError implements spec §4.E's session.error path: always mark the
// child in error state, then — only if at least one pending forward
// request exists — shift exactly one and post a single synthetic error
// message carrying its forward token.
func (s *Supervisor) HandleError(childID string, cause error) {
	ctx := context.Background()

	rec, ok := s.registry.Get(childID)
	if !ok {
		return
	}

	excerpt := truncate(cause.Error(), s.excerptMax())
	s.registry.MarkError(childID, s.now(), excerpt)

	req, ok := s.registry.ShiftPendingForwardRequest(childID)
	if !ok {
		return
	}

	body := fmt.Sprintf("[Child session %s error]\n\n%s", childID, truncate(cause.Error(), maxErrorChars))
	metadata := map[string]interface{}{
		"childSessionID": childID,
		"status":         "error",
		"forwardToken":   req.ForwardToken,
	}

	if err := s.postSynthetic(ctx, rec, body, metadata); err != nil {
		s.log.Warn("supervisor: failed to post synthetic error message", "child_id", childID, "err", err)
	}
}

// OnHostEvent routes one host event-stream event, per spec §6. It is the
// single entry point event-stream consumers call.
func (s *Supervisor) OnHostEvent(ctx context.Context, evt protocol.Event) {
	switch evt.Type {
	case protocol.EventSessionIdle:
		s.debouncer.OnEvent(evt.SessionID, debounce.Idle)

	case protocol.EventSessionStatus:
		if evt.Status != nil && evt.Status.Type == protocol.StatusBusy {
			s.debouncer.OnEvent(evt.SessionID, debounce.Busy)
		}

	case protocol.EventSessionError:
		msg := "unknown error"
		if evt.Error != nil {
			msg = evt.Error.Message
		}
		// Error kind only cancels any armed timer (debounce's OnError hook
		// is left unset, see New); the real error path runs here, exactly
		// once, with the actual error payload the event carries.
		s.debouncer.OnEvent(evt.SessionID, debounce.Error)
		s.HandleError(evt.SessionID, fmt.Errorf("%s", msg))

	case protocol.EventPermissionUpdated:
		if evt.Permission == nil {
			return
		}
		orchestratorID := s.resolveOrchestratorID(evt.Permission.SessionID)
		s.permissions.Capture(orchestratorID, *evt.Permission)

	case protocol.EventPermissionReplied:
		if evt.Reply == nil {
			return
		}
		// permission.replied carries only a permission ID, not a session
		// ID; CapturedSessionID recovers the session the matching
		// permission.updated event arrived on so the reply routes back to
		// the same orchestrator scope.
		sessionID, ok := s.permissions.CapturedSessionID(evt.Reply.PermissionID)
		if !ok {
			return
		}
		orchestratorID := s.resolveOrchestratorID(sessionID)
		s.permissions.Reply(orchestratorID, evt.Reply.PermissionID, evt.Reply.Response)
	}
}

// resolveOrchestratorID maps a session ID to the orchestrator session that
// owns its decision cache entry: if it is a known child, its orchestrator
// owns the entry; otherwise the session itself is treated as the
// orchestrator scope (the permission arose directly in the orchestrator's
// own session).
func (s *Supervisor) resolveOrchestratorID(sessionID string) string {
	if orch, ok := s.registry.GetOrchestratorSessionID(sessionID); ok {
		return orch
	}
	return sessionID
}

// LookupPermission exposes the decision cache to the host's permission
// hook (spec §6): given the orchestrator scope the caller already knows
// (typically resolved once via resolveOrchestratorID at capture time), it
// returns any memoized allow/deny decision for a new permission request.
func (s *Supervisor) LookupPermission(orchestratorSessionID, permissionType string, pattern interface{}) protocol.PermissionDecision {
	return s.permissions.Lookup(orchestratorSessionID, permissionType, pattern)
}

// Status is the snapshot returned by session_status.
type Status struct {
	ChildSessionID string
	State          protocol.TrackingState
	Progress       protocol.Progress
	LastPromptAt   int64
	LastResultAt   int64
	LastErrorAt    int64
	LastActivityAt int64
	Excerpt        string
	Workspace      protocol.Workspace
}

// StatusOf implements spec §4.E's session_status: verify ownership,
// optionally refresh the excerpt from the latest assistant message, and
// return a derived snapshot.
func (s *Supervisor) StatusOf(ctx context.Context, callerSessionID, childID string, refresh bool) (Status, error) {
	rec, ok := s.registry.Get(childID)
	if !ok {
		return Status{}, validationErr(KindUnknownChild, "unknown child session %s", childID)
	}
	if rec.OrchestratorSessionID != callerSessionID {
		return Status{}, validationErr(KindNotOwnedByCaller, "child session %s is not owned by caller %s", childID, callerSessionID)
	}

	if refresh {
		childDir := rec.Workspace.Directory
		if childDir == "" {
			childDir = rec.OrchestratorDirectory
		}
		if raw, err := s.host.SessionMessages(ctx, childID, childDir); err == nil {
			messages := forwarding.Normalize(raw)
			for i := len(messages) - 1; i >= 0; i-- {
				if messages[i].Role != "assistant" {
					continue
				}
				text := extractLatestAssistantText(messages[i])
				if text == "" {
					continue
				}
				excerpt := truncate(strings.TrimSpace(text), s.excerptMax())
				s.registry.RecordObservedAssistantMessage(childID, s.now(), excerpt)
				rec, _ = s.registry.Get(childID)
				break
			}
		}
	}

	childDir := rec.Workspace.Directory
	if childDir == "" {
		childDir = rec.OrchestratorDirectory
	}
	busy := false
	if statuses, err := s.host.SessionStatus(ctx, childDir); err == nil {
		if entry, found := statuses[childID]; found && entry.Type == protocol.StatusBusy {
			busy = true
		}
	}

	return Status{
		ChildSessionID: childID,
		State:          rec.Tracking.State,
		Progress:       derivedProgress(rec, busy),
		LastPromptAt:   rec.Tracking.LastPromptAt,
		LastResultAt:   rec.Tracking.LastResultAt,
		LastErrorAt:    rec.Tracking.LastErrorAt,
		LastActivityAt: s.registry.ComputeLastActivityAt(childID),
		Excerpt:        rec.Tracking.LastAssistantMessageExcerpt,
		Workspace:      rec.Workspace,
	}, nil
}

func extractLatestAssistantText(m protocol.NormalizedMessage) string {
	var sb strings.Builder
	first := true
	for _, p := range m.Parts {
		if p.Type != "text" || p.Ignored {
			continue
		}
		if !first {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
		first = false
	}
	return sb.String()
}

// derivedProgress implements spec §3's "Derived progress" rule exactly:
// done if state is terminal-ish (result_received/error); else running if
// the host reports the child currently busy; else pending.
func derivedProgress(rec protocol.ChildRecord, busy bool) protocol.Progress {
	switch rec.Tracking.State {
	case protocol.StateResultReceived, protocol.StateError:
		return protocol.ProgressDone
	}
	if busy {
		return protocol.ProgressRunning
	}
	return protocol.ProgressPending
}

// List implements spec §4.E's session_list.
func (s *Supervisor) List(orchestratorSessionID string) []protocol.ChildMetadata {
	return s.registry.List(orchestratorSessionID)
}
