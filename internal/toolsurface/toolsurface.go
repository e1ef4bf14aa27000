// Package toolsurface builds the four tool-call JSON envelopes the host
// exposes to an orchestrating session (spec §6): session_create,
// session_prompt, session_status, session_list. Each function validates its
// input up front, calls into the supervisor, and returns a response struct
// that serializes to the literal envelope shape the spec names — the same
// "validate, then build a structured outbound message" shape the teacher's
// internal/activation/commands.go and input.go use for builder commands.
package toolsurface

import (
	"context"
	"errors"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/supervisor"
)

// SessionCreateRequest is the decoded session_create tool call.
type SessionCreateRequest struct {
	Title string `json:"title"`
}

// SessionCreateResponse is the literal session_create envelope.
type SessionCreateResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionID,omitempty"`
	Title     string `json:"title,omitempty"`
	Directory string `json:"directory,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SessionCreate implements spec §6's session_create. callerSessionID and
// callerDirectory identify the orchestrator session the tool call arrived
// on — supplied by the host out-of-band, not part of the JSON body.
func SessionCreate(ctx context.Context, sup *supervisor.Supervisor, callerSessionID, callerDirectory string, req SessionCreateRequest) SessionCreateResponse {
	if req.Title == "" {
		return SessionCreateResponse{Status: "error", Error: "title is required"}
	}

	rec, err := sup.CreateChild(ctx, callerSessionID, callerDirectory, req.Title)
	if err != nil {
		return SessionCreateResponse{Status: "error", Error: err.Error()}
	}

	dir := rec.Workspace.Directory
	if dir == "" {
		dir = rec.OrchestratorDirectory
	}

	return SessionCreateResponse{
		Status:    "created",
		SessionID: rec.ChildSessionID,
		Title:     rec.Title,
		Directory: dir,
	}
}

// SessionPromptRequest is the decoded session_prompt tool call. Agent is nil
// when the caller did not request a specific agent.
type SessionPromptRequest struct {
	SessionID string  `json:"sessionID"`
	Prompt    string  `json:"prompt"`
	Agent     *string `json:"agent"`
}

// SessionPromptResponse is the literal session_prompt envelope.
type SessionPromptResponse struct {
	Status       string `json:"status"`
	SessionID    string `json:"sessionID,omitempty"`
	Agent        string `json:"agent,omitempty"`
	ForwardToken string `json:"forwardToken,omitempty"`
	PathRewrite  bool   `json:"pathRewrite,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SessionPrompt implements spec §6's session_prompt.
func SessionPrompt(ctx context.Context, sup *supervisor.Supervisor, callerSessionID string, req SessionPromptRequest) SessionPromptResponse {
	if req.SessionID == "" {
		return SessionPromptResponse{Status: "error", Error: "sessionID is required"}
	}
	if req.Prompt == "" {
		return SessionPromptResponse{Status: "error", Error: "prompt is required"}
	}

	agent := ""
	if req.Agent != nil {
		agent = *req.Agent
	}

	result, err := sup.Prompt(ctx, callerSessionID, req.SessionID, req.Prompt, agent)
	if err != nil {
		return SessionPromptResponse{Status: "error", Error: err.Error()}
	}

	return SessionPromptResponse{
		Status:       "prompt_sent",
		SessionID:    req.SessionID,
		Agent:        agent,
		ForwardToken: result.ForwardToken,
		PathRewrite:  result.PathRewrite,
	}
}

// SessionStatusRequest is the decoded session_status tool call. Refresh is
// nil when the caller did not specify a value, treated as false.
type SessionStatusRequest struct {
	SessionID string `json:"sessionID"`
	Refresh   *bool  `json:"refresh"`
}

// SessionStatusResponse is the literal session_status envelope.
type SessionStatusResponse struct {
	Status         string             `json:"status"`
	SessionID      string             `json:"sessionID,omitempty"`
	State          string             `json:"state,omitempty"`
	Progress       string             `json:"progress,omitempty"`
	StatusType     string             `json:"statusType,omitempty"`
	LastPromptAt   int64              `json:"lastPromptAt,omitempty"`
	LastResultAt   int64              `json:"lastResultAt,omitempty"`
	LastErrorAt    int64              `json:"lastErrorAt,omitempty"`
	LastActivityAt int64              `json:"lastActivityAt,omitempty"`
	Excerpt        string             `json:"excerpt,omitempty"`
	Workspace      *protocol.Workspace `json:"workspace,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// SessionStatus implements spec §6's session_status.
func SessionStatus(ctx context.Context, sup *supervisor.Supervisor, callerSessionID string, req SessionStatusRequest) SessionStatusResponse {
	if req.SessionID == "" {
		return SessionStatusResponse{Status: "error", Error: "sessionID is required"}
	}

	refresh := req.Refresh != nil && *req.Refresh

	st, err := sup.StatusOf(ctx, callerSessionID, req.SessionID, refresh)
	if err != nil {
		return SessionStatusResponse{Status: "error", Error: err.Error()}
	}

	statusType := "idle"
	if st.Progress == protocol.ProgressRunning {
		statusType = "busy"
	}

	ws := st.Workspace
	return SessionStatusResponse{
		Status:         "ok",
		SessionID:      st.ChildSessionID,
		State:          string(st.State),
		Progress:       string(st.Progress),
		StatusType:     statusType,
		LastPromptAt:   st.LastPromptAt,
		LastResultAt:   st.LastResultAt,
		LastErrorAt:    st.LastErrorAt,
		LastActivityAt: st.LastActivityAt,
		Excerpt:        st.Excerpt,
		Workspace:      &ws,
	}
}

// SessionListResponse is the literal session_list envelope.
type SessionListResponse struct {
	Status   string                  `json:"status"`
	Count    int                     `json:"count"`
	Children []protocol.ChildMetadata `json:"children"`
}

// SessionList implements spec §6's session_list: no input fields beyond the
// caller's own session ID, supplied out-of-band like the other operations.
func SessionList(sup *supervisor.Supervisor, callerSessionID string) SessionListResponse {
	children := sup.List(callerSessionID)
	return SessionListResponse{
		Status:   "ok",
		Count:    len(children),
		Children: children,
	}
}

// AsValidationKind unwraps err into the supervisor's stable machine-readable
// Kind, for tool-surface callers (e.g. an HTTP handler) that need to map a
// validation failure to a specific response code rather than a bare string.
func AsValidationKind(err error) (string, bool) {
	var verr *supervisor.ValidationError
	if errors.As(err, &verr) {
		return verr.Kind, true
	}
	return "", false
}
