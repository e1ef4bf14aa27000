// Package protocol defines the durable data model and wire shapes shared
// across the supervisor: child records, pending forward requests, host
// capability payloads, and the persisted registry document.
package protocol

// TrackingState is the total-ordered lifecycle state of a child session.
type TrackingState string

const (
	StateCreated        TrackingState = "created"
	StatePromptSent     TrackingState = "prompt_sent"
	StateResultReceived TrackingState = "result_received"
	StateError          TrackingState = "error"
)

// Progress is the derived, non-stored progress shown to callers.
type Progress string

const (
	ProgressDone    Progress = "done"
	ProgressRunning Progress = "running"
	ProgressPending Progress = "pending"
)

// ForwardTokenPrefix is the exact line prefix a child is instructed to
// echo, verbatim, on its own line in its final assistant message.
const ForwardTokenPrefix = "opencode_cc_forward_token"

// Workspace describes a child's isolated working directory, or is the
// zero value when the child falls back to the orchestrator's directory.
type Workspace struct {
	Directory string `json:"directory"`
	Branch    string `json:"branch"`
}

// IsZero reports whether no isolated workspace was assigned.
func (w Workspace) IsZero() bool {
	return w.Directory == "" && w.Branch == ""
}

// Tracking holds the mutable lifecycle fields of a ChildRecord.
type Tracking struct {
	State                       TrackingState `json:"state"`
	LastPromptAt                int64         `json:"lastPromptAt,omitempty"`
	LastPromptAgent             string        `json:"lastPromptAgent,omitempty"`
	LastResultAt                int64         `json:"lastResultAt,omitempty"`
	LastErrorAt                 int64         `json:"lastErrorAt,omitempty"`
	LastAssistantMessageAt      int64         `json:"lastAssistantMessageAt,omitempty"`
	LastAssistantMessageExcerpt string        `json:"lastAssistantMessageExcerpt,omitempty"`
}

// PendingForwardRequest is one outstanding "the orchestrator sent a prompt
// and is awaiting a reply" obligation.
type PendingForwardRequest struct {
	ForwardToken            string `json:"forwardToken"`
	CreatedAt               int64  `json:"createdAt"`
	AfterMessageCount       *int   `json:"afterMessageCount,omitempty"`
	AfterAssistantMessageID string `json:"afterAssistantMessageID,omitempty"`
}

// ChildRecord is the durable unit managed by the registry.
type ChildRecord struct {
	ChildSessionID                  string                  `json:"childSessionID"`
	OrchestratorSessionID           string                  `json:"orchestratorSessionID"`
	OrchestratorDirectory           string                  `json:"orchestratorDirectory,omitempty"`
	Title                           string                  `json:"title"`
	CreatedAt                       int64                   `json:"createdAt"`
	Workspace                       Workspace               `json:"workspace"`
	Tracking                        Tracking                `json:"tracking"`
	LastDeliveredAssistantMessageID string                  `json:"lastDeliveredAssistantMessageID,omitempty"`
	PendingForwardRequests          []PendingForwardRequest `json:"pendingForwardRequests"`
}

// ChildMetadata is the reduced projection returned by list operations.
type ChildMetadata struct {
	ChildSessionID        string        `json:"childSessionID"`
	OrchestratorSessionID string        `json:"orchestratorSessionID"`
	Title                 string        `json:"title"`
	CreatedAt             int64         `json:"createdAt"`
	State                 TrackingState `json:"state"`
	LastActivityAt        int64         `json:"lastActivityAt"`
	Workspace              Workspace    `json:"workspace"`
}

// CurrentVersion is the document schema version this build writes.
const CurrentVersion = 2

// Document is the single versioned persisted registry document.
type Document struct {
	Version  int                    `json:"version"`
	Sessions map[string]StoredChild `json:"sessions"`
}

// Registration is the registration-time portion of a stored child, written
// only by the registry's Register.
type Registration struct {
	ChildSessionID        string `json:"childSessionID"`
	OrchestratorSessionID string `json:"orchestratorSessionID"`
	OrchestratorDirectory string `json:"orchestratorDirectory,omitempty"`
	Title                 string `json:"title"`
	CreatedAt             int64  `json:"createdAt"`
	WorkspaceDirectory    string `json:"workspaceDirectory,omitempty"`
	WorkspaceBranch       string `json:"workspaceBranch,omitempty"`
}

// StoredChild is the on-disk representation of one ChildRecord.
type StoredChild struct {
	Version                         int                     `json:"version"`
	Registration                    Registration            `json:"registration"`
	Tracking                        Tracking                `json:"tracking"`
	LastDeliveredAssistantMessageID string                  `json:"lastDeliveredAssistantMessageID,omitempty"`
	PendingForwardRequests          []PendingForwardRequest `json:"pendingForwardRequests"`
}

// ToChildRecord expands a StoredChild back into the in-memory ChildRecord shape.
func (s StoredChild) ToChildRecord() ChildRecord {
	return ChildRecord{
		ChildSessionID:        s.Registration.ChildSessionID,
		OrchestratorSessionID: s.Registration.OrchestratorSessionID,
		OrchestratorDirectory: s.Registration.OrchestratorDirectory,
		Title:                 s.Registration.Title,
		CreatedAt:             s.Registration.CreatedAt,
		Workspace: Workspace{
			Directory: s.Registration.WorkspaceDirectory,
			Branch:    s.Registration.WorkspaceBranch,
		},
		Tracking:                        s.Tracking,
		LastDeliveredAssistantMessageID: s.LastDeliveredAssistantMessageID,
		PendingForwardRequests:          append([]PendingForwardRequest(nil), s.PendingForwardRequests...),
	}
}

// FromChildRecord narrows a ChildRecord into its on-disk representation.
func FromChildRecord(r ChildRecord) StoredChild {
	return StoredChild{
		Version: CurrentVersion,
		Registration: Registration{
			ChildSessionID:        r.ChildSessionID,
			OrchestratorSessionID: r.OrchestratorSessionID,
			OrchestratorDirectory: r.OrchestratorDirectory,
			Title:                 r.Title,
			CreatedAt:             r.CreatedAt,
			WorkspaceDirectory:    r.Workspace.Directory,
			WorkspaceBranch:       r.Workspace.Branch,
		},
		Tracking:                        r.Tracking,
		LastDeliveredAssistantMessageID: r.LastDeliveredAssistantMessageID,
		PendingForwardRequests:          append([]PendingForwardRequest(nil), r.PendingForwardRequests...),
	}
}
