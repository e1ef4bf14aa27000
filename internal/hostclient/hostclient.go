// Package hostclient defines the capability set the supervisor consumes
// from the host assistant runtime: session lifecycle, worktree management,
// and agent discovery. Any transport may implement it; production code
// talks to the host's actual RPC surface, tests substitute the in-memory
// Fake in this package.
package hostclient

import (
	"context"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
)

// CreateInput is the payload for session.create.
type CreateInput struct {
	ParentID  string
	Title     string
	Directory string
}

// CreateResult is the payload session.create returns on success.
type CreateResult struct {
	ID    string
	Title string
}

// OutgoingPart is one part of an outbound prompt.
type OutgoingPart struct {
	Type      string
	Text      string
	Synthetic bool
	Metadata  map[string]interface{}
}

// PromptInput is the payload for session.promptAsync and session.prompt.
type PromptInput struct {
	SessionID string
	Directory string
	Agent     string
	Parts     []OutgoingPart
}

// WorktreeCreateInput names the worktree to create.
type WorktreeCreateInput struct {
	Name string
}

// WorktreeCreateResult is what worktree.create returns on success.
type WorktreeCreateResult struct {
	Name      string
	Branch    string
	Directory string
}

// Agent describes one agent the host exposes (e.g. "plan", "build").
type Agent struct {
	Name string
}

// SessionStatusEntry is one entry of session.status's map result.
type SessionStatusEntry struct {
	Type protocol.StatusKind
}

// Client is the capability set the supervisor consumes from the host.
// Every method takes a context so long-running calls (worktree creation,
// session creation) are cooperatively cancellable, per the spec's
// cooperative-cancellation design note.
type Client interface {
	SessionCreate(ctx context.Context, in CreateInput) (CreateResult, error)
	SessionPromptAsync(ctx context.Context, in PromptInput) error
	SessionPrompt(ctx context.Context, in PromptInput) error
	SessionStatus(ctx context.Context, directory string) (map[string]SessionStatusEntry, error)
	SessionMessages(ctx context.Context, sessionID, directory string) ([]protocol.RawMessage, error)

	WorktreeCreate(ctx context.Context, directory string, in WorktreeCreateInput) (WorktreeCreateResult, error)
	WorktreeRemove(ctx context.Context, directory string) (bool, error)

	// Agents is an optional capability; implementations that do not
	// support agent discovery should return (nil, nil).
	Agents(ctx context.Context, directory string) ([]Agent, error)
}
