package hostclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
)

// Fake is an in-memory Client used throughout the test suite, playing the
// same substitute-execution role the teacher's fixture agents play for its
// subprocess protocol: tests script its behavior directly instead of
// spawning a real host.
type Fake struct {
	mu sync.Mutex

	nextID int

	// CreateErr, when non-nil, is returned by every SessionCreate call.
	CreateErr error
	// PromptAsyncErr, when non-nil, is returned by every SessionPromptAsync call.
	PromptAsyncErr error
	// WorktreeSupported controls whether WorktreeCreate succeeds.
	WorktreeSupported bool
	// WorktreeErr, when non-nil, is returned by WorktreeCreate.
	WorktreeErr error

	Statuses map[string]SessionStatusEntry
	Messages map[string][]protocol.RawMessage

	Created        []CreateInput
	PromptedAsync  []PromptInput
	PromptedSync   []PromptInput
	WorktreesMade  []string
	WorktreesKilled []string
	Agents_        []Agent
}

// NewFake returns a Fake with worktree support enabled by default.
func NewFake() *Fake {
	return &Fake{
		WorktreeSupported: true,
		Statuses:          map[string]SessionStatusEntry{},
		Messages:          map[string][]protocol.RawMessage{},
	}
}

func (f *Fake) SessionCreate(ctx context.Context, in CreateInput) (CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return CreateResult{}, f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("fake-session-%d", f.nextID)
	f.Created = append(f.Created, in)
	return CreateResult{ID: id, Title: in.Title}, nil
}

func (f *Fake) SessionPromptAsync(ctx context.Context, in PromptInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PromptAsyncErr != nil {
		return f.PromptAsyncErr
	}
	f.PromptedAsync = append(f.PromptedAsync, in)
	return nil
}

func (f *Fake) SessionPrompt(ctx context.Context, in PromptInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PromptedSync = append(f.PromptedSync, in)
	return nil
}

func (f *Fake) SessionStatus(ctx context.Context, directory string) (map[string]SessionStatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]SessionStatusEntry, len(f.Statuses))
	for k, v := range f.Statuses {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) SessionMessages(ctx context.Context, sessionID, directory string) ([]protocol.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.RawMessage(nil), f.Messages[sessionID]...), nil
}

func (f *Fake) WorktreeCreate(ctx context.Context, directory string, in WorktreeCreateInput) (WorktreeCreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.WorktreeSupported {
		return WorktreeCreateResult{}, fmt.Errorf("worktrees not supported")
	}
	if f.WorktreeErr != nil {
		return WorktreeCreateResult{}, f.WorktreeErr
	}
	f.WorktreesMade = append(f.WorktreesMade, in.Name)
	return WorktreeCreateResult{Name: in.Name, Branch: in.Name, Directory: directory + "/" + in.Name}, nil
}

func (f *Fake) WorktreeRemove(ctx context.Context, directory string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WorktreesKilled = append(f.WorktreesKilled, directory)
	return true, nil
}

func (f *Fake) Agents(ctx context.Context, directory string) ([]Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Agents_, nil
}

// SetStatus is a test helper for scripting session.status results.
func (f *Fake) SetStatus(sessionID string, kind protocol.StatusKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[sessionID] = SessionStatusEntry{Type: kind}
}

// SetMessages is a test helper for scripting session.messages results.
func (f *Fake) SetMessages(sessionID string, msgs []protocol.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[sessionID] = msgs
}
