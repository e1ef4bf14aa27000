package workspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/hostclient"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
)

// fakeProbe is an in-memory SupportProbe used by this package's tests; it
// plays the same substitute-execution role as hostclient.Fake, scripted
// directly instead of shelling out to a real git binary.
type fakeProbe struct {
	mu        sync.Mutex
	supported bool
}

func newFakeProbe(supported bool) *fakeProbe {
	return &fakeProbe{supported: supported}
}

func (f *fakeProbe) SupportsWorktrees(ctx context.Context, repoRoot string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported
}

// fakeHost is a minimal hostclient.Client used only to script
// worktree.create/worktree.remove outcomes for the provisioner tests; every
// other method is an unused no-op.
type fakeHost struct {
	mu sync.Mutex

	// failFirst causes the first failFirst calls to WorktreeCreate to
	// return an error, simulating name collisions the provisioner must
	// retry past.
	failFirst int
	// alwaysFail makes every WorktreeCreate call fail.
	alwaysFail bool

	removeOK  bool
	removeErr error

	created []hostclient.WorktreeCreateInput
	removed []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{removeOK: true}
}

func (f *fakeHost) WorktreeCreate(ctx context.Context, directory string, in hostclient.WorktreeCreateInput) (hostclient.WorktreeCreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alwaysFail || len(f.created) < f.failFirst {
		f.created = append(f.created, in)
		return hostclient.WorktreeCreateResult{}, fmt.Errorf("fake collision for %s", in.Name)
	}
	f.created = append(f.created, in)
	return hostclient.WorktreeCreateResult{
		Name:      in.Name,
		Branch:    in.Name,
		Directory: directory + "/" + in.Name,
	}, nil
}

func (f *fakeHost) WorktreeRemove(ctx context.Context, directory string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, directory)
	return f.removeOK, f.removeErr
}

func (f *fakeHost) SessionCreate(ctx context.Context, in hostclient.CreateInput) (hostclient.CreateResult, error) {
	return hostclient.CreateResult{}, fmt.Errorf("not implemented")
}

func (f *fakeHost) SessionPromptAsync(ctx context.Context, in hostclient.PromptInput) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeHost) SessionPrompt(ctx context.Context, in hostclient.PromptInput) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeHost) SessionStatus(ctx context.Context, directory string) (map[string]hostclient.SessionStatusEntry, error) {
	return nil, nil
}

func (f *fakeHost) SessionMessages(ctx context.Context, sessionID, directory string) ([]protocol.RawMessage, error) {
	return nil, nil
}

func (f *fakeHost) Agents(ctx context.Context, directory string) ([]hostclient.Agent, error) {
	return nil, nil
}
