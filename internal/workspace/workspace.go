// Package workspace implements the per-child workspace provisioner: atomic
// creation of an isolated git worktree per child session, with a safe
// fallback to the orchestrator's own directory when the repository does
// not support worktrees. See spec §4.B.
package workspace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/hostclient"
)

// Kind classifies the workspace a provisioning attempt produced.
type Kind string

const (
	KindIsolated Kind = "isolated"
	KindFallback Kind = "fallback"
)

// Workspace is what Provision returns: either an isolated git worktree or
// the orchestrator's own directory reused in place.
type Workspace struct {
	Kind      Kind
	Directory string
	Branch    string
}

// SupportProbe is the seam over the actual `git` binary used only to
// answer "can repoRoot host an isolated worktree at all" — the one piece
// of spec §4.B's workflow the host's worktree.create/worktree.remove
// capability set (spec §6) doesn't expose a dedicated call for. The
// mutating operations (add, remove) go through hostclient.Client instead,
// matching the host capability set verbatim.
type SupportProbe interface {
	SupportsWorktrees(ctx context.Context, repoRoot string) bool
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s, replaces runs of non [a-z0-9] with "_", trims leading
// and trailing "_", and caps the result at maxLen characters.
func Slug(s string, maxLen int) string {
	lower := strings.ToLower(s)
	replaced := slugPattern.ReplaceAllString(lower, "_")
	trimmed := strings.Trim(replaced, "_")
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen]
	}
	return trimmed
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader does not fail in
		// practice; fall back to a fixed, clearly-non-random token rather
		// than propagating an error through a provisioning path that must
		// otherwise degrade to fallback, not error out.
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(buf)
}

// DefaultBackoff is the bounded probe back-off schedule from spec §5:
// 50, 100, 200, 400, 800, 1200ms (total ≤ ~2.75s).
var DefaultBackoff = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1200 * time.Millisecond,
}

// Provisioner creates and removes per-child isolated workspaces.
type Provisioner struct {
	probe      SupportProbe
	host       hostclient.Client
	namePrefix string
	backoff    []time.Duration
	log        *slog.Logger
}

// New returns a Provisioner. namePrefix defaults to "wt" and backoff to
// DefaultBackoff when empty.
func New(probe SupportProbe, host hostclient.Client, namePrefix string, backoff []time.Duration, log *slog.Logger) *Provisioner {
	if namePrefix == "" {
		namePrefix = "wt"
	}
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{probe: probe, host: host, namePrefix: namePrefix, backoff: backoff, log: log}
}

// maxRetries is the number of collision-retry attempts spec §4.B allows
// (10 total attempts: the first plus 9 suffixed retries, _1.._9).
const maxRetries = 10

// Provision implements spec §4.B exactly: probe worktree support (bounded
// back-off), compute a unique workspace name, then ask the host to add a
// branch + workspace via worktree.create, retrying on collision with a
// "_N" directory suffix and a short random branch suffix. On persistent
// failure, or when the repository does not support worktrees, or when ctx
// is already cancelled, it returns a fallback workspace rooted at
// orchestratorDirectory.
func (p *Provisioner) Provision(ctx context.Context, sessionID, title, orchestratorDirectory, repoRoot string) Workspace {
	fallback := Workspace{Kind: KindFallback, Directory: orchestratorDirectory}

	select {
	case <-ctx.Done():
		return fallback
	default:
	}

	if !p.probeSupport(ctx, repoRoot) {
		return fallback
	}

	baseName := fmt.Sprintf("%s-%s-%s-%s-%s",
		p.namePrefix,
		time.Now().Format("20060102150405"),
		Slug(title, 40),
		Slug(sessionID, 20),
		randomHex(4),
	)

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fallback
		default:
		}

		name := baseName
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d_%s", baseName, attempt, randomHex(3))
		}

		result, err := p.host.WorktreeCreate(ctx, repoRoot, hostclient.WorktreeCreateInput{Name: name})
		if err == nil {
			return Workspace{Kind: KindIsolated, Directory: result.Directory, Branch: result.Branch}
		}
		p.log.Debug("workspace: worktree.create attempt failed, retrying",
			"child_id", sessionID, "attempt", attempt, "name", name, "err", err)
	}

	p.log.Warn("workspace: exhausted retries creating isolated workspace, falling back",
		"child_id", sessionID)
	return fallback
}

// probeSupport runs SupportsWorktrees with the bounded back-off schedule,
// per spec §5 ("Workspace readiness probing uses bounded back-off"). The
// first call happens immediately; subsequent calls sleep the next backoff
// entry between attempts. Returns false as soon as ctx is cancelled.
func (p *Provisioner) probeSupport(ctx context.Context, repoRoot string) bool {
	if p.probe.SupportsWorktrees(ctx, repoRoot) {
		return true
	}
	for _, d := range p.backoff {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
		}
		if p.probe.SupportsWorktrees(ctx, repoRoot) {
			return true
		}
	}
	return false
}

// Cleanup is best-effort: it attempts an isolated-workspace removal via
// worktree.remove first, and falls back to a recursive filesystem delete
// if that fails (spec §4.B, "Cleanup is best-effort").
func (p *Provisioner) Cleanup(ctx context.Context, repoRoot, directory string) {
	if directory == "" {
		return
	}
	if ok, err := p.host.WorktreeRemove(ctx, directory); err != nil || !ok {
		p.log.Debug("workspace: worktree.remove failed, falling back to rm -rf",
			"directory", directory, "err", err)
		if rmErr := removeAll(directory); rmErr != nil {
			p.log.Warn("workspace: failed to remove workspace directory",
				"directory", directory, "err", rmErr)
		}
	}
}

func removeAll(directory string) error {
	return os.RemoveAll(directory)
}

// Orphans lists the immediate subdirectories of root that are not present
// in tracked — used by the operator CLI's workspace gc command to find
// worktree directories left behind by a crashed provisioning attempt or a
// child the registry no longer knows about.
func Orphans(root string, tracked []string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	trackedSet := make(map[string]bool, len(tracked))
	for _, t := range tracked {
		trackedSet[filepath.Base(t)] = true
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if trackedSet[e.Name()] {
			continue
		}
		out = append(out, filepath.Join(root, e.Name()))
	}
	return out, nil
}
