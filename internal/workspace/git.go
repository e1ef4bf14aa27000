package workspace

import (
	"context"
	"os/exec"
)

// ExecGit is the production SupportProbe: it shells out to the `git`
// binary, the same approach other_examples' appgit.GitExecutor takes,
// rather than vendoring a git library. It answers only the one question
// the host's worktree.create/worktree.remove capability set doesn't:
// whether repoRoot can host a worktree at all. The mutating operations
// themselves go through hostclient.Client, matching the host capability
// set verbatim.
type ExecGit struct{}

// SupportsWorktrees reports whether repoRoot is inside a git work tree at
// all; a plain `git rev-parse --is-inside-work-tree` is enough to decide
// whether worktree.create is a meaningful call here.
func (ExecGit) SupportsWorktrees(ctx context.Context, repoRoot string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = repoRoot
	return cmd.Run() == nil
}
