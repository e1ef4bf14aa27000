package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
)

func TestLookupNoneByDefault(t *testing.T) {
	c := New()
	assert.Equal(t, protocol.DecisionNone, c.Lookup("o1", "bash", "rm *"))
}

func TestReplyAlwaysThenLookupAllow(t *testing.T) {
	c := New()
	c.Capture("o1", protocol.Permission{ID: "p1", PermissionType: "bash", Pattern: "rm *"})
	c.Reply("o1", "p1", "always")
	assert.Equal(t, protocol.DecisionAllow, c.Lookup("o1", "bash", "rm *"))
}

func TestReplyRejectThenLookupDeny(t *testing.T) {
	c := New()
	c.Capture("o1", protocol.Permission{ID: "p1", PermissionType: "bash", Pattern: "rm *"})
	c.Reply("o1", "p1", "reject")
	assert.Equal(t, protocol.DecisionDeny, c.Lookup("o1", "bash", "rm *"))
}

func TestReplyOtherIgnored(t *testing.T) {
	c := New()
	c.Capture("o1", protocol.Permission{ID: "p1", PermissionType: "bash", Pattern: "rm *"})
	c.Reply("o1", "p1", "once")
	assert.Equal(t, protocol.DecisionNone, c.Lookup("o1", "bash", "rm *"))
}

func TestAllowThenDenyRemovesFromAllow(t *testing.T) {
	c := New()
	c.Capture("o1", protocol.Permission{ID: "p1", PermissionType: "bash", Pattern: "rm *"})
	c.Reply("o1", "p1", "always")
	assert.Equal(t, protocol.DecisionAllow, c.Lookup("o1", "bash", "rm *"))

	c.Capture("o1", protocol.Permission{ID: "p2", PermissionType: "bash", Pattern: "rm *"})
	c.Reply("o1", "p2", "reject")
	assert.Equal(t, protocol.DecisionDeny, c.Lookup("o1", "bash", "rm *"))
}

func TestDenyBeatsAllowWhenBothMatchDifferentPatterns(t *testing.T) {
	c := New()
	c.Capture("o1", protocol.Permission{ID: "p1", PermissionType: "bash", Pattern: []string{"rm *", "curl *"}})
	c.Reply("o1", "p1", "always")

	c.Capture("o1", protocol.Permission{ID: "p2", PermissionType: "bash", Pattern: "curl *"})
	c.Reply("o1", "p2", "reject")

	assert.Equal(t, protocol.DecisionAllow, c.Lookup("o1", "bash", "rm *"))
	assert.Equal(t, protocol.DecisionDeny, c.Lookup("o1", "bash", "curl *"))
	assert.Equal(t, protocol.DecisionDeny, c.Lookup("o1", "bash", []string{"rm *", "curl *"}))
}

func TestNormalizePattern(t *testing.T) {
	assert.Equal(t, []string{""}, NormalizePattern(nil))
	assert.Equal(t, []string{"a"}, NormalizePattern("a"))
	assert.Equal(t, []string{"a", "b"}, NormalizePattern([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, NormalizePattern([]interface{}{"a", "b"}))
}

func TestScopedPerOrchestrator(t *testing.T) {
	c := New()
	c.Capture("o1", protocol.Permission{ID: "p1", PermissionType: "bash", Pattern: "rm *"})
	c.Reply("o1", "p1", "always")

	assert.Equal(t, protocol.DecisionNone, c.Lookup("o2", "bash", "rm *"))
}
