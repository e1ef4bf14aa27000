// Package permission implements the per-orchestrator permission decision
// cache: memoized allow/deny verdicts keyed by (permissionType, pattern),
// consulted by the host's permission hook.
package permission

import (
	"sync"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
)

type key struct {
	permissionType string
	pattern        string
}

// Cache is in-memory, single-process state; it is never persisted (spec §5).
type Cache struct {
	mu sync.Mutex

	// captured holds permissions seen via Capture, keyed by permission ID,
	// so a later Reply can look up its (type, pattern) tuple.
	captured map[string]protocol.Permission

	// allow/deny are keyed by orchestrator session ID, then by the
	// normalized (type, pattern) tuple.
	allow map[string]map[key]bool
	deny  map[string]map[key]bool
}

// New returns an empty decision cache.
func New() *Cache {
	return &Cache{
		captured: map[string]protocol.Permission{},
		allow:    map[string]map[key]bool{},
		deny:     map[string]map[key]bool{},
	}
}

// NormalizePattern implements spec §4.F's normalization: string → [string];
// array → array; absent → [""].
func NormalizePattern(pattern interface{}) []string {
	switch v := pattern.(type) {
	case nil:
		return []string{""}
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return []string{""}
		}
		return out
	default:
		return []string{""}
	}
}

// Capture records an incoming permission request by its ID, for later
// lookup when its reply arrives.
func (c *Cache) Capture(orchestratorID string, p protocol.Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured[p.ID] = p
}

// CapturedSessionID returns the session ID a previously captured
// permission request arrived on, so a later permission.replied event
// (which carries only a permission ID, not a session ID) can be routed
// back to the same orchestrator scope it was captured under.
func (c *Cache) CapturedSessionID(permissionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.captured[permissionID]
	if !ok {
		return "", false
	}
	return p.SessionID, true
}

// Reply records the orchestrator's response to a previously captured
// permission: "always" marks every (type, pattern) key allow; "reject"
// marks them deny; anything else is ignored. Writing to one set removes the
// same keys from the other.
func (c *Cache) Reply(orchestratorID string, permissionID, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.captured[permissionID]
	if !ok {
		return
	}

	keys := keysFor(p.PermissionType, p.Pattern)

	switch response {
	case "always":
		c.setLocked(orchestratorID, keys, true)
	case "reject":
		c.setLocked(orchestratorID, keys, false)
	}
}

func (c *Cache) setLocked(orchestratorID string, keys []key, allowDecision bool) {
	if c.allow[orchestratorID] == nil {
		c.allow[orchestratorID] = map[key]bool{}
	}
	if c.deny[orchestratorID] == nil {
		c.deny[orchestratorID] = map[key]bool{}
	}
	for _, k := range keys {
		if allowDecision {
			c.allow[orchestratorID][k] = true
			delete(c.deny[orchestratorID], k)
		} else {
			c.deny[orchestratorID][k] = true
			delete(c.allow[orchestratorID], k)
		}
	}
}

func keysFor(permissionType string, pattern interface{}) []key {
	patterns := NormalizePattern(pattern)
	out := make([]key, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, key{permissionType: permissionType, pattern: p})
	}
	return out
}

// Lookup returns the cached decision for a new permission in the given
// orchestrator. Deny takes precedence over allow when both match.
func (c *Cache) Lookup(orchestratorID string, permissionType string, pattern interface{}) protocol.PermissionDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := keysFor(permissionType, pattern)

	if denySet, ok := c.deny[orchestratorID]; ok {
		for _, k := range keys {
			if denySet[k] {
				return protocol.DecisionDeny
			}
		}
	}
	if allowSet, ok := c.allow[orchestratorID]; ok {
		for _, k := range keys {
			if allowSet[k] {
				return protocol.DecisionAllow
			}
		}
	}
	return protocol.DecisionNone
}
