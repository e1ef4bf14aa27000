// Package registry implements the durable registry: a file-backed,
// crash-safe map from child session ID to ChildRecord, persisted as a
// single versioned JSON document and mutated read-modify-write.
package registry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/fsutil"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
)

// Registry is the durable, crash-safe store of ChildRecords.
//
// All mutators are no-ops when the target child is not registered, and all
// disk errors are swallowed: write failures never propagate to callers
// (see spec §7, "Persistence failure"). The registry holds a full in-memory
// copy of the document and reads the file only once, in Load — callers
// that need crash recovery reconstruct a fresh Registry via Load.
type Registry struct {
	mu   sync.Mutex
	path string
	doc  protocol.Document
	log  *slog.Logger
}

// Load reads the registry document at path (creating an empty in-memory
// store if the file is missing or unparsable) and, if legacyDir is
// non-empty and exists, performs the one-shot legacy per-file migration.
func Load(path string, legacyDir string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		path: path,
		doc:  protocol.Document{Version: protocol.CurrentVersion, Sessions: map[string]protocol.StoredChild{}},
		log:  log,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("registry: read failed, starting empty", "path", path, "err", err)
		}
	} else {
		var doc protocol.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			log.Warn("registry: parse failed, starting empty", "path", path, "err", err)
		} else {
			r.doc = normalizeDocument(doc)
		}
	}

	if legacyDir != "" {
		r.migrateLegacyOnce(legacyDir)
	}

	return r
}

// normalizeDocument accepts version 1 and 2 documents; unknown versions
// yield an empty store (per spec §6, "unknown versions yield an empty
// store"). Missing fields are defaulted; unknown fields are discarded by
// the json.Unmarshal step above.
func normalizeDocument(doc protocol.Document) protocol.Document {
	if doc.Version != 1 && doc.Version != protocol.CurrentVersion {
		return protocol.Document{Version: protocol.CurrentVersion, Sessions: map[string]protocol.StoredChild{}}
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]protocol.StoredChild{}
	}
	for id, sc := range doc.Sessions {
		if sc.PendingForwardRequests == nil {
			sc.PendingForwardRequests = []protocol.PendingForwardRequest{}
		}
		if sc.Tracking.State == "" {
			sc.Tracking.State = protocol.StateCreated
		}
		doc.Sessions[id] = sc
	}
	doc.Version = protocol.CurrentVersion
	return doc
}

// migrateLegacyOnce folds a sibling directory of per-child JSON files into
// the single document, the way the teacher's config loader folds a legacy
// layout into a new one on first load. It is a no-op if the directory does
// not exist or has already been consumed (i.e. every record it names is
// already present).
func (r *Registry) migrateLegacyOnce(legacyDir string) {
	entries, err := os.ReadDir(legacyDir)
	if err != nil {
		return
	}
	changed := false
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		childID := e.Name()[:len(e.Name())-len(".json")]
		if _, exists := r.doc.Sessions[childID]; exists {
			continue
		}
		data, err := os.ReadFile(filepath.Join(legacyDir, e.Name()))
		if err != nil {
			continue
		}
		var rec protocol.ChildRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		r.doc.Sessions[childID] = protocol.FromChildRecord(rec)
		changed = true
	}
	if changed {
		r.persistLocked()
	}
}

func (r *Registry) persistLocked() {
	if r.path == "" {
		return
	}
	if err := fsutil.AtomicWriteJSON(r.path, r.doc); err != nil {
		r.log.Warn("registry: write failed, mutation not durable", "path", r.path, "err", err)
	}
}

// Register inserts or re-registers a child record. It refuses if the
// orchestrator ID is empty or is itself a known child ID (nested
// orchestration guard, invariant 2). On re-registration, createdAt, the
// tracking fields, the last delivered message ID and the pending queue are
// always kept; title and orchestrator directory take the new record's
// non-zero values and otherwise keep their prior ones; a workspace
// directory, once assigned, is never replaced (invariants 5 and 6).
func (r *Registry) Register(rec protocol.ChildRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.OrchestratorSessionID == "" {
		return false
	}
	if _, nested := r.doc.Sessions[rec.OrchestratorSessionID]; nested {
		return false
	}

	if existing, ok := r.doc.Sessions[rec.ChildSessionID]; ok {
		merged := rec
		merged.CreatedAt = existing.Registration.CreatedAt
		merged.Tracking = existing.Tracking
		merged.LastDeliveredAssistantMessageID = existing.LastDeliveredAssistantMessageID
		merged.PendingForwardRequests = existing.PendingForwardRequests
		if merged.Title == "" {
			merged.Title = existing.Registration.Title
		}
		if merged.OrchestratorDirectory == "" {
			merged.OrchestratorDirectory = existing.Registration.OrchestratorDirectory
		}
		if existing.Registration.WorkspaceDirectory != "" || merged.Workspace.IsZero() {
			merged.Workspace = protocol.Workspace{
				Directory: existing.Registration.WorkspaceDirectory,
				Branch:    existing.Registration.WorkspaceBranch,
			}
		}
		r.doc.Sessions[rec.ChildSessionID] = protocol.FromChildRecord(merged)
	} else {
		if rec.PendingForwardRequests == nil {
			rec.PendingForwardRequests = []protocol.PendingForwardRequest{}
		}
		if rec.Tracking.State == "" {
			rec.Tracking.State = protocol.StateCreated
		}
		r.doc.Sessions[rec.ChildSessionID] = protocol.FromChildRecord(rec)
	}

	r.persistLocked()
	return true
}

// Get returns the full record for a child, if registered.
func (r *Registry) Get(childID string) (protocol.ChildRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.doc.Sessions[childID]
	if !ok {
		return protocol.ChildRecord{}, false
	}
	return sc.ToChildRecord(), true
}

// List returns every child registered under orchestratorID, sorted
// ascending by createdAt, with lastActivityAt derived per child.
func (r *Registry) List(orchestratorID string) []protocol.ChildMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(func(sc protocol.StoredChild) bool {
		return sc.Registration.OrchestratorSessionID == orchestratorID
	})
}

// All returns every child in the registry regardless of orchestrator,
// sorted ascending by createdAt — used by operator tooling that inspects
// the whole file rather than one orchestrator's view of it.
func (r *Registry) All() []protocol.ChildMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(func(protocol.StoredChild) bool { return true })
}

func (r *Registry) listLocked(include func(protocol.StoredChild) bool) []protocol.ChildMetadata {
	out := make([]protocol.ChildMetadata, 0)
	for id, sc := range r.doc.Sessions {
		if !include(sc) {
			continue
		}
		out = append(out, protocol.ChildMetadata{
			ChildSessionID:        id,
			OrchestratorSessionID: sc.Registration.OrchestratorSessionID,
			Title:                 sc.Registration.Title,
			CreatedAt:             sc.Registration.CreatedAt,
			State:                 sc.Tracking.State,
			LastActivityAt:        computeLastActivityAt(sc),
			Workspace: protocol.Workspace{
				Directory: sc.Registration.WorkspaceDirectory,
				Branch:    sc.Registration.WorkspaceBranch,
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// mutate runs fn against the child's stored record if present, persisting
// the result; it is the shared no-op-if-missing path every state-transition
// mutator below uses.
func (r *Registry) mutate(childID string, fn func(*protocol.StoredChild)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.doc.Sessions[childID]
	if !ok {
		return
	}
	fn(&sc)
	r.doc.Sessions[childID] = sc
	r.persistLocked()
}

// MarkPromptSent records a successful dispatch of a prompt.
func (r *Registry) MarkPromptSent(childID string, at int64, agent string) {
	r.mutate(childID, func(sc *protocol.StoredChild) {
		sc.Tracking.State = protocol.StatePromptSent
		sc.Tracking.LastPromptAt = at
		sc.Tracking.LastPromptAgent = agent
	})
}

// MarkResultReceived records a successful forwarded reply.
func (r *Registry) MarkResultReceived(childID string, at int64, excerpt string) {
	r.mutate(childID, func(sc *protocol.StoredChild) {
		sc.Tracking.State = protocol.StateResultReceived
		sc.Tracking.LastResultAt = at
		sc.Tracking.LastAssistantMessageExcerpt = excerpt
	})
}

// MarkError records a session.error event.
func (r *Registry) MarkError(childID string, at int64, excerpt string) {
	r.mutate(childID, func(sc *protocol.StoredChild) {
		sc.Tracking.State = protocol.StateError
		sc.Tracking.LastErrorAt = at
		sc.Tracking.LastAssistantMessageExcerpt = excerpt
	})
}

// RecordObservedAssistantMessage updates the "last seen assistant output"
// fields without altering tracking.state.
func (r *Registry) RecordObservedAssistantMessage(childID string, at int64, excerpt string) {
	r.mutate(childID, func(sc *protocol.StoredChild) {
		sc.Tracking.LastAssistantMessageAt = at
		sc.Tracking.LastAssistantMessageExcerpt = excerpt
	})
}

// EnqueuePendingForwardRequest appends a new pending request to the FIFO
// queue. It is a no-op if the child is not registered or the token is
// already present (invariant 3, token uniqueness).
func (r *Registry) EnqueuePendingForwardRequest(childID string, req protocol.PendingForwardRequest) {
	r.mutate(childID, func(sc *protocol.StoredChild) {
		for _, existing := range sc.PendingForwardRequests {
			if existing.ForwardToken == req.ForwardToken {
				return
			}
		}
		sc.PendingForwardRequests = append(sc.PendingForwardRequests, req)
	})
}

// PeekPendingForwardRequest returns the oldest pending request without
// removing it.
func (r *Registry) PeekPendingForwardRequest(childID string) (protocol.PendingForwardRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.doc.Sessions[childID]
	if !ok || len(sc.PendingForwardRequests) == 0 {
		return protocol.PendingForwardRequest{}, false
	}
	return sc.PendingForwardRequests[0], true
}

// ShiftPendingForwardRequest removes and returns the oldest pending request.
func (r *Registry) ShiftPendingForwardRequest(childID string) (protocol.PendingForwardRequest, bool) {
	var shifted protocol.PendingForwardRequest
	var ok bool
	r.mutate(childID, func(sc *protocol.StoredChild) {
		if len(sc.PendingForwardRequests) == 0 {
			return
		}
		shifted = sc.PendingForwardRequests[0]
		sc.PendingForwardRequests = sc.PendingForwardRequests[1:]
		ok = true
	})
	return shifted, ok
}

// RemovePendingForwardRequest removes exactly one entry matching token, if
// present. O(n) in the length of the queue.
func (r *Registry) RemovePendingForwardRequest(childID, token string) bool {
	removed := false
	r.mutate(childID, func(sc *protocol.StoredChild) {
		for i, req := range sc.PendingForwardRequests {
			if req.ForwardToken == token {
				sc.PendingForwardRequests = append(sc.PendingForwardRequests[:i:i], sc.PendingForwardRequests[i+1:]...)
				removed = true
				return
			}
		}
	})
	return removed
}

// HasPendingForwardRequest reports whether the child has at least one
// outstanding pending request.
func (r *Registry) HasPendingForwardRequest(childID string) bool {
	_, ok := r.PeekPendingForwardRequest(childID)
	return ok
}

// SetLastDeliveredAssistantMessageID is an idempotent write that overwrites
// any previously set value unconditionally; it does not compare IDs.
// Invariant 4 (monotonic advance) rests on the supervisor calling this only
// after the resolver has picked a newer message, so here the last write wins.
func (r *Registry) SetLastDeliveredAssistantMessageID(childID, id string) {
	r.mutate(childID, func(sc *protocol.StoredChild) {
		sc.LastDeliveredAssistantMessageID = id
	})
}

// ComputeLastActivityAt returns the max of createdAt, lastPromptAt,
// lastResultAt, lastErrorAt, lastAssistantMessageAt for a registered child.
func (r *Registry) ComputeLastActivityAt(childID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.doc.Sessions[childID]
	if !ok {
		return 0
	}
	return computeLastActivityAt(sc)
}

func computeLastActivityAt(sc protocol.StoredChild) int64 {
	max := sc.Registration.CreatedAt
	for _, v := range []int64{sc.Tracking.LastPromptAt, sc.Tracking.LastResultAt, sc.Tracking.LastErrorAt, sc.Tracking.LastAssistantMessageAt} {
		if v > max {
			max = v
		}
	}
	return max
}

// GetOrchestratorSessionID returns the orchestrator owning a child.
func (r *Registry) GetOrchestratorSessionID(childID string) (string, bool) {
	rec, ok := r.Get(childID)
	return rec.OrchestratorSessionID, ok
}

// GetOrchestratorDirectory returns the orchestrator's working directory.
func (r *Registry) GetOrchestratorDirectory(childID string) (string, bool) {
	rec, ok := r.Get(childID)
	return rec.OrchestratorDirectory, ok
}

// GetChildWorkspaceDirectory returns the child's workspace directory.
func (r *Registry) GetChildWorkspaceDirectory(childID string) (string, bool) {
	rec, ok := r.Get(childID)
	return rec.Workspace.Directory, ok
}

// GetLastPromptAgent returns the agent name used for the child's most
// recent prompt.
func (r *Registry) GetLastPromptAgent(childID string) (string, bool) {
	rec, ok := r.Get(childID)
	return rec.Tracking.LastPromptAgent, ok
}

// IsTrackedChildSession reports whether id is a known child session.
func (r *Registry) IsTrackedChildSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.doc.Sessions[id]
	return ok
}

// IsNestedOrchestrator is an alias for IsTrackedChildSession: nested
// orchestration is rejected because every known child ID is, by
// definition, not eligible to itself own children.
func (r *Registry) IsNestedOrchestrator(id string) bool {
	return r.IsTrackedChildSession(id)
}
