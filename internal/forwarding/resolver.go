// Package forwarding implements the deterministic algorithm that, given a
// child session's raw message history and an outstanding forward request,
// identifies the single assistant reply that fulfils it.
package forwarding

import (
	"strings"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/protocol"
)

// ForwardableAssistantMessage is the resolver's pick: the assistant message
// that fulfils a pending forward request, with the token line already
// stripped out of its text.
type ForwardableAssistantMessage struct {
	AssistantMessageID string
	CleanedText        string
}

// Normalize projects raw host messages down to the fields the resolver
// needs, discarding any message with no ID.
func Normalize(raw []protocol.RawMessage) []protocol.NormalizedMessage {
	out := make([]protocol.NormalizedMessage, 0, len(raw))
	for _, m := range raw {
		if m.Info.ID == "" {
			continue
		}
		out = append(out, protocol.NormalizedMessage{
			Role:  m.Info.Role,
			ID:    m.Info.ID,
			Parts: m.Parts,
		})
	}
	return out
}

// extractText concatenates every non-ignored text part with "\n".
func extractText(parts []protocol.MessagePart) string {
	var sb strings.Builder
	first := true
	for _, p := range parts {
		if p.Type != "text" || p.Ignored {
			continue
		}
		if !first {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
		first = false
	}
	return sb.String()
}

func tokenLine(token string) string {
	return protocol.ForwardTokenPrefix + ": " + token
}

// stripTokenLine removes every line that is an exact match (after
// trimming) of the token line, leaving other lines — including ones that
// merely contain the token as a substring — untouched.
func stripTokenLine(text, token string) (cleaned string, found bool) {
	want := tokenLine(token)
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == want {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), found
}

// Resolve implements the deterministic scan described in spec §4.C: find
// the index to start scanning from, then scan forward remembering the last
// assistant message whose text contains the exact token line (and whose
// text, after stripping that line, is still non-empty). Returns false if no
// message matches.
func Resolve(messages []protocol.NormalizedMessage, req protocol.PendingForwardRequest) (ForwardableAssistantMessage, bool) {
	startIndex := resolveStartIndex(messages, req)

	var best ForwardableAssistantMessage
	found := false

	for i := startIndex; i < len(messages); i++ {
		m := messages[i]
		if m.Role != "assistant" {
			continue
		}
		text := extractText(m.Parts)
		cleaned, hasToken := stripTokenLine(text, req.ForwardToken)
		if !hasToken || cleaned == "" {
			continue
		}
		best = ForwardableAssistantMessage{AssistantMessageID: m.ID, CleanedText: cleaned}
		found = true
	}

	return best, found
}

func resolveStartIndex(messages []protocol.NormalizedMessage, req protocol.PendingForwardRequest) int {
	if req.AfterMessageCount != nil && *req.AfterMessageCount <= len(messages) {
		return *req.AfterMessageCount
	}
	if req.AfterAssistantMessageID != "" {
		for i, m := range messages {
			if m.ID == req.AfterAssistantMessageID {
				return i + 1
			}
		}
	}
	return 0
}

// CreateTriggerMarker snapshots "where are we now" in a child's message
// list before a new prompt is sent, so the resolver knows where to start
// scanning once the child replies.
func CreateTriggerMarker(messages []protocol.NormalizedMessage) protocol.PendingForwardRequest {
	count := len(messages)
	marker := protocol.PendingForwardRequest{AfterMessageCount: &count}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			marker.AfterAssistantMessageID = messages[i].ID
			break
		}
	}
	return marker
}
