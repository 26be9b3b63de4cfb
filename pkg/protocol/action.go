package protocol

import (
	"encoding/json"
	"time"
)

// ActionKind discriminates what a proposed action will do to the remote
// ticket when confirmed.
type ActionKind string

const (
	ActionSendReply    ActionKind = "send_reply"
	ActionUpdateStatus ActionKind = "update_status"
	ActionAddTags      ActionKind = "add_tags"
	ActionEscalate     ActionKind = "escalate"
	ActionOther        ActionKind = "other"
)

// Action is an AI-proposed operation against a ticket that a human must
// confirm before it is applied. An action id is unique within its ticket's
// pending queue. Payload holds kind-specific data and is opaque to the
// queue store.
type Action struct {
	ID        string          `json:"id"`
	Kind      ActionKind      `json:"kind"`
	Label     string          `json:"label"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Confirmed bool            `json:"confirmed"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReplyPayload is the payload for send_reply actions. Status, when set,
// is applied to the ticket together with the reply.
type ReplyPayload struct {
	Text   string `json:"text"`
	Status string `json:"status,omitempty"`
}

// StatusPayload is the payload for update_status actions.
type StatusPayload struct {
	Status string `json:"status"`
}

// TagsPayload is the payload for add_tags actions. Tags are merged into
// the remote set; existing tags are never removed.
type TagsPayload struct {
	Tags []string `json:"tags"`
}

// EscalatePayload is the payload for escalate actions. The escalation is
// recorded as an internal note on the ticket, invisible to the customer.
type EscalatePayload struct {
	Reason string `json:"reason"`
	Target string `json:"target,omitempty"`
}
