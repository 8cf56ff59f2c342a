package conversation

import (
	"time"
)

// State is the single in-flight interaction context for one owner
// phone. There is exactly one state per phone, not one per review: the
// protocol offers the owner at most one pending item at a time.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingApproval     State = "awaiting_approval"
	StateAwaitingCustomReply  State = "awaiting_custom_reply"
	StateAwaitingCancelConfirm State = "awaiting_cancel_confirm"
)

// CommandType is the parsed intent of an inbound message.
type CommandType string

const (
	CmdApprove       CommandType = "APPROVE"
	CmdEdit          CommandType = "EDIT"
	CmdIgnore        CommandType = "IGNORE"
	CmdPause         CommandType = "PAUSE"
	CmdResume        CommandType = "RESUME"
	CmdStatus        CommandType = "STATUS"
	CmdBilling       CommandType = "BILLING"
	CmdCancel        CommandType = "CANCEL"
	CmdHelp          CommandType = "HELP"
	CmdStop          CommandType = "STOP"
	CmdCustomReply   CommandType = "CUSTOM_REPLY"
	CmdCancelConfirm CommandType = "CANCEL_CONFIRM"
	CmdCancelDeny    CommandType = "CANCEL_DENY"
	CmdUnknown       CommandType = "UNKNOWN"
)

// Command is a parsed inbound message. Payload carries the original,
// non-uppercased text for CUSTOM_REPLY and is empty otherwise.
type Command struct {
	Type    CommandType
	Payload string
}

// Conversation is the persisted per-phone state row.
type Conversation struct {
	Phone     string    `json:"phone"`
	State     State     `json:"state"`
	ReviewID  string    `json:"review_id,omitempty"` // item currently in flight
	UpdatedAt time.Time `json:"updated_at"`
}
