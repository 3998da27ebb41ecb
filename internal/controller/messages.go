package controller

import "github.com/joss/taskpilot/internal/plan"

// MessageType identifies a control message.
type MessageType int

const (
	// MsgStart installs a validated plan and begins executing it.
	MsgStart MessageType = iota
	// MsgPause suspends scheduling of new tasks.
	MsgPause
	// MsgResume continues a paused plan.
	MsgResume
	// MsgCancel terminates the current plan.
	MsgCancel
	// MsgUserRequest queues new user input and triggers regeneration.
	MsgUserRequest
	// MsgModify replaces the current plan wholesale.
	MsgModify
	// msgRequestDone is internal: a regeneration finished (with or
	// without a candidate plan) and its request leaves the queue.
	msgRequestDone
)

func (t MessageType) String() string {
	switch t {
	case MsgStart:
		return "start_plan"
	case MsgPause:
		return "pause_plan"
	case MsgResume:
		return "resume_plan"
	case MsgCancel:
		return "cancel_plan"
	case MsgUserRequest:
		return "user_request"
	case MsgModify:
		return "modify_plan"
	case msgRequestDone:
		return "request_done"
	default:
		return "unknown"
	}
}

// Message is one instruction to the controller. Producers never block:
// Send fails fast when the mailbox is full.
type Message struct {
	Type MessageType

	// Plan carries the payload for MsgStart and MsgModify.
	Plan *plan.Plan

	// Text carries the payload for MsgUserRequest, and for MsgModify
	// and msgRequestDone names the user request being drained.
	Text string
}
