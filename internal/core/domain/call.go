package domain

type CallRole string

const (
	RoleNone    CallRole = ""
	RoleCreator CallRole = "creator"
	RoleJoiner  CallRole = "joiner"
)

// Side returns the candidate side a participant in this role writes to.
func (r CallRole) Side() Side {
	if r == RoleJoiner {
		return SideCallee
	}
	return SideCaller
}

type CallState string

const (
	StateIdle CallState = "idle"

	// creator
	StateRoomCreated    CallState = "room_created"
	StateOfferPublished CallState = "offer_published"
	StateAwaitingAnswer CallState = "awaiting_answer"

	// joiner
	StateValidating      CallState = "validating"
	StateOfferApplied    CallState = "offer_applied"
	StateAnswerPublished CallState = "answer_published"

	StateConnected CallState = "connected"
)
