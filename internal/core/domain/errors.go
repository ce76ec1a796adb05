package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadySet        = errors.New("already set")
	ErrInvalidState      = errors.New("invalid negotiation state")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrTargetUnreachable = errors.New("target not connected")
	ErrNotRoomMember     = errors.New("not a member of the room")

	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomAlreadyAnswered = errors.New("room already answered")
	ErrRoomNotReady        = errors.New("room has no offer yet")
	ErrCallActive          = errors.New("a call is already active")
)
