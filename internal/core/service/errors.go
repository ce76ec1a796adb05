package service

import (
	"fmt"

	"github.com/Wyydra/duet/internal/core/domain"
)

// CallError reports which call operation failed and on which room. Match the
// cause with errors.Is against the domain sentinels.
type CallError struct {
	Op     string
	RoomID domain.RoomID
	Err    error
}

func (e *CallError) Error() string {
	if e.RoomID != "" {
		return fmt.Sprintf("%s room %s: %v", e.Op, e.RoomID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}
