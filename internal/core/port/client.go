package port

import "github.com/Wyydra/duet/internal/core/domain"

// Client is one live signaling connection as seen by the presence service.
// Send must not block.
type Client interface {
	ID() domain.ConnectionID
	Send(evt domain.Event) error
	Close() error
}
