package domain

import "fmt"

type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// SessionDescription is an opaque offer or answer blob.
type SessionDescription struct {
	Type SDPType `json:"type" msgpack:"type"`
	SDP  string  `json:"sdp" msgpack:"sdp"`
}

func (d SessionDescription) Validate(want SDPType) error {
	if d.Type != want {
		return fmt.Errorf("session description type %q, want %q", d.Type, want)
	}
	if d.SDP == "" {
		return fmt.Errorf("empty %s sdp", want)
	}
	return nil
}

// Candidate is a network candidate in the shape browsers produce with
// RTCIceCandidate.toJSON().
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// Key identifies a candidate for duplicate detection.
func (c Candidate) Key() string {
	mid := ""
	if c.SDPMid != nil {
		mid = *c.SDPMid
	}
	idx := -1
	if c.SDPMLineIndex != nil {
		idx = int(*c.SDPMLineIndex)
	}
	return fmt.Sprintf("%s|%s|%d", c.Candidate, mid, idx)
}

// RemoteTrack describes media the peer contributed to the session.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     string
}
