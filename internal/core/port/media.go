package port

// LocalMedia is the participant's capture, handed to every negotiator it
// creates and stopped on hangup.
type LocalMedia interface {
	Tracks() []LocalTrack
	Stop() error
}
