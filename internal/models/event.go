package models

// TagHandshake is emitted once per newly captured handshake artifact.
const TagHandshake = "wifi.client.handshake"

// Event is a tagged record pushed to the single event consumer.
type Event struct {
	Tag  string         `json:"tag"`
	Data map[string]any `json:"data"`
}

// NewHandshakeEvent builds the wifi.client.handshake event for rec.
func NewHandshakeEvent(rec HandshakeRecord) Event {
	return Event{
		Tag: TagHandshake,
		Data: map[string]any{
			"file":    rec.File,
			"station": rec.Station,
			"ap":      rec.AP,
			"ap_name": rec.APName,
		},
	}
}

// BackendState is the lifecycle state of the recon backend.
type BackendState int

const (
	BackendStopped BackendState = iota
	BackendStarting
	BackendRunning
	BackendStopping
)

func (s BackendState) String() string {
	switch s {
	case BackendStarting:
		return "starting"
	case BackendRunning:
		return "running"
	case BackendStopping:
		return "stopping"
	default:
		return "stopped"
	}
}
