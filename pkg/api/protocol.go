package api

// Protocol tags the kind of traffic carried by an intercepted unit.
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "websocket"
)

func (p Protocol) String() string {
	return string(p)
}
