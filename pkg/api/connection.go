package api

import (
	"net/url"
)

// MessageType mirrors the WebSocket opcode of a data frame.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

// Message is one data frame travelling through an intercepted connection.
type Message struct {
	Type MessageType
	Data []byte

	prevented bool
}

// PreventDefault stops the message from being forwarded to the other peer.
func (m *Message) PreventDefault() { m.prevented = true }

// DefaultPrevented reports whether a listener called PreventDefault.
func (m *Message) DefaultPrevented() bool { return m.prevented }

// MessageListener observes messages on one side of a connection.
type MessageListener func(msg *Message)

// WebSocketClient is the intercepted client side of a connection.
type WebSocketClient interface {
	ID() string
	URL() *url.URL
	Send(mt MessageType, data []byte) error
	Close(code int, reason string) error
	OnMessage(fn MessageListener)
}

// WebSocketServer is the original server the client meant to reach. It
// is not connected until Connect is called.
type WebSocketServer interface {
	Connect() error
	Send(mt MessageType, data []byte) error
	Close(code int, reason string) error
	OnMessage(fn MessageListener)
}

// Connection is one intercepted WebSocket connection.
type Connection struct {
	Client    WebSocketClient
	Server    WebSocketServer
	Protocols []string
}
