package net

import "errors"

var (
	ErrNoEngine     = errors.New("no engine configured")
	ErrNoUpstream   = errors.New("no upstream configured")
	ErrUpstream     = errors.New("upstream request failed")
	ErrUpstreamURL  = errors.New("invalid upstream URL")
	ErrUpgrade      = errors.New("websocket upgrade failed")
	ErrDialUpstream = errors.New("websocket upstream dial failed")
)
