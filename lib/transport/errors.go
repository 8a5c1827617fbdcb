package transport

import "github.com/samber/oops"

var (
	// ErrTransportClosed is returned by SendRaw after Close.
	ErrTransportClosed = oops.Errorf("transport is closed")
	// ErrInvalidAddress is returned for endpoint strings the transport
	// cannot resolve.
	ErrInvalidAddress = oops.Errorf("invalid transport address")
)
