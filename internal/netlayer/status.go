package netlayer

import (
	"fmt"

	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

// StatusKind is the connection status recorded for the protocol engine.
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusConnected
	StatusDisconnected
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status pairs a StatusKind with the error code that caused it.
type Status struct {
	Kind StatusKind
	Code wserr.Code
}

func (s Status) String() string {
	if s.Code == 0 {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s(%d %s)", s.Kind, uint8(s.Code), s.Code)
}

// StatusSink receives status changes of connections.
type StatusSink interface {
	SetStatus(uri string, status Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(uri string, status Status)

// SetStatus calls f(uri, status).
func (f StatusFunc) SetStatus(uri string, status Status) {
	f(uri, status)
}

func statusFromError(err error) Status {
	code := wserr.CodeOf(err)
	switch code {
	case 0:
		return Status{Kind: StatusDisconnected}
	case wserr.CodeTCPClosedByLocal, wserr.CodeTCPClosedOther:
		return Status{Kind: StatusDisconnected, Code: code}
	default:
		return Status{Kind: StatusError, Code: code}
	}
}
