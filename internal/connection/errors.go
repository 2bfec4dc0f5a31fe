package connection

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned to Connect callers whose dial was abandoned by Disconnect.
var ErrDisconnected = errors.New("disconnected while connecting")

// ConnectionError reports a transport failure before the connection opened.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
