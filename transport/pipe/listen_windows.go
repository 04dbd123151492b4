//go:build windows

package pipe

import (
	"errors"
	"net"

	"github.com/Microsoft/go-winio"
)

const DefaultPath = `\\.\pipe\__SensorRelay_Conn`

const sidInteractiveUser = `D:(A;;GWGR;;;IU)`

// Listen opens a message mode named pipe readable by interactive users.
func Listen(path string) (net.Listener, error) {
	return winio.ListenPipe(path, &winio.PipeConfig{
		MessageMode:        true,
		SecurityDescriptor: sidInteractiveUser,
	})
}

func isListenerClosed(err error) bool {
	return errors.Is(err, winio.ErrPipeListenerClosed) || errors.Is(err, net.ErrClosed)
}
