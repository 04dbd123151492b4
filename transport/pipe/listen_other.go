//go:build !windows

package pipe

import (
	"errors"
	"io/fs"
	"net"
	"os"
)

const DefaultPath = "/tmp/sensor-relay.sock"

// Listen opens a unix domain socket at path, replacing a stale socket file
// left behind by a previous run.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return net.Listen("unix", path)
}

func isListenerClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
