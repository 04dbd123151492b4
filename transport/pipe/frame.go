package pipe

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxFrameSize bounds a single frame in both directions.
const MaxFrameSize = 16 << 20

const headerSize = 4

var ErrFrameTooLarge = errors.New("frame exceeds 16 MiB")

func writeAll(dst io.Writer, data []byte) error {
	nw := 0
	for nw < len(data) {
		w, err := dst.Write(data[nw:])
		if err != nil {
			return err
		}
		nw += w
	}
	return nil
}

// WriteFrame writes data prefixed with its length as a little endian uint32.
func WriteFrame(dst io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, headerSize+len(data))
	binary.LittleEndian.PutUint32(buf[:headerSize], uint32(len(data)))
	copy(buf[headerSize:], data)
	return writeAll(dst, buf)
}

// ReadFrame reads one frame written by WriteFrame, reusing buf when it is
// large enough.
func ReadFrame(src io.Reader, buf []byte) ([]byte, error) {
	var size [headerSize]byte
	if _, err := io.ReadFull(src, size[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(size[:]))
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
