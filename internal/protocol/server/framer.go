package server

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrFrameTooLong is returned by Framer.Next after an oversized frame has
// been discarded. The stream stays usable.
var ErrFrameTooLong = errors.New("frame exceeds maximum size")

// Framer splits a byte stream into frames terminated by \n, \r or \r\n.
// Empty frames are skipped.
type Framer struct {
	r   *bufio.Reader
	max int
	buf []byte
}

func NewFramer(r io.Reader, maxFrameBytes int) *Framer {
	return &Framer{
		r:   bufio.NewReader(r),
		max: maxFrameBytes,
		buf: make([]byte, 0, 256),
	}
}

// Next returns the next frame. An unterminated frame at end of stream is
// returned before io.EOF. On ErrFrameTooLong the frame's bytes up to its
// terminator have been consumed and Next may be called again; any other
// error ends the stream.
func (f *Framer) Next() ([]byte, error) {
	f.buf = f.buf[:0]
	overflow := false

	for {
		b, err := f.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if overflow {
					return nil, ErrFrameTooLong
				}
				if len(f.buf) > 0 {
					return f.frame(), nil
				}
			}
			return nil, err
		}

		if b == '\n' || b == '\r' {
			if overflow {
				return nil, ErrFrameTooLong
			}
			if len(f.buf) == 0 {
				continue
			}
			return f.frame(), nil
		}

		if overflow {
			continue
		}
		if len(f.buf) >= f.max {
			overflow = true
			f.buf = f.buf[:0]
			continue
		}
		f.buf = append(f.buf, b)
	}
}

func (f *Framer) frame() []byte {
	out := make([]byte, len(f.buf))
	copy(out, f.buf)
	f.buf = f.buf[:0]
	return out
}

// SplitFrames splits one datagram into its non-empty frames. Frames longer
// than maxFrameBytes are dropped and counted in tooLong.
func SplitFrames(datagram []byte, maxFrameBytes int) (frames [][]byte, tooLong int) {
	for _, line := range bytes.FieldsFunc(datagram, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if len(line) > maxFrameBytes {
			tooLong++
			continue
		}
		frames = append(frames, line)
	}
	return frames, tooLong
}
