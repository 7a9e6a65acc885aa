package wire

import (
	"io"

	"github.com/klauspost/compress/s2"
)

// compressedConn wraps a byte-stream connection with streaming s2
// compression, adapted from the teacher's shared.go compressedConn
// (which used snappy); the framing above it is unaware of the
// substitution since both sides implement io.ReadWriteCloser.
type compressedConn struct {
	r *s2.Reader
	w *s2.Writer
	c io.Closer
}

// Compress wraps rwc so every byte written and read passes through s2
// compression, used when the Hello handshake negotiates
// HelloWantCompression.
func Compress(rwc io.ReadWriteCloser) io.ReadWriteCloser {
	return &compressedConn{
		r: s2.NewReader(rwc),
		w: s2.NewWriter(rwc),
		c: rwc,
	}
}

func (c *compressedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *compressedConn) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

func (c *compressedConn) Close() error {
	_ = c.w.Close()
	return c.c.Close()
}
