package console

import (
	"bytes"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// MakeRaw puts f into raw mode so keys arrive without Enter. It returns a restore
// function and false when f is not a terminal, in which case input stays line buffered.
func MakeRaw(f *os.File) (restore func(), raw bool) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, false
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, false
	}
	return func() { _ = term.Restore(fd, state) }, true
}

// CRLFWriter translates "\n" to "\r\n", which a terminal in raw mode needs to return
// the cursor to the first column.
type CRLFWriter struct {
	mu sync.Mutex
	W  io.Writer
}

func (c *CRLFWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes.IndexByte(p, '\n') < 0 {
		return c.W.Write(p)
	}
	var buf bytes.Buffer
	buf.Grow(len(p) + 8)
	for i, b := range p {
		if b == '\n' && (i == 0 || p[i-1] != '\r') {
			buf.WriteByte('\r')
		}
		buf.WriteByte(b)
	}
	if _, err := c.W.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
