package vault

import (
	"bytes"
	"io"
	"sync"
)

// Download is the result of a successful retrieval. Content streams the
// decrypted payload; the one-time deletion (or the downloaded-flag write)
// is committed only once the stream has been fully consumed and closed.
// Closing early releases the artifact without committing, so an aborted
// transfer never destroys content that was not delivered.
type Download struct {
	Name    string
	Size    int64
	Content io.ReadCloser
}

// completionReader calls done(true) when the payload was read to EOF before
// Close, and done(false) otherwise. done runs exactly once.
type completionReader struct {
	r       *bytes.Reader
	sawEOF  bool
	done    func(complete bool)
	closeMu sync.Mutex
	closed  bool
}

func newCompletionReader(payload []byte, done func(complete bool)) *completionReader {
	return &completionReader{r: bytes.NewReader(payload), done: done}
}

func (c *completionReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.sawEOF = true
	}
	return n, err
}

func (c *completionReader) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	// A zero-length remainder counts as fully read even if the caller
	// never observed io.EOF explicitly.
	c.done(c.sawEOF || c.r.Len() == 0)
	return nil
}
