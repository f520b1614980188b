package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter fans writes out to every underlying writer, so log lines
// can reach stdout and the rotating file at the same time. A failing writer
// does not stop the others.
type CombinedWriter struct {
	writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{writers: writers}
}

// Write reports the smallest accepted byte count, a short write on any
// target counts as a short write of the whole.
func (cw *CombinedWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	for _, w := range cw.writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Append(err, werr)
		}
		if written < n {
			n = written
		}
	}
	return n, err
}
