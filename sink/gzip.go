package sink

import (
	"compress/gzip"
	"io"
)

// A GzipSink compresses the textual output of a WriterSink. Drain
// flushes and closes the compressor, so the sink must not be reused
// after the run that drained it.
type GzipSink struct {
	*WriterSink
	gz *gzip.Writer
}

// NewGzip returns a sink writing gzip-compressed output to w.
func NewGzip(w io.Writer, opts ...Option) *GzipSink {
	gz := gzip.NewWriter(w)
	return &GzipSink{
		WriterSink: NewWriter(gz, opts...),
		gz:         gz,
	}
}

func (s *GzipSink) Drain() {
	if err := s.gz.Close(); err != nil && s.err == nil {
		s.err = err
	}
}
