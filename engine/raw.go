package engine

// rawCapture records the chunks spanning an in-flight raw match. Chunks
// are held by reference, not copied, so the extra memory is bounded by
// the size of the match in flight. Copying happens once, at assembly.
type rawCapture struct {
	active bool
	start  int64

	// chunks[i] starts at logical offset bases[i]. The first chunk is
	// the one the match starts in.
	chunks [][]byte
	bases  []int64
}

func (c *rawCapture) begin(start int64, chunk []byte, base int64) {
	c.active = true
	c.start = start
	c.chunks = append(c.chunks[:0], chunk)
	c.bases = append(c.bases[:0], base)
}

func (c *rawCapture) add(chunk []byte, base int64) {
	c.chunks = append(c.chunks, chunk)
	c.bases = append(c.bases, base)
}

func (c *rawCapture) reset() {
	c.active = false
	c.chunks = c.chunks[:0]
	c.bases = c.bases[:0]
}

// assemble builds the contiguous byte span [c.start, end) from the
// recorded chunks: the first chunk contributes its tail, intermediates
// their whole content, the last its head.
func (c *rawCapture) assemble(end int64) []byte {
	out := make([]byte, 0, end-c.start)
	for i, chunk := range c.chunks {
		base := c.bases[i]
		from := c.start - base
		if from < 0 {
			from = 0
		}
		to := end - base
		if to > int64(len(chunk)) {
			to = int64(len(chunk))
		}
		if to > from {
			out = append(out, chunk[from:to]...)
		}
	}
	return out
}
