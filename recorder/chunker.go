package recorder

import (
	"sync/atomic"

	"voxchat/audio"
	"voxchat/log"
)

// chunker regroups backend callbacks of arbitrary length into fixed-size
// chunks. write runs on the audio thread and never blocks.
type chunker struct {
	size    int
	pending []int16
	out     chan<- []int16
	dropped atomic.Int64
}

func newChunker(size int, out chan<- []int16) *chunker {
	return &chunker{size: size, out: out, pending: make([]int16, 0, size)}
}

func (c *chunker) write(data []byte, _ uint32) {
	samples := audio.BytesToInt16(data)
	for len(samples) > 0 {
		n := min(c.size-len(c.pending), len(samples))
		c.pending = append(c.pending, samples[:n]...)
		samples = samples[n:]
		if len(c.pending) < c.size {
			continue
		}
		select {
		case c.out <- c.pending:
		default:
			if c.dropped.Add(1)%50 == 1 {
				log.Warnf("recorder: session loop behind, dropped %d chunks", c.dropped.Load())
			}
		}
		c.pending = make([]int16, 0, c.size)
	}
}
