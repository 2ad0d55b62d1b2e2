// Package chunk defines the unit of decoded data moved between an engine
// and the queues: an owned byte buffer plus a read cursor.
package chunk

import (
	"fmt"

	"github.com/xaionaro-go/avbridge/pool"
)

// Chunk is exclusively owned by whoever holds the pointer. Queues move
// chunks; they never share them.
type Chunk struct {
	Buffer []byte

	// Cursor is the amount of bytes already consumed from Buffer.
	Cursor int

	// PTS is the engine-reported timestamp, if any; informational only.
	PTS int64
}

var Pool = pool.NewPool(
	func() *Chunk { return &Chunk{} },
	func(c *Chunk) {
		c.Buffer = c.Buffer[:0]
		c.Cursor = 0
		c.PTS = 0
	},
)

// Get returns a chunk with a buffer of exactly size bytes. The content is
// not zeroed.
func Get(size int) *Chunk {
	c := Pool.Get()
	if cap(c.Buffer) < size {
		c.Buffer = make([]byte, size)
	}
	c.Buffer = c.Buffer[:size]
	return c
}

// FromBytes wraps b without copying; the caller gives up ownership of b.
func FromBytes(b []byte) *Chunk {
	c := Pool.Get()
	c.Buffer = b
	return c
}

// Put recycles the chunk; the caller must not touch it afterwards.
func Put(c *Chunk) {
	Pool.Put(c)
}

func (c *Chunk) Len() int {
	return len(c.Buffer)
}

// Remaining is the amount of bytes not consumed yet.
func (c *Chunk) Remaining() int {
	return len(c.Buffer) - c.Cursor
}

func (c *Chunk) IsDrained() bool {
	return c.Cursor >= len(c.Buffer)
}

// ReadInto copies unconsumed bytes into dst and advances the cursor.
func (c *Chunk) ReadInto(dst []byte) int {
	n := copy(dst, c.Buffer[c.Cursor:])
	c.Cursor += n
	return n
}

// Clone returns an independent copy, including the cursor.
func (c *Chunk) Clone() *Chunk {
	dup := Get(len(c.Buffer))
	copy(dup.Buffer, c.Buffer)
	dup.Cursor = c.Cursor
	dup.PTS = c.PTS
	return dup
}

func (c *Chunk) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Chunk(len:%d, cursor:%d, pts:%d)", len(c.Buffer), c.Cursor, c.PTS)
}
