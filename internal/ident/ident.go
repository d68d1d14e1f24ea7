// ABOUTME: Monotonic 128-bit identifier generator used for message and entity IDs
// ABOUTME: UUIDv7 layout with a 74-bit payload that increments under clock stall or regression

package ident

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// rand_a is 12 bits, rand_b is 62 bits; together the 74-bit payload.
	randHiBits = 12
	randLoBits = 62
	randHiMax  = uint16(1<<randHiBits) - 1
	randLoMax  = uint64(1<<randLoBits) - 1
)

// Generator produces time-ordered, strictly increasing 128-bit identifiers.
// IDs follow the UUIDv7 bit layout: 48-bit millisecond timestamp, version and
// variant tag bits, and a 74-bit random payload. Within one process the
// sequence is strictly monotonic even if the wall clock stalls or moves
// backward: a non-advancing clock increments the previous payload, and
// payload overflow carries one millisecond into the timestamp instead of
// wrapping.
//
// A Generator is safe for concurrent use. Construct one per process and
// inject it; tests can instantiate independent generators with fixed clocks.
type Generator struct {
	mu         sync.Mutex
	lastMillis int64
	randHi     uint16 // 12-bit rand_a field
	randLo     uint64 // 62-bit rand_b field

	now     func() time.Time
	entropy io.Reader
}

// New returns a Generator backed by the system clock and crypto/rand.
func New() *Generator {
	return &Generator{
		now:     time.Now,
		entropy: rand.Reader,
	}
}

// NewWithClock returns a Generator with an injected clock and entropy source.
// A nil entropy falls back to crypto/rand.
func NewWithClock(now func() time.Time, entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{now: now, entropy: entropy}
}

// Next returns the next identifier in the sequence.
func (g *Generator) Next() (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	switch {
	case millis > g.lastMillis:
		g.lastMillis = millis
		if err := g.redraw(); err != nil {
			return uuid.Nil, err
		}
	default:
		// Clock stalled or went backward: keep the stored timestamp and
		// bump the payload so the stream never goes backward.
		g.randLo++
		if g.randLo > randLoMax {
			g.randLo = 0
			g.randHi++
			if g.randHi > randHiMax {
				// Payload exhausted within this millisecond; carry into
				// the timestamp rather than wrapping.
				g.lastMillis++
				if err := g.redraw(); err != nil {
					return uuid.Nil, err
				}
			}
		}
	}

	return g.assemble(), nil
}

// NextString returns the next identifier rendered as 32 lowercase hex
// characters, the canonical storage form.
func (g *Generator) NextString() (string, error) {
	id, err := g.Next()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}

// redraw replaces the payload with fresh randomness. Caller holds the lock.
func (g *Generator) redraw() error {
	var buf [10]byte
	if _, err := io.ReadFull(g.entropy, buf[:]); err != nil {
		return fmt.Errorf("reading entropy: %w", err)
	}
	g.randHi = binary.BigEndian.Uint16(buf[0:2]) & randHiMax
	g.randLo = binary.BigEndian.Uint64(buf[2:10]) & randLoMax
	return nil
}

// assemble packs the stored state into the UUIDv7 byte layout. Caller holds
// the lock.
func (g *Generator) assemble() uuid.UUID {
	var b [16]byte

	// 48-bit big-endian millisecond timestamp.
	b[0] = byte(g.lastMillis >> 40)
	b[1] = byte(g.lastMillis >> 32)
	b[2] = byte(g.lastMillis >> 24)
	b[3] = byte(g.lastMillis >> 16)
	b[4] = byte(g.lastMillis >> 8)
	b[5] = byte(g.lastMillis)

	// Version 7 nibble + 12-bit rand_a.
	b[6] = 0x70 | byte(g.randHi>>8)
	b[7] = byte(g.randHi)

	// RFC 4122 variant bits + 62-bit rand_b.
	b[8] = 0x80 | byte(g.randLo>>56)&0x3f
	b[9] = byte(g.randLo >> 48)
	b[10] = byte(g.randLo >> 40)
	b[11] = byte(g.randLo >> 32)
	b[12] = byte(g.randLo >> 24)
	b[13] = byte(g.randLo >> 16)
	b[14] = byte(g.randLo >> 8)
	b[15] = byte(g.randLo)

	id, _ := uuid.FromBytes(b[:])
	return id
}

// Millis extracts the embedded millisecond timestamp from an identifier.
func Millis(id uuid.UUID) int64 {
	return int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
}

// Compare orders two identifiers as 128-bit big-endian integers. It returns
// -1, 0, or 1 in the manner of bytes.Compare.
func Compare(a, b uuid.UUID) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}
