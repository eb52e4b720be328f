// Package version implements the Version Allocator & Hasher (spec.md §4,
// component 3): generation and base64 encoding of version identifiers.
// Item shape validation lives in item.Item.Validate.
package version

import (
	"crypto/rand"
	"encoding/base64"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Netsend/persdb/internal/plog"
)

// DefaultSize is the default version size in bytes (spec.md §6: "Size of
// v is controlled by mergeTree.vSize (default 3 bytes -> 24 bits of
// randomness, base64-encoded as 4 chars)").
const DefaultSize = 3

// collisionWarnThreshold is the number of identifiers allocated by one
// Allocator (across all ids and trees that share it) at which it logs a
// one-time warning about the birthday bound
// implied by its configured size (spec.md §9 Open Question: "vSize
// defaulted to 3 bytes collides at ~2^12 items for a given id; surface a
// configuration warning").
func collisionWarnThreshold(size int) uint64 {
	// Birthday-bound approximation: sqrt(256^size).
	bits := uint(size) * 8
	return uint64(1) << (bits / 2)
}

// Allocator generates version identifiers of a fixed size.
type Allocator struct {
	size      int
	log       *zap.Logger
	warnAt    uint64
	warned    atomic.Bool
	allocated atomic.Uint64
}

// New constructs an Allocator producing size-byte version identifiers. A
// size <= 0 falls back to DefaultSize.
func New(size int, log *zap.Logger) *Allocator {
	if size <= 0 {
		size = DefaultSize
	}
	log = plog.NopIfNil(log)
	return &Allocator{size: size, log: log, warnAt: collisionWarnThreshold(size)}
}

// Size returns the configured version size in bytes.
func (a *Allocator) Size() int { return a.size }

// New returns a fresh, cryptographically random version identifier. It
// logs a one-time warning once the number of allocations from this
// Allocator crosses the birthday bound for its configured size, per the
// Open Question in spec.md §9.
func (a *Allocator) New() ([]byte, error) {
	buf := make([]byte, a.size)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	n := a.allocated.Add(1)
	if n == a.warnAt && a.warned.CompareAndSwap(false, true) {
		a.log.Warn("version identifier collision risk",
			zap.Int("vSize", a.size),
			zap.Uint64("allocated", n),
			zap.String("hint", "increase mergeTree.vSize in configuration"),
		)
	}
	return buf, nil
}

// Encode base64-encodes a version identifier for the wire (spec.md §6).
func Encode(v []byte) string {
	return base64.RawURLEncoding.EncodeToString(v)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
