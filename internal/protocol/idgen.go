package protocol

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces opaque, unlinkability-only message ids in the form
// "peer-<nonce>-<counter>", using a uuid-derived nonce plus a monotonic
// counter instead of raw crypto/rand+hex.
type IDGenerator struct {
	nonce   string
	counter atomic.Int64
}

// NewIDGenerator creates a generator with a fresh process-local nonce.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{nonce: strings.ReplaceAll(uuid.NewString(), "-", "")[:8]}
}

// Next returns the next id from this generator.
func (g *IDGenerator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("peer-%s-%d", g.nonce, n)
}

// NewPeerID allocates a relay-assigned peer id. Distinct format from
// message ids so the two id spaces are never confused in logs.
func NewPeerID() string {
	return "peer:" + uuid.NewString()
}

// NewInternalID allocates a relay-internal routing id, unique across
// sessions via the uuid's own uniqueness.
func NewInternalID() string {
	return "route:" + uuid.NewString()
}
