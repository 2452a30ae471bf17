// Package sensitive wraps cardholder data in buffers that can be wiped
// deterministically. PAN, track data, PIN blocks and cryptograms each get
// their own type so they cannot be mixed into general-purpose maps, and a
// registry wipes everything a transaction touched on any exit path.
package sensitive

import (
	"sync"

	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/crypto"
)

// Buffer owns a secret byte slice. Zeroize overwrites it in place; the
// accessor hands out the live slice, never a copy, so no stray duplicates
// escape the wipe.
type Buffer struct {
	b []byte
}

// NewBuffer takes ownership of b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Bytes returns the underlying slice. Callers must not retain it past the
// transaction.
func (s *Buffer) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len returns the buffer length.
func (s *Buffer) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// IsZero reports whether the buffer is empty or wiped.
func (s *Buffer) IsZero() bool {
	return s == nil || bytesutil.IsZero(s.b)
}

// Zeroize overwrites the secret in place.
func (s *Buffer) Zeroize() {
	if s != nil {
		bytesutil.Zeroize(s.b)
	}
}

// PAN is the primary account number as ASCII digits.
type PAN struct{ Buffer }

// NewPAN takes ownership of ASCII digit bytes.
func NewPAN(digits []byte) *PAN {
	return &PAN{Buffer{b: digits}}
}

// Digits exposes the clear PAN for hashing and DOL assembly.
func (p *PAN) Digits() string {
	if p == nil {
		return ""
	}
	return string(p.b)
}

// Masked returns the only projection allowed outside the transaction.
func (p *PAN) Masked() string {
	return crypto.MaskPAN(p.Digits())
}

// Hash returns the SHA-256 digest used for torn-log matching.
func (p *PAN) Hash() string {
	return crypto.HashPAN(p.Digits())
}

// LastFour returns the trailing digits used for torn-log matching.
func (p *PAN) LastFour() string {
	return crypto.LastFour(p.Digits())
}

// Track2 is the track 2 equivalent data.
type Track2 struct{ Buffer }

// NewTrack2 takes ownership of the raw track bytes.
func NewTrack2(b []byte) *Track2 {
	return &Track2{Buffer{b: b}}
}

// Cryptogram is an application cryptogram (TC, ARQC or AAC).
type Cryptogram struct{ Buffer }

// NewCryptogram takes ownership of the 8 cryptogram bytes.
func NewCryptogram(b []byte) *Cryptogram {
	return &Cryptogram{Buffer{b: b}}
}

// Hex returns the hex projection for authorization payloads and durable
// records; reversals must carry the cryptogram to the acquirer.
func (c *Cryptogram) Hex() string {
	if c == nil {
		return ""
	}
	return bytesutil.ToHex(c.b)
}

// PINBlock is an enciphered or clear ISO 9564 PIN block.
type PINBlock struct{ Buffer }

// NewPINBlock takes ownership of the 8 PIN block bytes.
func NewPINBlock(b []byte) *PINBlock {
	return &PINBlock{Buffer{b: b}}
}

// Registry tracks every sensitive buffer a transaction allocates so the
// state machine can wipe them all on ERROR, CANCELLED and COMPLETION.
type Registry struct {
	mu      sync.Mutex
	buffers []*Buffer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Track registers a buffer for wiping and returns it for chaining.
func (r *Registry) Track(b *Buffer) *Buffer {
	if b == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers = append(r.buffers, b)
	return b
}

// ZeroizeAll wipes every tracked buffer. Idempotent.
func (r *Registry) ZeroizeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.buffers {
		b.Zeroize()
	}
}

// AllZero reports whether every tracked buffer has been wiped.
func (r *Registry) AllZero() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.buffers {
		if !b.IsZero() {
			return false
		}
	}
	return true
}
