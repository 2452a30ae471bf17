// Package dol parses and assembles EMV data object lists (PDOL, CDOL,
// DDOL, UDOL). A DOL is a bare sequence of (tag, length) pairs; assembly
// concatenates the referenced values without TLV framing.
package dol

import (
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/errors"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// Entry is one requested data object.
type Entry struct {
	Tag    tlv.Tag
	Length int
}

// DOL is an ordered list of requested data objects.
type DOL []Entry

// TotalLength returns the byte count Build will emit.
func (d DOL) TotalLength() int {
	total := 0
	for _, e := range d {
		total += e.Length
	}
	return total
}

// Source resolves a tag to its current value. The kernels chain the
// terminal store before the card store.
type Source interface {
	Get(t tlv.Tag) ([]byte, bool)
}

// Parse consumes alternating tag and length bytes until data is
// exhausted. DOL lengths are always a single byte (0-255).
func Parse(data []byte) (DOL, error) {
	var out DOL
	pos := 0
	for pos < len(data) {
		t, next, err := parseTag(data, pos)
		if err != nil {
			return nil, err
		}
		if next >= len(data) {
			return nil, errors.ErrDOLLengthMismatch.WithMessage("dol entry for tag %X is missing its length", uint32(t))
		}
		out = append(out, Entry{Tag: t, Length: int(data[next])})
		pos = next + 1
	}
	return out, nil
}

// Build assembles the value stream for d, consulting sources in order.
// Missing values emit zero bytes; short values are padded and long values
// truncated to the requested length, space-filled for alphanumeric tags.
func Build(d DOL, sources ...Source) []byte {
	out := make([]byte, 0, d.TotalLength())
	for _, e := range d {
		out = append(out, buildEntry(e, sources)...)
	}
	return out
}

func buildEntry(e Entry, sources []Source) []byte {
	fill := byte(0x00)
	if tag.IsAlphanumeric(e.Tag) {
		fill = 0x20
	}

	for _, src := range sources {
		if v, ok := src.Get(e.Tag); ok {
			return bytesutil.PadRight(v, e.Length, fill)
		}
	}
	return make([]byte, e.Length)
}

func parseTag(data []byte, pos int) (tlv.Tag, int, error) {
	first := data[pos]
	t := tlv.Tag(first)
	pos++

	if first&0x1F == 0x1F {
		for i := 0; ; i++ {
			if pos >= len(data) {
				return 0, 0, errors.ErrMalformedTLV.WithMessage("truncated dol tag at offset %d", pos)
			}
			if i >= 2 {
				return 0, 0, errors.ErrMalformedTLV.WithMessage("dol tag longer than 3 bytes at offset %d", pos)
			}
			b := data[pos]
			t = t<<8 | tlv.Tag(b)
			pos++
			if b&0x80 == 0 {
				break
			}
		}
	}
	return t, pos, nil
}
