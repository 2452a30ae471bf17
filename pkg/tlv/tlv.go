// Package tlv implements the BER-TLV encoding used by EMV data elements:
// 1-3 byte tags, short and long form lengths, primitive and constructed
// values, tolerant of 0x00 filler between objects.
package tlv

import (
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// Tag is a BER-TLV tag packed big-endian into an integer, e.g. 0x9F26.
type Tag uint32

// Constructed reports whether the tag's first byte has the constructed bit set.
func (t Tag) Constructed() bool {
	return t.firstByte()&0x20 != 0
}

func (t Tag) firstByte() byte {
	b := t.Bytes()
	return b[0]
}

// Bytes returns the tag's wire encoding (1-3 bytes).
func (t Tag) Bytes() []byte {
	switch {
	case t > 0xFFFF:
		return []byte{byte(t >> 16), byte(t >> 8), byte(t)}
	case t > 0xFF:
		return []byte{byte(t >> 8), byte(t)}
	default:
		return []byte{byte(t)}
	}
}

// TLV is a single tag-length-value object. For constructed tags Value holds
// the encoded child sequence.
type TLV struct {
	Tag   Tag
	Value []byte
}

// Len returns the value length.
func (t TLV) Len() int { return len(t.Value) }

// Children parses the value of a constructed TLV.
func (t TLV) Children() ([]TLV, error) {
	if !t.Tag.Constructed() {
		return nil, errors.ErrMalformedTLV.WithMessage("tag %X is primitive, has no children", uint32(t.Tag))
	}
	return Parse(t.Value)
}

// Parse decodes the top-level TLV sequence in data. Zero filler bytes
// before an object are skipped.
func Parse(data []byte) ([]TLV, error) {
	var out []TLV
	pos := 0
	for pos < len(data) {
		if data[pos] == 0x00 {
			pos++
			continue
		}
		tlv, next, err := parseOne(data, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, tlv)
		pos = next
	}
	return out, nil
}

// ParseRecursive decodes data and descends into constructed templates,
// returning only the primitive leaves in depth-first document order.
func ParseRecursive(data []byte) ([]TLV, error) {
	top, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var out []TLV
	for _, t := range top {
		if t.Tag.Constructed() {
			leaves, err := ParseRecursive(t.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, leaves...)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Find returns the first TLV with the given tag in document order,
// descending into constructed templates.
func Find(data []byte, tag Tag) (TLV, bool) {
	top, err := Parse(data)
	if err != nil {
		return TLV{}, false
	}
	return findIn(top, tag)
}

func findIn(objects []TLV, tag Tag) (TLV, bool) {
	for _, t := range objects {
		if t.Tag == tag {
			return t, true
		}
		if t.Tag.Constructed() {
			children, err := Parse(t.Value)
			if err != nil {
				continue
			}
			if found, ok := findIn(children, tag); ok {
				return found, true
			}
		}
	}
	return TLV{}, false
}

// Build serializes the TLV sequence back to its wire form.
func Build(objects []TLV) []byte {
	var out []byte
	for _, t := range objects {
		out = append(out, Encode(t.Tag, t.Value)...)
	}
	return out
}

// Encode serializes a single tag and value with a definite length.
func Encode(tag Tag, value []byte) []byte {
	out := tag.Bytes()
	out = append(out, encodeLength(len(value))...)
	out = append(out, value...)
	return out
}

func encodeLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	case n <= 0xFFFF:
		return []byte{0x82, byte(n >> 8), byte(n)}
	case n <= 0xFFFFFF:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		return []byte{0x84, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

func parseOne(data []byte, pos int) (TLV, int, error) {
	tag, pos, err := parseTag(data, pos)
	if err != nil {
		return TLV{}, 0, err
	}

	length, pos, err := parseLength(data, pos)
	if err != nil {
		return TLV{}, 0, err
	}

	if pos+length > len(data) {
		return TLV{}, 0, errors.ErrMalformedTLV.
			WithMessage("tag %X declares %d value bytes, only %d remain", uint32(tag), length, len(data)-pos)
	}

	value := make([]byte, length)
	copy(value, data[pos:pos+length])
	return TLV{Tag: tag, Value: value}, pos + length, nil
}

func parseTag(data []byte, pos int) (Tag, int, error) {
	if pos >= len(data) {
		return 0, 0, errors.ErrMalformedTLV.WithMessage("truncated tag at offset %d", pos)
	}

	first := data[pos]
	tag := Tag(first)
	pos++

	// low 5 bits all set marks a multi-byte tag; continuation bytes keep
	// their high bit set, at most two are accepted
	if first&0x1F == 0x1F {
		for i := 0; ; i++ {
			if pos >= len(data) {
				return 0, 0, errors.ErrMalformedTLV.WithMessage("truncated multi-byte tag at offset %d", pos)
			}
			if i >= 2 {
				return 0, 0, errors.ErrMalformedTLV.WithMessage("tag longer than 3 bytes at offset %d", pos)
			}
			b := data[pos]
			tag = tag<<8 | Tag(b)
			pos++
			if b&0x80 == 0 {
				break
			}
		}
	}
	return tag, pos, nil
}

func parseLength(data []byte, pos int) (int, int, error) {
	if pos >= len(data) {
		return 0, 0, errors.ErrMalformedTLV.WithMessage("truncated length at offset %d", pos)
	}

	first := data[pos]
	pos++

	if first&0x80 == 0 {
		return int(first), pos, nil
	}

	n := int(first & 0x7F)
	if n == 0 {
		// indefinite form is not used by EMV
		return 0, 0, errors.ErrMalformedTLV.WithMessage("indefinite length at offset %d", pos-1)
	}
	if n > 4 {
		return 0, 0, errors.ErrMalformedTLV.WithMessage("length of length %d too large at offset %d", n, pos-1)
	}
	if pos+n > len(data) {
		return 0, 0, errors.ErrMalformedTLV.WithMessage("truncated long-form length at offset %d", pos)
	}

	length := 0
	for i := 0; i < n; i++ {
		length = length<<8 | int(data[pos+i])
	}
	return length, pos + n, nil
}
