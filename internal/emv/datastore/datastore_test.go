package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

func TestPutGet(t *testing.T) {
	s := New()

	s.Put(0x9F02, bytesutil.MustHex("000000002500"))
	v, ok := s.Get(0x9F02)
	require.True(t, ok)
	assert.Equal(t, bytesutil.MustHex("000000002500"), v)

	// stored value is a copy
	v[0] = 0xFF
	again, _ := s.Get(0x9F02)
	assert.Equal(t, byte(0x00), again[0])

	_, ok = s.Get(0x9F03)
	assert.False(t, ok)
	assert.True(t, s.Has(0x9F02))
	assert.Equal(t, 1, s.Len())
}

func TestReset(t *testing.T) {
	s := New()
	s.Put(0x5A, bytesutil.MustHex("4761740000000012"))
	s.Put(0x57, bytesutil.MustHex("4761740000000012D2812F"))

	s.Reset()
	assert.Zero(t, s.Len())
	_, ok := s.Get(0x5A)
	assert.False(t, ok)
}

func TestPutTLVsDescendsTemplates(t *testing.T) {
	s := New()

	// 70 wrapping 5A and a nested 61 wrapping 5F34
	objects, err := tlv.Parse(bytesutil.MustHex("70 0D 5A 04 47 61 74 00 61 05 5F 34 01 01 00"))
	require.NoError(t, err)
	require.NoError(t, s.PutTLVs(objects))

	// only primitive leaves are stored
	assert.True(t, s.Has(0x5A))
	assert.True(t, s.Has(0x5F34))
	assert.False(t, s.Has(0x70))
	assert.False(t, s.Has(0x61))
}

func TestPutTLVsMalformedTemplate(t *testing.T) {
	s := New()
	err := s.PutTLVs([]tlv.TLV{{Tag: 0x70, Value: bytesutil.MustHex("5A04")}})
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	s := New()
	s.Put(0x95, make([]byte, 5))
	s.Delete(0x95)
	assert.False(t, s.Has(0x95))
}
