package capability

import (
	"time"

	"github.com/mgthompo1/tapkernel/pkg/crypto"
)

// SystemClock is the production Clock backed by the runtime clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// SystemRNG is the production RNG backed by the OS CSPRNG.
type SystemRNG struct{}

func (SystemRNG) FillRandom(buf []byte) error { return crypto.FillRandom(buf) }

// StaticCAKeyStore is the process-wide CA key table, loaded once from
// configuration and immutable afterwards.
type StaticCAKeyStore struct {
	keys map[string]*CAPublicKey
}

// NewStaticCAKeyStore indexes keys by RID and index.
func NewStaticCAKeyStore(keys []*CAPublicKey) *StaticCAKeyStore {
	store := &StaticCAKeyStore{keys: make(map[string]*CAPublicKey, len(keys))}
	for _, k := range keys {
		store.keys[caKeyID(k.RID, k.Index)] = k
	}
	return store
}

func (s *StaticCAKeyStore) Lookup(rid []byte, index byte) (*CAPublicKey, bool) {
	k, ok := s.keys[caKeyID(rid, index)]
	return k, ok
}

func caKeyID(rid []byte, index byte) string {
	return string(rid) + string([]byte{index})
}
