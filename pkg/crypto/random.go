package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// FillRandom fills buf from the system CSPRNG.
func FillRandom(buf []byte) error {
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("reading system entropy: %w", err)
	}
	return nil
}

// UnpredictableNumber draws the 4-byte EMV unpredictable number.
func UnpredictableNumber() ([]byte, error) {
	buf := make([]byte, 4)
	if err := FillRandom(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// UniformUint31 draws a uniform value in [0, 2^31) for random online
// transaction selection.
func UniformUint31() (uint32, error) {
	buf := make([]byte, 4)
	if err := FillRandom(buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf) & 0x7FFFFFFF, nil
}
