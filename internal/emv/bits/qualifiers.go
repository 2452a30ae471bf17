package bits

// TTQ is the 4-byte Terminal Transaction Qualifiers the reader sends in
// the PDOL (Visa and the schemes that copied the layout).
type TTQ [4]byte

// ParseTTQ copies a 4-byte serialization into a TTQ.
func ParseTTQ(b []byte) TTQ {
	var t TTQ
	copy(t[:], b)
	return t
}

// Bytes returns the wire serialization.
func (t TTQ) Bytes() []byte {
	out := make([]byte, 4)
	copy(out, t[:])
	return out
}

func (t TTQ) MagstripeSupported() bool { return t[0]&0x80 != 0 }

func (t TTQ) EMVModeSupported() bool { return t[0]&0x20 != 0 }

func (t TTQ) EMVContactSupported() bool { return t[0]&0x10 != 0 }

func (t TTQ) OfflineOnlyReader() bool { return t[0]&0x08 != 0 }

func (t TTQ) OnlinePINSupported() bool { return t[0]&0x04 != 0 }

func (t TTQ) SignatureSupported() bool { return t[0]&0x02 != 0 }

func (t TTQ) OnlineCryptogramRequired() bool { return t[1]&0x80 != 0 }

func (t TTQ) CVMRequired() bool { return t[1]&0x40 != 0 }

// CDCVMSupported is TTQ byte 3 bit 7: the reader accepts consumer-device
// cardholder verification.
func (t TTQ) CDCVMSupported() bool { return t[2]&0x40 != 0 }

func (t TTQ) IssuerUpdateSupported() bool { return t[2]&0x80 != 0 }

// WithCDCVMSupported returns a copy with the CDCVM bit set.
func (t TTQ) WithCDCVMSupported() TTQ {
	t[2] |= 0x40
	return t
}

// WithOnlineCryptogramRequired returns a copy with the online cryptogram
// bit set; used when the reader is forcing the transaction online.
func (t TTQ) WithOnlineCryptogramRequired() TTQ {
	t[1] |= 0x80
	return t
}

// CTQ is the 2-byte Card Transaction Qualifiers the card returns in the
// GPO response to steer CVM and interface decisions.
type CTQ [2]byte

// ParseCTQ copies a 2-byte serialization into a CTQ.
func ParseCTQ(b []byte) CTQ {
	var c CTQ
	copy(c[:], b)
	return c
}

// Bytes returns the wire serialization.
func (c CTQ) Bytes() []byte {
	return []byte{c[0], c[1]}
}

func (c CTQ) OnlinePINRequired() bool { return c[0]&0x80 != 0 }

func (c CTQ) SignatureRequired() bool { return c[0]&0x40 != 0 }

func (c CTQ) GoOnlineIfODAFails() bool { return c[0]&0x20 != 0 }

func (c CTQ) SwitchInterfaceIfODAFails() bool { return c[0]&0x10 != 0 }

func (c CTQ) GoOnlineIfExpired() bool { return c[0]&0x08 != 0 }

// CDCVMPerformed is CTQ byte 2 bit 8: the consumer device already
// verified the cardholder.
func (c CTQ) CDCVMPerformed() bool { return c[1]&0x80 != 0 }

func (c CTQ) IssuerUpdateSupported() bool { return c[1]&0x40 != 0 }
