package bits

// AIP is a thin view over the 2-byte Application Interchange Profile.
type AIP [2]byte

// ParseAIP copies a 2-byte serialization into an AIP.
func ParseAIP(b []byte) AIP {
	var a AIP
	copy(a[:], b)
	return a
}

// Bytes returns the wire serialization.
func (a AIP) Bytes() []byte {
	return []byte{a[0], a[1]}
}

func (a AIP) SDASupported() bool { return a[0]&0x40 != 0 }

func (a AIP) DDASupported() bool { return a[0]&0x20 != 0 }

func (a AIP) CardholderVerificationSupported() bool { return a[0]&0x10 != 0 }

func (a AIP) TerminalRiskManagementRequired() bool { return a[0]&0x08 != 0 }

func (a AIP) IssuerAuthenticationSupported() bool { return a[0]&0x04 != 0 }

func (a AIP) OnDeviceCVMSupported() bool { return a[0]&0x02 != 0 }

func (a AIP) CDASupported() bool { return a[0]&0x01 != 0 }

// EMVModeSupported distinguishes full EMV mode from mag-stripe-only
// profiles on Mastercard contactless cards.
func (a AIP) EMVModeSupported() bool { return a[1]&0x80 != 0 }

// RelayResistanceSupported signals the card implements the relay
// resistance protocol (Mastercard).
func (a AIP) RelayResistanceSupported() bool { return a[1]&0x01 != 0 }
