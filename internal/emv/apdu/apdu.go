// Package apdu encodes ISO 7816-4 command APDUs, parses responses and
// classifies status words the way the contactless kernels need them.
package apdu

import (
	"fmt"

	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// Instruction bytes used by the kernels.
const (
	ClaInterindustry = 0x00
	ClaProprietary   = 0x80

	InsSelect              = 0xA4
	InsReadRecord          = 0xB2
	InsGetResponse         = 0xC0
	InsGetData             = 0xCA
	InsGPO                 = 0xA8
	InsGenerateAC          = 0xAE
	InsComputeCryptoChecks = 0x2A
	InsExchangeRelayData   = 0xEA
	InsExternalAuth        = 0x82
)

// Command is an ISO 7816-4 command APDU. HasLE distinguishes cases 2/4
// from 1/3; Le of 0x00 requests up to 256 bytes.
type Command struct {
	CLA   byte
	INS   byte
	P1    byte
	P2    byte
	Data  []byte
	Le    byte
	HasLE bool
}

// Case1 builds a header-only command.
func Case1(cla, ins, p1, p2 byte) Command {
	return Command{CLA: cla, INS: ins, P1: p1, P2: p2}
}

// Case2 builds a command that only expects response data.
func Case2(cla, ins, p1, p2, le byte) Command {
	return Command{CLA: cla, INS: ins, P1: p1, P2: p2, Le: le, HasLE: true}
}

// Case3 builds a command that only carries data.
func Case3(cla, ins, p1, p2 byte, data []byte) Command {
	return Command{CLA: cla, INS: ins, P1: p1, P2: p2, Data: data}
}

// Case4 builds a command that carries data and expects a response.
func Case4(cla, ins, p1, p2 byte, data []byte, le byte) Command {
	return Command{CLA: cla, INS: ins, P1: p1, P2: p2, Data: data, Le: le, HasLE: true}
}

// Encode serializes the command in short form. Extended form is used only
// when the transceiver advertises support and the data overflows a byte.
func (c Command) Encode(extended bool) ([]byte, error) {
	out := []byte{c.CLA, c.INS, c.P1, c.P2}

	if len(c.Data) > 0xFF && !extended {
		return nil, fmt.Errorf("command data of %d bytes needs extended length support", len(c.Data))
	}

	switch {
	case len(c.Data) == 0 && !c.HasLE:
		// case 1: header only
	case len(c.Data) == 0 && c.HasLE:
		out = append(out, c.Le)
	case len(c.Data) <= 0xFF:
		out = append(out, byte(len(c.Data)))
		out = append(out, c.Data...)
		if c.HasLE {
			out = append(out, c.Le)
		}
	default:
		// extended Lc: 00 || two length bytes
		out = append(out, 0x00, byte(len(c.Data)>>8), byte(len(c.Data)))
		out = append(out, c.Data...)
		if c.HasLE {
			out = append(out, 0x00, c.Le)
		}
	}
	return out, nil
}

// Response is a parsed response APDU.
type Response struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// SW packs the status word.
func (r Response) SW() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// ParseResponse splits raw transceiver output into data and status word.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, errors.ErrCardCommunication.WithMessage("response of %d bytes has no status word", len(raw))
	}
	data := make([]byte, len(raw)-2)
	copy(data, raw[:len(raw)-2])
	return Response{Data: data, SW1: raw[len(raw)-2], SW2: raw[len(raw)-1]}, nil
}

// Disposition is the core's reaction to a status word.
type Disposition int

const (
	// Success delivers the data
	Success Disposition = iota
	// MoreData requires a GET RESPONSE round with Le = SW2
	MoreData
	// Warning delivers the data flagged as degraded
	Warning
	// RetryOnce allows a single retransmission
	RetryOnce
	// TryAnotherInterface means the card wants contact or mag-stripe
	TryAnotherInterface
	// NotSupported is fatal for the attempted operation only
	NotSupported
	// Fatal ends the application
	Fatal
)

// Classify maps a status word to the core action of the response table.
func Classify(sw uint16) Disposition {
	switch {
	case sw == 0x9000:
		return Success
	case sw&0xFF00 == 0x6100:
		return MoreData
	case sw&0xFF00 == 0x6200 || sw&0xFF00 == 0x6300:
		return Warning
	case sw == 0x6985:
		return RetryOnce
	case sw == 0x6984 || sw == 0x6986:
		return TryAnotherInterface
	case sw == 0x6A81 || sw == 0x6A82 || sw == 0x6A83:
		return NotSupported
	case sw == 0x6700, sw == 0x6D00, sw == 0x6E00:
		return Fatal
	default:
		return Fatal
	}
}

// ErrorForSW converts a non-success status word into the kernel error the
// caller should surface.
func ErrorForSW(sw uint16) *errors.Error {
	switch Classify(sw) {
	case TryAnotherInterface:
		return errors.ErrTryAnotherInterface.WithDetails("sw", fmt.Sprintf("%04X", sw))
	default:
		return errors.UnexpectedSW(sw)
	}
}
