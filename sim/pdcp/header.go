package pdcp

import (
	"fmt"

	"github.com/pkg/errors"
)

// HeaderSize is the length of the PDCP header on the wire.
//
//	byte 0: [D/C:1][SN 14..8:7]
//	byte 1: [SN 7..0]
//	byte 2: source cell id
const HeaderSize = 3

// MaxSN is the largest 15-bit sequence number.
const MaxSN uint16 = 0x7FFF

// DcBit distinguishes data PDUs from control PDUs.
type DcBit uint8

const (
	DataPdu    DcBit = 0
	ControlPdu DcBit = 1
)

func (d DcBit) String() string {
	if d == ControlPdu {
		return "control"
	}
	return "data"
}

// Header is a decoded PDCP header.
type Header struct {
	DcBit          DcBit
	SequenceNumber uint16
	SourceCellID   uint8
}

// Marshal encodes the header. A sequence number above MaxSN or a D/C value
// other than 0 or 1 is a programming error.
func (h Header) Marshal() []byte {
	if h.SequenceNumber > MaxSN {
		panic(fmt.Sprintf("pdcp: sequence number %d exceeds %d", h.SequenceNumber, MaxSN))
	}
	if h.DcBit > ControlPdu {
		panic(fmt.Sprintf("pdcp: invalid D/C bit %d", h.DcBit))
	}
	return []byte{
		byte(h.DcBit)<<7 | byte(h.SequenceNumber>>8)&0x7F,
		byte(h.SequenceNumber),
		h.SourceCellID,
	}
}

// ParseHeader decodes the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Errorf("pdcp header needs %d bytes, got %d", HeaderSize, len(b))
	}
	return Header{
		DcBit:          DcBit(b[0] >> 7),
		SequenceNumber: uint16(b[0]&0x7F)<<8 | uint16(b[1]),
		SourceCellID:   b[2],
	}, nil
}

func (h Header) String() string {
	return fmt.Sprintf("PDCP{%s sn=%d cell=%d}", h.DcBit, h.SequenceNumber, h.SourceCellID)
}
