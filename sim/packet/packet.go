// Package packet provides the byte container that travels through the
// protocol entities: payload bytes with headers pushed and popped at the
// front, plus timestamp tags used for delay instrumentation.
package packet

import (
	"fmt"

	"github.com/pkg/errors"
)

// TagKind names a timestamp tag carried by a packet.
type TagKind int

const (
	// PdcpTimestamp is stamped by the transmitting PDCP entity.
	PdcpTimestamp TagKind = iota
	// RlcTimestamp is stamped by the RLC entity on enqueue and again on
	// hand-off to the MAC.
	RlcTimestamp
)

func (k TagKind) String() string {
	switch k {
	case PdcpTimestamp:
		return "pdcp-ts"
	case RlcTimestamp:
		return "rlc-ts"
	default:
		return fmt.Sprintf("tag(%d)", int(k))
	}
}

// ErrTruncated is returned when a header pop asks for more bytes than the packet holds.
var ErrTruncated = errors.New("packet truncated")

// Packet is a byte buffer with tags. The zero value is an empty packet.
type Packet struct {
	uid  uint64
	data []byte
	tags map[TagKind]int64
}

// New creates an unnumbered packet (UID 0) holding a copy of data.
func New(data []byte) *Packet {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Packet{data: buf}
}

// NewSized creates a zero-filled unnumbered packet of the given size.
func NewSized(size int) *Packet {
	if size < 0 {
		panic(fmt.Sprintf("packet.NewSized: negative size %d", size))
	}
	return New(make([]byte, size))
}

// Factory numbers the packets of one simulation, starting at 1. The zero
// value is ready to use.
type Factory struct {
	last uint64
}

// New creates a packet holding a copy of data with the next UID.
func (f *Factory) New(data []byte) *Packet {
	p := New(data)
	f.last++
	p.uid = f.last
	return p
}

// Issued returns how many packets the factory has numbered.
func (f *Factory) Issued() uint64 { return f.last }

// UID returns the packet identifier, shared by copies. Packets not built by
// a Factory have UID 0.
func (p *Packet) UID() uint64 { return p.uid }

// Size returns the packet length in bytes.
func (p *Packet) Size() int { return len(p.data) }

// Bytes returns the packet contents. Callers must not modify the slice.
func (p *Packet) Bytes() []byte { return p.data }

// AddHeader prepends hdr.
func (p *Packet) AddHeader(hdr []byte) {
	buf := make([]byte, len(hdr)+len(p.data))
	copy(buf, hdr)
	copy(buf[len(hdr):], p.data)
	p.data = buf
}

// PeekHeader returns the first n bytes without removing them.
func (p *Packet) PeekHeader(n int) ([]byte, error) {
	if n > len(p.data) {
		return nil, errors.Wrapf(ErrTruncated, "need %d bytes, have %d", n, len(p.data))
	}
	return p.data[:n], nil
}

// RemoveHeader pops the first n bytes.
func (p *Packet) RemoveHeader(n int) ([]byte, error) {
	hdr, err := p.PeekHeader(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, hdr)
	p.data = p.data[n:]
	return out, nil
}

// AddTag sets (or replaces) the timestamp tag of the given kind.
func (p *Packet) AddTag(kind TagKind, ts int64) {
	if p.tags == nil {
		p.tags = make(map[TagKind]int64)
	}
	p.tags[kind] = ts
}

// FindTag returns the timestamp stored under kind.
func (p *Packet) FindTag(kind TagKind) (int64, bool) {
	ts, ok := p.tags[kind]
	return ts, ok
}

// RemoveTag drops the tag of the given kind.
func (p *Packet) RemoveTag(kind TagKind) {
	delete(p.tags, kind)
}

// Copy returns a deep copy that keeps the UID and tags.
func (p *Packet) Copy() *Packet {
	c := &Packet{uid: p.uid, data: make([]byte, len(p.data))}
	copy(c.data, p.data)
	if len(p.tags) > 0 {
		c.tags = make(map[TagKind]int64, len(p.tags))
		for k, v := range p.tags {
			c.tags[k] = v
		}
	}
	return c
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{uid=%d, size=%d}", p.uid, len(p.data))
}
