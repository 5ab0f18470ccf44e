// Package tft implements traffic flow templates and the flow classifier that
// maps raw IP packets to bearers.
package tft

import (
	"fmt"
	"net"
	"strings"
)

// Direction is a bitmask: a filter matches a packet when the two share a bit.
type Direction uint8

const (
	Downlink      Direction = 1
	Uplink        Direction = 2
	Bidirectional Direction = Downlink | Uplink
)

// String returns the canonical lower-case name.
func (d Direction) String() string {
	switch d {
	case Downlink:
		return "downlink"
	case Uplink:
		return "uplink"
	case Bidirectional:
		return "bidirectional"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection accepts "uplink", "downlink", "bidirectional" and the
// "_only" spellings used by SDF rule files.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "downlink", "downlink_only", "dl":
		return Downlink, nil
	case "uplink", "uplink_only", "ul":
		return Uplink, nil
	case "bidirectional", "bi", "":
		return Bidirectional, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// MaxFilters is the largest number of packet filters a TFT (and the largest
// number of TFTs a classifier) may hold.
const MaxFilters = 16

// PacketFilter is one entry of a TFT. A nil mask matches any address and
// a zero ToS mask matches any type of service.
type PacketFilter struct {
	Direction  Direction
	Precedence uint8

	RemoteAddress net.IP
	RemoteMask    net.IPMask
	LocalAddress  net.IP
	LocalMask     net.IPMask

	RemotePortStart uint16
	RemotePortEnd   uint16
	LocalPortStart  uint16
	LocalPortEnd    uint16

	TypeOfService     uint8
	TypeOfServiceMask uint8

	// Protocol restricts the IP protocol number; 0 matches any.
	Protocol uint8
}

// NewPacketFilter returns a bidirectional filter that matches every packet.
func NewPacketFilter() PacketFilter {
	return PacketFilter{
		Direction:       Bidirectional,
		Precedence:      255,
		RemotePortStart: 0,
		RemotePortEnd:   65535,
		LocalPortStart:  0,
		LocalPortEnd:    65535,
	}
}

// FlowKey holds the fields a filter is evaluated against, already oriented
// from the UE's point of view.
type FlowKey struct {
	RemoteAddress net.IP
	LocalAddress  net.IP
	RemotePort    uint16
	LocalPort     uint16
	TypeOfService uint8
	Protocol      uint8
}

// Matches evaluates the filter against a flow travelling in direction d.
func (f *PacketFilter) Matches(d Direction, k FlowKey) bool {
	if f.Direction&d == 0 {
		return false
	}
	if !addressMatches(f.RemoteAddress, f.RemoteMask, k.RemoteAddress) {
		return false
	}
	if !addressMatches(f.LocalAddress, f.LocalMask, k.LocalAddress) {
		return false
	}
	if k.RemotePort < f.RemotePortStart || k.RemotePort > f.RemotePortEnd {
		return false
	}
	if k.LocalPort < f.LocalPortStart || k.LocalPort > f.LocalPortEnd {
		return false
	}
	if (k.TypeOfService^f.TypeOfService)&f.TypeOfServiceMask != 0 {
		return false
	}
	return f.Protocol == 0 || f.Protocol == k.Protocol
}

func (f *PacketFilter) validate() error {
	if f.Direction == 0 || f.Direction > Bidirectional {
		return fmt.Errorf("invalid direction %d", f.Direction)
	}
	if f.RemotePortStart > f.RemotePortEnd {
		return fmt.Errorf("remote port range %d-%d is empty", f.RemotePortStart, f.RemotePortEnd)
	}
	if f.LocalPortStart > f.LocalPortEnd {
		return fmt.Errorf("local port range %d-%d is empty", f.LocalPortStart, f.LocalPortEnd)
	}
	if f.RemoteMask != nil && len(f.RemoteMask) != len(normalize(f.RemoteAddress)) {
		return fmt.Errorf("remote mask %v does not fit address %v", f.RemoteMask, f.RemoteAddress)
	}
	if f.LocalMask != nil && len(f.LocalMask) != len(normalize(f.LocalAddress)) {
		return fmt.Errorf("local mask %v does not fit address %v", f.LocalMask, f.LocalAddress)
	}
	return nil
}

func (f PacketFilter) String() string {
	return fmt.Sprintf("PacketFilter{%s prec=%d remote=%s local=%s rport=%d-%d lport=%d-%d tos=%#x/%#x proto=%d}",
		f.Direction, f.Precedence, netString(f.RemoteAddress, f.RemoteMask), netString(f.LocalAddress, f.LocalMask),
		f.RemotePortStart, f.RemotePortEnd, f.LocalPortStart, f.LocalPortEnd,
		f.TypeOfService, f.TypeOfServiceMask, f.Protocol)
}

// normalize returns the 4-byte form of IPv4 addresses so that masks compare
// against the right width.
func normalize(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

func addressMatches(addr net.IP, mask net.IPMask, candidate net.IP) bool {
	if mask == nil {
		return true
	}
	a, c := normalize(addr), normalize(candidate)
	if len(a) != len(c) || len(a) != len(mask) {
		return false
	}
	for i := range a {
		if a[i]&mask[i] != c[i]&mask[i] {
			return false
		}
	}
	return true
}

func netString(addr net.IP, mask net.IPMask) string {
	if mask == nil {
		return "any"
	}
	ones, _ := mask.Size()
	return fmt.Sprintf("%s/%d", addr, ones)
}

// TFT is an ordered set of packet filters. Filters are kept sorted by
// precedence; equal precedences keep insertion order.
type TFT struct {
	filters []PacketFilter
	ids     []uint8
	nextID  uint8
}

// New returns an empty TFT. An empty TFT matches nothing.
func New() *TFT {
	return &TFT{}
}

// Default returns a TFT with one match-all bidirectional filter.
func Default() *TFT {
	t := New()
	t.Add(NewPacketFilter())
	return t
}

// Add inserts f and returns its identifier within the TFT. Adding a 17th
// filter or an inconsistent filter is a configuration error and panics.
func (t *TFT) Add(f PacketFilter) uint8 {
	if len(t.filters) >= MaxFilters {
		panic(fmt.Sprintf("tft: cannot hold more than %d packet filters", MaxFilters))
	}
	if err := f.validate(); err != nil {
		panic(fmt.Sprintf("tft: %v", err))
	}
	pos := len(t.filters)
	for i, existing := range t.filters {
		if existing.Precedence > f.Precedence {
			pos = i
			break
		}
	}
	id := t.nextID
	t.nextID++
	t.filters = append(t.filters, PacketFilter{})
	copy(t.filters[pos+1:], t.filters[pos:])
	t.filters[pos] = f
	t.ids = append(t.ids, 0)
	copy(t.ids[pos+1:], t.ids[pos:])
	t.ids[pos] = id
	return id
}

// Len returns the number of filters.
func (t *TFT) Len() int { return len(t.filters) }

// Filters returns a copy of the filters in evaluation order.
func (t *TFT) Filters() []PacketFilter {
	out := make([]PacketFilter, len(t.filters))
	copy(out, t.filters)
	return out
}

// Matches reports whether any filter accepts the flow.
func (t *TFT) Matches(d Direction, k FlowKey) bool {
	for i := range t.filters {
		if t.filters[i].Matches(d, k) {
			return true
		}
	}
	return false
}
