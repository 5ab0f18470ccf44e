package tft

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim/packet"
)

// NoMatch is returned by Classify when no bearer applies.
const NoMatch uint32 = 0

type registeredTFT struct {
	bearerID uint32
	tft      *TFT
}

type fragKey struct {
	src, dst [4]byte
	id       uint16
}

type portPair struct {
	src, dst uint16
}

type fragTrain struct {
	ports portPair
	seq   uint64 // insertion order, for eviction
}

// MaxPendingFragments bounds the fragment trains remembered at once. When a
// new train starts beyond it, the oldest train is forgotten and its later
// fragments classify as NoMatch.
const MaxPendingFragments = 64

// Classifier maps packets to bearer identifiers. It belongs to a single UE
// (or to the gateway side of a single UE) and is not safe for concurrent use.
type Classifier struct {
	tfts []registeredTFT

	// transport ports of IPv4 fragment trains, keyed by (src, dst, id)
	fragments map[fragKey]fragTrain
	fragSeq   uint64

	ip4 layers.IPv4
	ip6 layers.IPv6
	udp layers.UDP
	tcp layers.TCP
}

// NewClassifier returns a classifier with no TFTs.
func NewClassifier() *Classifier {
	return &Classifier{fragments: make(map[fragKey]fragTrain)}
}

// Add registers tft for bearerID. Later registrations take priority over
// earlier ones. Registering NoMatch, a duplicate bearer, or more than
// MaxFilters TFTs panics.
func (c *Classifier) Add(t *TFT, bearerID uint32) {
	if t == nil {
		panic("tft.Classifier.Add: nil TFT")
	}
	if bearerID == NoMatch {
		panic("tft.Classifier.Add: bearer id 0 is reserved")
	}
	if len(c.tfts) >= MaxFilters {
		panic(fmt.Sprintf("tft.Classifier.Add: cannot register more than %d TFTs", MaxFilters))
	}
	for _, r := range c.tfts {
		if r.bearerID == bearerID {
			panic(fmt.Sprintf("tft.Classifier.Add: bearer %d already registered", bearerID))
		}
	}
	c.tfts = append(c.tfts, registeredTFT{bearerID: bearerID, tft: t})
}

// Delete unregisters bearerID. Unknown ids are ignored.
func (c *Classifier) Delete(bearerID uint32) {
	for i, r := range c.tfts {
		if r.bearerID == bearerID {
			c.tfts = append(c.tfts[:i], c.tfts[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered TFTs.
func (c *Classifier) Len() int { return len(c.tfts) }

// Classify returns the bearer a packet travelling in direction d belongs to,
// or NoMatch. d must be Uplink or Downlink. A packet whose IP or transport
// header cannot be decoded panics.
func (c *Classifier) Classify(p *packet.Packet, d Direction) uint32 {
	return c.ClassifyBytes(p.Bytes(), d)
}

// ClassifyBytes is Classify on a raw IP datagram.
func (c *Classifier) ClassifyBytes(data []byte, d Direction) uint32 {
	if d != Uplink && d != Downlink {
		panic(fmt.Sprintf("tft.Classify: direction must be uplink or downlink, got %s", d))
	}
	if len(data) == 0 {
		panic("tft.Classify: empty packet")
	}

	var (
		src, dst net.IP
		tos      uint8
		proto    layers.IPProtocol
		payload  []byte
		ports    portPair
		v4       bool
	)
	switch data[0] >> 4 {
	case 4:
		if err := c.ip4.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			panic(fmt.Sprintf("tft.Classify: malformed IPv4 header: %v", err))
		}
		src, dst, tos, proto, payload, v4 = c.ip4.SrcIP, c.ip4.DstIP, c.ip4.TOS, c.ip4.Protocol, c.ip4.Payload, true
	case 6:
		if err := c.ip6.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			panic(fmt.Sprintf("tft.Classify: malformed IPv6 header: %v", err))
		}
		src, dst, tos, proto, payload = c.ip6.SrcIP, c.ip6.DstIP, c.ip6.TrafficClass, c.ip6.NextHeader, c.ip6.Payload
	default:
		panic(fmt.Sprintf("tft.Classify: unknown IP version %d", data[0]>>4))
	}

	if proto != layers.IPProtocolUDP && proto != layers.IPProtocolTCP {
		logrus.Debugf("classifier: protocol %s not classified", proto)
		return NoMatch
	}

	if v4 && c.ip4.FragOffset != 0 {
		key := c.fragKeyOf()
		cached, ok := c.fragments[key]
		if !ok {
			logrus.Debugf("classifier: fragment of unknown train %v->%v id=%d", src, dst, c.ip4.Id)
			return NoMatch
		}
		if c.ip4.Flags&layers.IPv4MoreFragments == 0 {
			delete(c.fragments, key)
		}
		ports = cached.ports
	} else {
		ports = c.decodePorts(proto, payload)
		if v4 && c.ip4.Flags&layers.IPv4MoreFragments != 0 {
			c.rememberFragments(c.fragKeyOf(), ports)
		}
	}

	key := FlowKey{TypeOfService: tos, Protocol: uint8(proto)}
	if d == Uplink {
		key.LocalAddress, key.RemoteAddress = src, dst
		key.LocalPort, key.RemotePort = ports.src, ports.dst
	} else {
		key.LocalAddress, key.RemoteAddress = dst, src
		key.LocalPort, key.RemotePort = ports.dst, ports.src
	}

	for i := len(c.tfts) - 1; i >= 0; i-- {
		if c.tfts[i].tft.Matches(d, key) {
			logrus.Debugf("classifier: %s %s:%d -> %s:%d matched bearer %d",
				d, src, ports.src, dst, ports.dst, c.tfts[i].bearerID)
			return c.tfts[i].bearerID
		}
	}
	return NoMatch
}

// PendingFragments returns the number of fragment trains awaiting their last fragment.
func (c *Classifier) PendingFragments() int { return len(c.fragments) }

// rememberFragments caches the ports of a new fragment train, evicting the
// oldest train when the cache is full.
func (c *Classifier) rememberFragments(key fragKey, ports portPair) {
	if _, ok := c.fragments[key]; !ok && len(c.fragments) >= MaxPendingFragments {
		var (
			oldest    fragKey
			oldestSeq uint64
			found     bool
		)
		for k, tr := range c.fragments {
			if !found || tr.seq < oldestSeq {
				oldest, oldestSeq, found = k, tr.seq, true
			}
		}
		logrus.Debugf("classifier: fragment cache full, forgetting train id=%d", oldest.id)
		delete(c.fragments, oldest)
	}
	c.fragSeq++
	c.fragments[key] = fragTrain{ports: ports, seq: c.fragSeq}
}

func (c *Classifier) decodePorts(proto layers.IPProtocol, payload []byte) portPair {
	switch proto {
	case layers.IPProtocolUDP:
		if err := c.udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			panic(fmt.Sprintf("tft.Classify: malformed UDP header: %v", err))
		}
		return portPair{src: uint16(c.udp.SrcPort), dst: uint16(c.udp.DstPort)}
	default:
		if err := c.tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			panic(fmt.Sprintf("tft.Classify: malformed TCP header: %v", err))
		}
		return portPair{src: uint16(c.tcp.SrcPort), dst: uint16(c.tcp.DstPort)}
	}
}

func (c *Classifier) fragKeyOf() fragKey {
	var k fragKey
	copy(k.src[:], c.ip4.SrcIP.To4())
	copy(k.dst[:], c.ip4.DstIP.To4())
	k.id = c.ip4.Id
	return k
}
