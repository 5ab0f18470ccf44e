package workload

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// PacketParams describes one synthesized IPv4 packet.
type PacketParams struct {
	Src, Dst         net.IP
	Protocol         layers.IPProtocol // UDP or TCP
	SrcPort, DstPort uint16
	TypeOfService    uint8
	ID               uint16
	PayloadLen       int
}

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

// BuildPacket serializes an IPv4 packet with a UDP or TCP header and a zero payload.
func BuildPacket(p PacketParams) ([]byte, error) {
	src, dst := p.Src.To4(), p.Dst.To4()
	if src == nil || dst == nil {
		return nil, errors.Errorf("BuildPacket: %v -> %v is not an IPv4 pair", p.Src, p.Dst)
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		TOS:      p.TypeOfService,
		Id:       p.ID,
		Protocol: p.Protocol,
		SrcIP:    src,
		DstIP:    dst,
	}
	payload := gopacket.Payload(make([]byte, p.PayloadLen))

	var transport gopacket.SerializableLayer
	switch p.Protocol {
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(p.SrcPort), DstPort: layers.UDPPort(p.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, errors.Wrap(err, "BuildPacket: udp checksum")
		}
		transport = udp
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(p.SrcPort),
			DstPort: layers.TCPPort(p.DstPort),
			Seq:     uint32(p.ID),
			ACK:     true,
			PSH:     true,
			Window:  65535,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, errors.Wrap(err, "BuildPacket: tcp checksum")
		}
		transport = tcp
	default:
		return nil, errors.Errorf("BuildPacket: unsupported protocol %v", p.Protocol)
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ip, transport, payload); err != nil {
		return nil, errors.Wrap(err, "BuildPacket")
	}
	return buf.Bytes(), nil
}

func protocolOf(name string) layers.IPProtocol {
	if name == "tcp" {
		return layers.IPProtocolTCP
	}
	return layers.IPProtocolUDP
}
