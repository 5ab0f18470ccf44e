package workload

import (
	"fmt"
	"math/rand"
	"net"
	"sort"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/tft"
)

// PacketArrival is one generated IP packet entering the network.
type PacketArrival struct {
	Time      int64
	Flow      int // index into WorkloadSpec.Flows
	Ue        int
	Direction tft.Direction
	Data      []byte
}

// GeneratePackets creates the packets of every flow up to horizon ticks.
// ueAddrs[i] is the IPv4 address of UE i. Deterministic given the same spec
// and seed; the result is sorted by time with flow order kept for ties.
func GeneratePackets(spec *WorkloadSpec, ueAddrs []net.IP, horizon int64) ([]PacketArrival, error) {
	if horizon <= 0 {
		return nil, nil
	}
	if err := spec.Validate(len(ueAddrs)); err != nil {
		return nil, fmt.Errorf("invalid workload spec: %w", err)
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed))
	trafficRNG := rng.ForSubsystem(sim.SubsystemTraffic)

	var all []PacketArrival
	for i := range spec.Flows {
		flow := &spec.Flows[i]
		flowRNG := rand.New(rand.NewSource(trafficRNG.Int63()))

		dir, _ := FlowDirection(flow.Direction)
		arrivals := NewArrivalSampler(flow.Arrival, flow.RatePps/float64(sim.TicksPerSecond))
		sizes, _ := NewSizeSampler(flow.Size)
		remote := net.ParseIP(flow.RemoteAddress)
		local := ueAddrs[flow.Ue]

		var id uint16
		now := int64(0)
		for {
			now += arrivals.SampleIAT(flowRNG)
			if now >= horizon {
				break
			}
			if len(flow.Windows) > 0 && !isInActiveWindow(now, flow.Windows) {
				continue
			}
			p := PacketParams{
				Protocol:      protocolOf(flow.Protocol),
				TypeOfService: flow.TypeOfService,
				ID:            id,
				PayloadLen:    sizes.Sample(flowRNG),
			}
			if dir == tft.Uplink {
				p.Src, p.Dst, p.SrcPort, p.DstPort = local, remote, flow.LocalPort, flow.RemotePort
			} else {
				p.Src, p.Dst, p.SrcPort, p.DstPort = remote, local, flow.RemotePort, flow.LocalPort
			}
			data, err := BuildPacket(p)
			if err != nil {
				return nil, fmt.Errorf("flow %q: %w", flow.ID, err)
			}
			id++
			all = append(all, PacketArrival{Time: now, Flow: i, Ue: flow.Ue, Direction: dir, Data: data})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time < all[j].Time
	})
	return all, nil
}

func isInActiveWindow(t int64, windows []ActiveWindow) bool {
	for _, w := range windows {
		if t >= sim.Milliseconds(w.StartMs) && t < sim.Milliseconds(w.EndMs) {
			return true
		}
	}
	return false
}
