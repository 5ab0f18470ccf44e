package ran

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/sap"
	"github.com/ransim/ransim/sim/tft"
	"github.com/ransim/ransim/sim/trace"
	"github.com/ransim/ransim/sim/workload"
)

// Result is the outcome of a scenario run.
type Result struct {
	Network *Network
	Metrics *sim.Metrics
	Trace   *trace.SimulationTrace // nil when tracing is off
	Elapsed int64                  // ticks
	Events  int64
}

// Runner executes one scenario. Build it with NewRunner, then call Run once.
type Runner struct {
	scenario *Scenario
	sim      *sim.Simulator
	net      *Network
	hasRun   bool
}

// NewRunner validates sc and builds its network: cells, UEs and bearers.
// The workload is generated when Run is called.
func NewRunner(sc *Scenario) (*Runner, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	s := sim.NewSimulator(sc.Horizon())
	n := NewNetwork(s, sim.NewMetrics(), trace.NewSimulationTrace(trace.TraceLevel(sc.Trace)))
	for _, cfg := range sc.Cells {
		if _, err := n.AddCell(cfg); err != nil {
			return nil, err
		}
	}
	for i := range sc.Ues {
		spec := &sc.Ues[i]
		u, err := n.AddUe(net.ParseIP(spec.Address), sap.CellID(spec.Cell))
		if err != nil {
			return nil, fmt.Errorf("ue[%d]: %w", i, err)
		}
		bearers, err := spec.BearerConfigs()
		if err != nil {
			return nil, fmt.Errorf("ue[%d]: %w", i, err)
		}
		for _, b := range bearers {
			if _, err := n.ActivateBearer(u.Index, b); err != nil {
				return nil, err
			}
		}
	}
	return &Runner{scenario: sc, sim: s, net: n}, nil
}

// Network returns the network under simulation.
func (r *Runner) Network() *Network { return r.net }

// Run generates the workload, schedules it, and runs the simulation to the
// horizon. Panics if called more than once.
func (r *Runner) Run() (*Result, error) {
	if r.hasRun {
		panic("Runner.Run() called more than once")
	}
	r.hasRun = true
	sc := r.scenario
	horizon := sc.Horizon()

	spec := sc.Workload
	if spec.Seed == 0 {
		spec.Seed = sc.Seed
	}
	addrs := make([]net.IP, len(r.net.ues))
	for i, u := range r.net.ues {
		addrs[i] = u.Address
	}
	packets, err := workload.GeneratePackets(&spec, addrs, horizon)
	if err != nil {
		return nil, fmt.Errorf("generating packets: %w", err)
	}
	samples := workload.GenerateMeasurements(&spec, horizon)
	logrus.Infof("scenario: %d cells, %d UEs, %d packets, %d measurement samples over %d ms",
		len(r.net.cells), len(r.net.ues), len(packets), len(samples), sc.HorizonMs)

	// measurements first so a packet at the same tick sees fresh CQI
	for _, s := range samples {
		s := s
		r.sim.Schedule(sim.NewFuncEvent(s.Time, func() { r.net.Measure(UeIndex(s.Ue), s) }))
	}
	for _, p := range packets {
		p := p
		r.sim.Schedule(sim.NewFuncEvent(p.Time, func() { r.dispatch(p) }))
	}
	r.net.Start()
	r.sim.Run()
	r.net.Close()

	return &Result{
		Network: r.net,
		Metrics: r.net.metrics,
		Trace:   r.net.trace,
		Elapsed: horizon,
		Events:  r.sim.ExecutedEvents(),
	}, nil
}

func (r *Runner) dispatch(p workload.PacketArrival) {
	if p.Direction == tft.Uplink {
		r.net.SendUplink(UeIndex(p.Ue), p.Data)
		return
	}
	r.net.SendDownlink(UeIndex(p.Ue), p.Data)
}

// Run builds and runs sc in one call.
func Run(sc *Scenario) (*Result, error) {
	r, err := NewRunner(sc)
	if err != nil {
		return nil, err
	}
	return r.Run()
}
