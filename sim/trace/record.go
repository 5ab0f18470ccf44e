// Package trace provides decision-trace recording for the RAN control loops
// and the data plane. It has no dependencies on sim/ or its protocol
// packages; it stores pure data types.
package trace

// HandoverRecord captures one handover decision taken by a cell.
type HandoverRecord struct {
	Clock    int64
	UeID     int
	Rnti     uint16
	Source   uint16
	Target   uint16
	Executed bool
	Reason   string
	// Bearers whose PDCP sequence numbers were transferred to the target.
	TransferredBearers int
}

// AnrRecord captures one measurement-driven update of a neighbour table.
type AnrRecord struct {
	Clock      int64
	Cell       uint16
	Neighbour  uint16
	Created    bool
	NoHo       bool
	NoX2       bool
	NoRemove   bool
	DetectedBy uint16 // RNTI of the reporting UE
}

// DropRecord captures an SDU rejected by a full RLC transmit buffer.
type DropRecord struct {
	Clock  int64
	Cell   uint16
	Rnti   uint16
	Lcid   uint8
	Size   int
	Buffer uint32 // occupancy when the SDU arrived
}
