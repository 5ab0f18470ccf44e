package tft

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Section and key names of a TFT rule file.
const (
	LblGlobal     = "GLOBAL"
	LblNumTFTs    = "NUM_TFTS"
	LblTFT        = "TFT"
	LblFilter     = "FILTER"
	LblBearerID   = "BEARER_ID"
	LblNumFilters = "NUM_FILTERS"

	LblDirection       = "DIRECTION"
	LblPrecedence      = "PRECEDENCE"
	LblRemoteAddress   = "REMOTE_ADDRESS"
	LblRemoteMask      = "REMOTE_MASK"
	LblLocalAddress    = "LOCAL_ADDRESS"
	LblLocalMask       = "LOCAL_MASK"
	LblRemotePortStart = "REMOTE_PORT_START"
	LblRemotePortEnd   = "REMOTE_PORT_END"
	LblLocalPortStart  = "LOCAL_PORT_START"
	LblLocalPortEnd    = "LOCAL_PORT_END"
	LblTos             = "TOS"
	LblTosMask         = "TOS_MASK"
	LblProtocol        = "PROTOCOL"
)

// BearerTFT is one TFT read from a rule file with the bearer it classifies to.
type BearerTFT struct {
	BearerID uint32
	TFT      *TFT
}

// LoadTFTs reads a TFT rule file:
//
//	[GLOBAL]
//	NUM_TFTS = 2
//	[TFT_1]
//	BEARER_ID = 1
//	NUM_FILTERS = 1
//	[TFT_1_FILTER_1]
//	DIRECTION = bidirectional
//	REMOTE_PORT_START = 5000
//	...
//
// Keys left out of a filter section keep their match-all defaults.
func LoadTFTs(path string) ([]BearerTFT, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading TFT file %s", path)
	}
	tfts, err := parseTFTs(cfg)
	return tfts, errors.Wrapf(err, "parsing TFT file %s", path)
}

// ParseTFTs is LoadTFTs on in-memory ini data.
func ParseTFTs(data []byte) ([]BearerTFT, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "loading TFT rules")
	}
	return parseTFTs(cfg)
}

// Install registers every TFT with c in file order.
func Install(c *Classifier, tfts []BearerTFT) {
	for _, bt := range tfts {
		c.Add(bt.TFT, bt.BearerID)
	}
}

func parseTFTs(cfg *ini.File) ([]BearerTFT, error) {
	n, err := cfg.Section(LblGlobal).Key(LblNumTFTs).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "[%s] %s", LblGlobal, LblNumTFTs)
	}
	if n < 0 || n > MaxFilters {
		return nil, errors.Errorf("[%s] %s must be in [0, %d], got %d", LblGlobal, LblNumTFTs, MaxFilters, n)
	}

	out := make([]BearerTFT, 0, n)
	for i := 1; i <= n; i++ {
		name := LblTFT + "_" + strconv.Itoa(i)
		if !cfg.HasSection(name) {
			return nil, errors.Errorf("missing section [%s]", name)
		}
		section := cfg.Section(name)
		bearer, err := section.Key(LblBearerID).Uint()
		if err != nil {
			return nil, errors.Wrapf(err, "[%s] %s", name, LblBearerID)
		}
		if bearer == 0 {
			return nil, errors.Errorf("[%s] %s must be positive", name, LblBearerID)
		}
		numFilters, err := section.Key(LblNumFilters).Int()
		if err != nil {
			return nil, errors.Wrapf(err, "[%s] %s", name, LblNumFilters)
		}
		if numFilters < 1 || numFilters > MaxFilters {
			return nil, errors.Errorf("[%s] %s must be in [1, %d], got %d", name, LblNumFilters, MaxFilters, numFilters)
		}

		t := New()
		for j := 1; j <= numFilters; j++ {
			fname := name + "_" + LblFilter + "_" + strconv.Itoa(j)
			if !cfg.HasSection(fname) {
				return nil, errors.Errorf("missing section [%s]", fname)
			}
			f, err := parseFilter(cfg.Section(fname))
			if err != nil {
				return nil, errors.Wrapf(err, "[%s]", fname)
			}
			if err := f.validate(); err != nil {
				return nil, errors.Wrapf(err, "[%s]", fname)
			}
			t.Add(f)
		}
		out = append(out, BearerTFT{BearerID: uint32(bearer), TFT: t})
	}
	return out, nil
}

func parseFilter(section *ini.Section) (PacketFilter, error) {
	f := NewPacketFilter()
	var err error

	if section.HasKey(LblDirection) {
		if f.Direction, err = ParseDirection(section.Key(LblDirection).String()); err != nil {
			return f, err
		}
	}
	if f.Precedence, err = uint8Key(section, LblPrecedence, f.Precedence); err != nil {
		return f, err
	}
	if f.RemoteAddress, f.RemoteMask, err = addressKeys(section, LblRemoteAddress, LblRemoteMask); err != nil {
		return f, err
	}
	if f.LocalAddress, f.LocalMask, err = addressKeys(section, LblLocalAddress, LblLocalMask); err != nil {
		return f, err
	}
	for _, p := range []struct {
		key string
		dst *uint16
	}{
		{LblRemotePortStart, &f.RemotePortStart},
		{LblRemotePortEnd, &f.RemotePortEnd},
		{LblLocalPortStart, &f.LocalPortStart},
		{LblLocalPortEnd, &f.LocalPortEnd},
	} {
		if !section.HasKey(p.key) {
			continue
		}
		v, err := section.Key(p.key).Uint()
		if err != nil || v > 65535 {
			return f, errors.Errorf("%s: invalid port %q", p.key, section.Key(p.key).String())
		}
		*p.dst = uint16(v)
	}
	if f.TypeOfService, err = uint8Key(section, LblTos, 0); err != nil {
		return f, err
	}
	if f.TypeOfServiceMask, err = uint8Key(section, LblTosMask, 0); err != nil {
		return f, err
	}
	if f.Protocol, err = uint8Key(section, LblProtocol, 0); err != nil {
		return f, err
	}
	return f, nil
}

func uint8Key(section *ini.Section, key string, def uint8) (uint8, error) {
	if !section.HasKey(key) {
		return def, nil
	}
	v, err := strconv.ParseUint(section.Key(key).String(), 0, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return uint8(v), nil
}

// addressKeys reads an address and its mask. The mask may be dotted
// (255.255.255.0) or a prefix length (24). An address without a mask is an
// exact match.
func addressKeys(section *ini.Section, addrKey, maskKey string) (net.IP, net.IPMask, error) {
	if !section.HasKey(addrKey) {
		if section.HasKey(maskKey) {
			return nil, nil, errors.Errorf("%s given without %s", maskKey, addrKey)
		}
		return nil, nil, nil
	}
	ip := net.ParseIP(section.Key(addrKey).String())
	if ip == nil {
		return nil, nil, errors.Errorf("%s: invalid address %q", addrKey, section.Key(addrKey).String())
	}
	ip = normalize(ip)
	bits := len(ip) * 8
	if !section.HasKey(maskKey) {
		return ip, net.CIDRMask(bits, bits), nil
	}
	raw := section.Key(maskKey).String()
	if ones, err := strconv.Atoi(raw); err == nil {
		if ones < 0 || ones > bits {
			return nil, nil, errors.Errorf("%s: prefix length %d out of range", maskKey, ones)
		}
		return ip, net.CIDRMask(ones, bits), nil
	}
	m := net.ParseIP(raw)
	if m == nil {
		return nil, nil, errors.Errorf("%s: invalid mask %q", maskKey, raw)
	}
	if bits == 32 {
		m = m.To4()
		if m == nil {
			return nil, nil, errors.Errorf("%s: IPv6 mask %q for IPv4 address", maskKey, raw)
		}
	}
	return ip, net.IPMask(m), nil
}
