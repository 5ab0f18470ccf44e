package tft

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
[GLOBAL]
NUM_TFTS = 2

[TFT_1]
BEARER_ID = 1
NUM_FILTERS = 1

[TFT_1_FILTER_1]
DIRECTION = bidirectional

[TFT_2]
BEARER_ID = 2
NUM_FILTERS = 2

[TFT_2_FILTER_1]
DIRECTION = uplink
PRECEDENCE = 20
REMOTE_ADDRESS = 1.2.3.0
REMOTE_MASK = 255.255.255.0
REMOTE_PORT_START = 5000
REMOTE_PORT_END = 5010

[TFT_2_FILTER_2]
DIRECTION = downlink_only
PRECEDENCE = 10
REMOTE_ADDRESS = 1.2.3.0
REMOTE_MASK = 24
LOCAL_PORT_START = 5000
LOCAL_PORT_END = 5010
TOS = 0xb8
TOS_MASK = 0xfc
`

func TestParseTFTs_Sample(t *testing.T) {
	tfts, err := ParseTFTs([]byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, tfts, 2)

	assert.Equal(t, uint32(1), tfts[0].BearerID)
	assert.Equal(t, 1, tfts[0].TFT.Len())
	assert.Equal(t, NewPacketFilter(), tfts[0].TFT.Filters()[0])

	filters := tfts[1].TFT.Filters()
	require.Len(t, filters, 2)
	// sorted by precedence
	assert.Equal(t, Downlink, filters[0].Direction)
	assert.Equal(t, uint8(0xb8), filters[0].TypeOfService)
	assert.Equal(t, uint8(0xfc), filters[0].TypeOfServiceMask)
	assert.Equal(t, net.CIDRMask(24, 32), filters[0].RemoteMask)
	assert.Equal(t, Uplink, filters[1].Direction)
	assert.Equal(t, uint16(5000), filters[1].RemotePortStart)
	assert.Equal(t, uint16(5010), filters[1].RemotePortEnd)
	assert.Equal(t, uint16(65535), filters[1].LocalPortEnd)
	assert.Equal(t, net.IPMask{255, 255, 255, 0}, filters[1].RemoteMask)
}

func TestLoadTFTs_InstallAndClassify(t *testing.T) {
	// GIVEN the rule file on disk
	path := filepath.Join(t.TempDir(), "tft.ini")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o600))

	// WHEN it is loaded into a classifier
	tfts, err := LoadTFTs(path)
	require.NoError(t, err)
	c := NewClassifier()
	Install(c, tfts)

	// THEN uplink video traffic uses bearer 2 and everything else bearer 1
	assert.Equal(t, uint32(2), c.ClassifyBytes(ipv4Packet(t, ueAddr, "1.2.3.9", 40000, 5004, ipv4Opts{}), Uplink))
	assert.Equal(t, uint32(1), c.ClassifyBytes(ipv4Packet(t, ueAddr, "1.2.4.9", 40000, 5004, ipv4Opts{}), Uplink))
	assert.Equal(t, uint32(2), c.ClassifyBytes(ipv4Packet(t, "1.2.3.9", ueAddr, 80, 5001, ipv4Opts{tos: 0xb8}), Downlink))
	assert.Equal(t, uint32(1), c.ClassifyBytes(ipv4Packet(t, "1.2.3.9", ueAddr, 80, 5001, ipv4Opts{}), Downlink))
}

func TestLoadTFTs_MissingFile(t *testing.T) {
	_, err := LoadTFTs(filepath.Join(t.TempDir(), "nope.ini"))
	assert.Error(t, err)
}

func TestParseTFTs_Errors(t *testing.T) {
	cases := map[string]string{
		"no global":        "[TFT_1]\nBEARER_ID = 1\n",
		"missing tft":      "[GLOBAL]\nNUM_TFTS = 1\n",
		"zero bearer":      "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 0\nNUM_FILTERS = 1\n[TFT_1_FILTER_1]\n",
		"missing filter":   "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 2\n[TFT_1_FILTER_1]\n",
		"too many filters": "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 17\n",
		"bad direction":    "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 1\n[TFT_1_FILTER_1]\nDIRECTION = up\n",
		"bad port":         "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 1\n[TFT_1_FILTER_1]\nLOCAL_PORT_END = 70000\n",
		"empty range":      "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 1\n[TFT_1_FILTER_1]\nLOCAL_PORT_START = 9\nLOCAL_PORT_END = 8\n",
		"mask only":        "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 1\n[TFT_1_FILTER_1]\nREMOTE_MASK = 24\n",
		"bad address":      "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 1\n[TFT_1_FILTER_1]\nREMOTE_ADDRESS = 1.2.3\n",
		"bad tos":          "[GLOBAL]\nNUM_TFTS = 1\n[TFT_1]\nBEARER_ID = 1\nNUM_FILTERS = 1\n[TFT_1_FILTER_1]\nTOS = 300\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTFTs([]byte(src))
			assert.Error(t, err)
		})
	}
}
