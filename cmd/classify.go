package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ransim/ransim/sim/tft"
	"github.com/ransim/ransim/sim/workload"
)

// classifyCmd runs one packet through the classifier built from a TFT rule file
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Print the bearer a packet is classified to",
	Long: "Build a classifier from a TFT rule file and classify one IPv4 packet, given either as hex " +
		"with --packet or synthesized from --src, --dst, --protocol and the port flags.",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		setupLogging(v)
		opts, err := classifyOptionsFrom(v)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := classifyPacket(opts, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

type classifyOptions struct {
	TftFile   string
	Direction string
	Packet    []byte
}

func classifyOptionsFrom(v *viper.Viper) (classifyOptions, error) {
	opts := classifyOptions{TftFile: v.GetString("tft"), Direction: v.GetString("direction")}
	if raw := v.GetString("packet"); raw != "" {
		data, err := hex.DecodeString(strings.Join(strings.Fields(raw), ""))
		if err != nil {
			return opts, fmt.Errorf("--packet: %w", err)
		}
		opts.Packet = data
		return opts, nil
	}
	proto := layers.IPProtocolUDP
	switch p := v.GetString("protocol"); p {
	case "udp":
	case "tcp":
		proto = layers.IPProtocolTCP
	default:
		return opts, fmt.Errorf("--protocol must be udp or tcp, got %q", p)
	}
	data, err := workload.BuildPacket(workload.PacketParams{
		Src:           net.ParseIP(v.GetString("src")),
		Dst:           net.ParseIP(v.GetString("dst")),
		Protocol:      proto,
		SrcPort:       uint16(v.GetUint("sport")),
		DstPort:       uint16(v.GetUint("dport")),
		TypeOfService: uint8(v.GetUint("tos")),
	})
	if err != nil {
		return opts, err
	}
	opts.Packet = data
	return opts, nil
}

func classifyPacket(opts classifyOptions, w io.Writer) error {
	if opts.TftFile == "" {
		return fmt.Errorf("--tft is required")
	}
	d, err := tft.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}
	if d == tft.Bidirectional {
		return fmt.Errorf("--direction must be uplink or downlink")
	}
	if len(opts.Packet) == 0 {
		return fmt.Errorf("empty packet")
	}
	tfts, err := tft.LoadTFTs(opts.TftFile)
	if err != nil {
		return err
	}
	c := tft.NewClassifier()
	tft.Install(c, tfts)

	id := c.ClassifyBytes(opts.Packet, d)
	if id == tft.NoMatch {
		_, err = fmt.Fprintln(w, "no match")
		return err
	}
	_, err = fmt.Fprintf(w, "bearer %d\n", id)
	return err
}

func init() {
	classifyCmd.Flags().String("tft", "", "TFT rule file (ini)")
	classifyCmd.Flags().String("direction", "uplink", "Packet direction: uplink or downlink")
	classifyCmd.Flags().String("packet", "", "Raw IPv4 packet as hex; overrides the header flags")
	classifyCmd.Flags().String("src", "10.0.0.2", "Source address")
	classifyCmd.Flags().String("dst", "192.0.2.1", "Destination address")
	classifyCmd.Flags().String("protocol", "udp", "Transport protocol: udp or tcp")
	classifyCmd.Flags().Uint16("sport", 1234, "Source port")
	classifyCmd.Flags().Uint16("dport", 5000, "Destination port")
	classifyCmd.Flags().Uint8("tos", 0, "Type of service")
	rootCmd.AddCommand(classifyCmd)
}
