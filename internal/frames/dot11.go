package frames

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"pagershim/internal/models"
)

// SummarizeDot11 maps an 802.11 data frame onto a FrameSummary, taking the
// BSSID from the address slot the DS bits assign it to. Frames between two
// distribution systems have no BSSID and only contribute addresses.
func SummarizeDot11(d *layers.Dot11) (models.FrameSummary, bool) {
	if d == nil || d.Type.MainType() != layers.Dot11TypeData {
		return models.FrameSummary{}, false
	}

	toDS, fromDS := d.Flags.ToDS(), d.Flags.FromDS()
	slots := []net.HardwareAddr{d.Address1, d.Address2, d.Address3}
	if toDS && fromDS {
		slots = append(slots, d.Address4)
	}

	var sum models.FrameSummary
	for _, a := range slots {
		if len(a) == 6 {
			sum.Addrs = append(sum.Addrs, a.String())
		}
	}

	var bssid net.HardwareAddr
	switch {
	case toDS && fromDS:
	case toDS:
		bssid = d.Address1
	case fromDS:
		bssid = d.Address2
	default:
		bssid = d.Address3
	}
	if len(bssid) == 6 {
		sum.BSSID = bssid.String()
	}
	sum.Raw = fmt.Sprintf("%s %v", d.Type, sum.Addrs)
	return sum, true
}

// PcapConfig controls the in-process capture source.
type PcapConfig struct {
	// SnapLen defaults to 256; headers are all we read.
	SnapLen int32
	// Timeout is the read timeout handed to libpcap. Defaults to 500ms.
	Timeout time.Duration
	// Filter defaults to "type data".
	Filter string
	// Promisc defaults to true.
	Promisc *bool
}

func applyPcapDefaults(cfg *PcapConfig) PcapConfig {
	var out PcapConfig
	if cfg != nil {
		out = *cfg
	}
	if out.SnapLen <= 0 {
		out.SnapLen = 256
	}
	if out.Timeout <= 0 {
		out.Timeout = 500 * time.Millisecond
	}
	if out.Filter == "" {
		out.Filter = "type data"
	}
	if out.Promisc == nil {
		promisc := true
		out.Promisc = &promisc
	}
	return out
}

// PcapSource reads frames directly from a monitor interface with libpcap.
type PcapSource struct {
	cfg PcapConfig

	mu     sync.Mutex
	handle *pcap.Handle
}

// NewPcapSource returns a PcapSource; a nil cfg uses the defaults.
func NewPcapSource(cfg *PcapConfig) *PcapSource {
	return &PcapSource{cfg: applyPcapDefaults(cfg)}
}

func (s *PcapSource) Name() string { return "pcap" }

// Open starts capturing on iface.
func (s *PcapSource) Open(ctx context.Context, iface string) (<-chan models.FrameSummary, error) {
	handle, err := pcap.OpenLive(iface, s.cfg.SnapLen, *s.cfg.Promisc, s.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("could not open handle: %w", err)
	}
	if err := handle.SetBPFFilter(s.cfg.Filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("could not set BPF filter: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	out := make(chan models.FrameSummary, 64)
	src := gopacket.NewPacketSource(handle, handle.LinkType())
	src.NoCopy = true
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case pkt, ok := <-src.Packets():
				if !ok {
					return
				}
				d, _ := pkt.Layer(layers.LayerTypeDot11).(*layers.Dot11)
				sum, ok := SummarizeDot11(d)
				if !ok {
					continue
				}
				select {
				case out <- sum:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the capture handle.
func (s *PcapSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
