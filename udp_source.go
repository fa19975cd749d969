package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// UDPSource receives RTP-framed EEG samples from the headset bridge
// over UDP (unicast or multicast). The RTP timestamp is a running
// sample counter at the nominal rate, so per-sample stream timestamps
// are reconstructed as counter/rate; sequence-number gaps are counted
// as dropouts.
//
// Payload layout: consecutive samples, each sample one little-endian
// float32 per channel.
type UDPSource struct {
	conn    *net.UDPConn
	info    StreamInfo
	metrics *Metrics
	readBuf []byte

	lastSeq uint16
	haveSeq bool
	gaps    atomic.Uint64
}

// NewUDPSource binds the receive socket. Multicast groups are joined
// on the configured interface (or the default interface when unset).
func NewUDPSource(cfg StreamConfig, metrics *Metrics) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stream address %s: %w", cfg.ListenAddr, err)
	}

	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("failed to find interface %s: %w", cfg.Interface, err)
		}
	}

	conn, err := listenSampleSocket(addr, iface)
	if err != nil {
		return nil, err
	}

	src := &UDPSource{
		conn:    conn,
		metrics: metrics,
		info: StreamInfo{
			NominalRate:  cfg.NominalRate,
			ChannelNames: append([]string(nil), cfg.ChannelNames...),
		},
		readBuf: make([]byte, 65536),
	}
	log.Printf("Sample source listening on %s (iface: %v, %d channels @ %.1f Hz)",
		addr, cfg.Interface, len(cfg.ChannelNames), cfg.NominalRate)
	return src, nil
}

// listenSampleSocket creates the UDP socket with address reuse enabled
// so a monitoring tap can bind the same group, and joins the multicast
// group when the address is multicast.
func listenSampleSocket(addr *net.UDPAddr, iface *net.Interface) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	packetConn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", addr.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", addr.Port, err)
	}
	conn := packetConn.(*net.UDPConn)

	if addr.IP.IsMulticast() {
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(iface, &net.UDPAddr{IP: addr.IP}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to join multicast group %s: %w", addr.IP, err)
		}
	}
	return conn, nil
}

// Info returns the static stream metadata.
func (s *UDPSource) Info() StreamInfo {
	return s.info
}

// PullChunk waits up to timeout for one datagram and decodes it into a
// chunk. A read deadline expiry returns an empty chunk with no error.
func (s *UDPSource) PullChunk(timeout time.Duration) (Chunk, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Chunk{}, fmt.Errorf("failed to set read deadline: %w", err)
	}

	n, _, err := s.conn.ReadFromUDP(s.readBuf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return Chunk{}, nil
		}
		return Chunk{}, fmt.Errorf("failed to read sample packet: %w", err)
	}

	var packet rtp.Packet
	if err := packet.Unmarshal(s.readBuf[:n]); err != nil {
		return Chunk{}, fmt.Errorf("failed to parse RTP packet: %w", err)
	}

	if s.haveSeq && packet.SequenceNumber != s.lastSeq+1 {
		s.gaps.Add(1)
		if s.metrics != nil {
			s.metrics.dropouts.Inc()
		}
	}
	s.lastSeq = packet.SequenceNumber
	s.haveSeq = true

	return s.decodePayload(packet.Timestamp, packet.Payload)
}

// decodePayload unpacks sample-major float32 frames and reconstructs
// stream timestamps from the RTP sample counter.
func (s *UDPSource) decodePayload(baseCounter uint32, payload []byte) (Chunk, error) {
	numChannels := s.info.ChannelCount()
	frameSize := numChannels * 4
	if len(payload)%frameSize != 0 {
		return Chunk{}, fmt.Errorf("payload size %d is not a multiple of frame size %d", len(payload), frameSize)
	}

	numSamples := len(payload) / frameSize
	chunk := Chunk{
		Timestamps: make([]float64, numSamples),
		Data:       make([][]float32, numSamples),
	}
	for i := 0; i < numSamples; i++ {
		chunk.Timestamps[i] = float64(baseCounter+uint32(i)) / s.info.NominalRate
		sample := make([]float32, numChannels)
		for ch := 0; ch < numChannels; ch++ {
			bits := binary.LittleEndian.Uint32(payload[(i*numChannels+ch)*4:])
			sample[ch] = math.Float32frombits(bits)
		}
		chunk.Data[i] = sample
	}
	return chunk, nil
}

// SequenceGaps returns the number of RTP sequence discontinuities seen.
// Safe to call from outside the acquisition goroutine; the status
// endpoint reads it while PullChunk is running.
func (s *UDPSource) SequenceGaps() uint64 {
	return s.gaps.Load()
}

// Close shuts the receive socket.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
