package transport

import (
	"context"
	"net"

	"github.com/dnorman/unbase-sub001/errs"
	"github.com/dnorman/unbase-sub001/libs/log"
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"
	"github.com/dnorman/unbase-sub001/peer"
)

// maxUDPPacketBytes bounds a single datagram; larger memos (e.g. a fully
// materialized index node with many slots) should be split by the caller
// into smaller edits rather than relying on IP fragmentation.
const maxUDPPacketBytes = 65507

// UDP is a length-prefixed-over-datagram transport (spec.md §4.I: "UDP
// (length-prefixed datagram carrying a serialized packet)"). Grounded on
// original_source's network/transport/udp.rs.
type UDP struct {
	mu       tmsync.RWMutex
	resolver LocalSlabResolver
	conn     *net.UDPConn
	logger   log.Logger

	inbound chan Packet
	quit    chan struct{}
}

// NewUDP binds a UDP socket at listenAddr (host:port) and begins reading
// inbound packets in a background goroutine. Pass "" to get an ephemeral
// port (useful in tests).
func NewUDP(listenAddr string, logger log.Logger) (*UDP, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	u := &UDP{
		conn:    conn,
		logger:  logger,
		inbound: make(chan Packet, 256),
		quit:    make(chan struct{}),
	}
	go u.readLoop()
	return u, nil
}

// LocalAddr returns the socket's bound address, e.g. for advertising a
// SlabPresence.
func (u *UDP) LocalAddr() string { return u.conn.LocalAddr().String() }

// Inbound exposes decoded packets as they arrive, for a Network to dispatch
// into ReceivePacket on the addressed slab.
func (u *UDP) Inbound() <-chan Packet { return u.inbound }

func (u *UDP) readLoop() {
	buf := make([]byte, maxUDPPacketBytes)
	for {
		select {
		case <-u.quit:
			return
		default:
		}
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.quit:
				return
			default:
				u.logger.Error("udp: read failed", "err", err)
				continue
			}
		}
		p, err := DecodePacket(buf[:n])
		if err != nil {
			u.logger.Error("udp: dropping malformed packet", "err", err)
			continue
		}
		select {
		case u.inbound <- p:
		case <-u.quit:
			return
		}
	}
}

func (u *UDP) IsLocal() bool { return false }

func (u *UDP) BindNetwork(resolver LocalSlabResolver) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resolver = resolver
}

func (u *UDP) UnbindNetwork() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resolver = nil
}

func (u *UDP) MakeTransmitter(dest peer.TransportAddress) (Transmitter, bool) {
	if dest.Kind != peer.AddressUDP {
		return nil, false
	}
	raddr, err := net.ResolveUDPAddr("udp", dest.HostPort)
	if err != nil {
		return nil, false
	}
	return TransmitterFunc(func(ctx context.Context, p Packet) error {
		encoded := EncodePacket(p)
		if len(encoded) > maxUDPPacketBytes {
			return errs.ErrBadAddress
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = u.conn.SetWriteDeadline(deadline)
		}
		_, err := u.conn.WriteToUDP(encoded, raddr)
		return err
	}), true
}

func (u *UDP) GetReturnAddress(addr peer.TransportAddress) peer.TransportAddress {
	if addr.Kind == peer.AddressUDP {
		return addr
	}
	return peer.BlackholeAddress()
}

// Close shuts down the socket and read loop.
func (u *UDP) Close() error {
	close(u.quit)
	return u.conn.Close()
}
