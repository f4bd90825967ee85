// Package peer implements the PeerChannel provider: best-effort snapshot
// exchange over UDP broadcast on the local network. Datagrams received
// between cycles accumulate in an inbox that the next Send drains.
//
// Snapshots must fit in a single datagram; oversized snapshots fail the
// send and the cycle falls back to the other channels.
package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/transport"
)

// maxDatagram bounds the serialized snapshot size.
const maxDatagram = 60 * 1024

// Provider broadcasts snapshots and collects peer datagrams in the
// background.
type Provider struct {
	conn      *net.UDPConn
	logger    *slog.Logger
	broadcast *net.UDPAddr
	deviceID  string
	inbox     []*models.SyncSnapshot
	mu        sync.Mutex
	closed    bool
}

// New binds a listener on listenAddr (e.g. ":8391") and broadcasts to
// broadcastAddr (e.g. "255.255.255.255:8391"). The background reader runs
// until Close.
func New(listenAddr, broadcastAddr, deviceID string, logger *slog.Logger) (*Provider, error) {
	laddr, err := net.ResolveUDPAddr("udp4", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address: %w", err)
	}
	baddr, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid broadcast address: %w", err)
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	p := &Provider{
		conn:      conn,
		broadcast: baddr,
		deviceID:  deviceID,
		logger:    logger,
	}
	go p.readLoop()
	return p, nil
}

// Close stops the background reader and releases the socket.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.conn.Close()
}

// Name implements transport.Provider.
func (p *Provider) Name() string {
	return transport.NamePeerChannel
}

// Send implements transport.Provider: broadcast own snapshot, return the
// inbox accumulated since the previous cycle.
func (p *Provider) Send(ctx context.Context, snapshot *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, transport.NewError(p.Name(), true, err)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, transport.NewError(p.Name(), false, fmt.Errorf("failed to marshal snapshot: %w", err))
	}
	if len(data) > maxDatagram {
		return nil, transport.NewError(p.Name(), false,
			fmt.Errorf("snapshot of %d bytes exceeds datagram limit", len(data)))
	}

	if _, err := p.conn.WriteToUDP(data, p.broadcast); err != nil {
		return nil, transport.NewError(p.Name(), true, fmt.Errorf("broadcast failed: %w", err))
	}

	return p.drainInbox(), nil
}

func (p *Provider) drainInbox() []*models.SyncSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.inbox
	p.inbox = nil
	return out
}

// readLoop collects peer datagrams. Own broadcasts loop back on most
// stacks and are filtered by device id.
func (p *Provider) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			p.logger.Debug("Peer channel read failed", "error", err)
			continue
		}

		var snap models.SyncSnapshot
		if err := json.Unmarshal(buf[:n], &snap); err != nil {
			p.logger.Debug("Dropping malformed peer datagram", "error", err)
			continue
		}
		if snap.DeviceID == p.deviceID {
			continue
		}

		p.mu.Lock()
		p.inbox = append(p.inbox, &snap)
		p.mu.Unlock()
	}
}
