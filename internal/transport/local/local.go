// Package local implements the LocalBroadcast provider: an in-process hub
// exchanging snapshots between browser contexts of the same device
// process (windows, workers) without touching the network.
package local

import (
	"context"
	"sync"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/transport"
)

// Hub is the shared in-process exchange. Every participating context
// attaches a Provider to the same Hub; the hub keeps the latest snapshot
// per (device, context) pair.
type Hub struct {
	snapshots map[string]*models.SyncSnapshot
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{snapshots: make(map[string]*models.SyncSnapshot)}
}

func (h *Hub) publish(key string, snapshot *models.SyncSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots[key] = snapshot.Clone()
}

func (h *Hub) others(key string) []*models.SyncSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*models.SyncSnapshot, 0, len(h.snapshots))
	for k, snap := range h.snapshots {
		if k == key {
			continue
		}
		out = append(out, snap.Clone())
	}
	return out
}

// Provider publishes to and reads from a Hub.
type Provider struct {
	hub *Hub
	key string
}

// NewProvider attaches a provider to the hub under the given context key
// (deviceId plus browser context, unique per participant).
func NewProvider(hub *Hub, key string) *Provider {
	return &Provider{hub: hub, key: key}
}

// Name implements transport.Provider.
func (p *Provider) Name() string {
	return transport.NameLocalBroadcast
}

// Send implements transport.Provider: publish own snapshot, collect
// everyone else's latest.
func (p *Provider) Send(ctx context.Context, snapshot *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, transport.NewError(p.Name(), true, err)
	}

	p.hub.publish(p.key, snapshot)
	return p.hub.others(p.key), nil
}
