// Package native implements the NativeStorageChannel provider: browser
// contexts on the same machine exchange snapshots through a shared bbolt
// keyspace file, the platform-native storage medium.
package native

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/transport"
)

var bucketChannel = []byte("channel")

// Provider publishes the device's latest snapshot under its own key and
// reads every other participant's latest on each send.
type Provider struct {
	db  *bbolt.DB
	key string
}

// New opens the shared channel file. key must be unique per participant
// (deviceId plus browser context).
func New(path, key string) (*Provider, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open native channel: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChannel)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create channel bucket: %w", err)
	}

	return &Provider{db: db, key: key}, nil
}

// Close releases the channel file.
func (p *Provider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Name implements transport.Provider.
func (p *Provider) Name() string {
	return transport.NameNativeStorage
}

// Send implements transport.Provider.
func (p *Provider) Send(ctx context.Context, snapshot *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, transport.NewError(p.Name(), true, err)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, transport.NewError(p.Name(), false, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	var others []*models.SyncSnapshot
	err = p.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketChannel)
		if bucket == nil {
			return fmt.Errorf("channel bucket missing")
		}

		if err := bucket.Put([]byte(p.key), data); err != nil {
			return fmt.Errorf("failed to publish snapshot: %w", err)
		}

		return bucket.ForEach(func(k, v []byte) error {
			if string(k) == p.key {
				return nil
			}
			var snap models.SyncSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				// One corrupt participant entry must not poison the channel.
				return nil
			}
			others = append(others, &snap)
			return nil
		})
	})
	if err != nil {
		return nil, transport.NewError(p.Name(), true, err)
	}

	return others, nil
}
