package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/extsync/internal/agent/keys"
	"github.com/iudanet/extsync/internal/storage"
	"github.com/iudanet/extsync/pkg/api"
)

// Register enrolls this device with the relay.
func (c *Cli) Register(ctx context.Context) error {
	c.io.Println("=== Device Registration ===")
	c.io.Println()

	accountID, err := c.io.ReadInput("Account ID: ")
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}

	passphrase, err := c.io.ReadPassword("Account passphrase: ")
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	confirm, err := c.io.ReadPassword("Confirm passphrase: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if passphrase != confirm {
		return fmt.Errorf("passphrases do not match")
	}

	deviceID, err := c.ensureDeviceID(ctx)
	if err != nil {
		return err
	}

	authKey, err := keys.DeriveAuthKey(passphrase, accountID)
	if err != nil {
		return fmt.Errorf("failed to derive auth key: %w", err)
	}

	c.io.Println()
	c.io.Println("Registering device...")

	_, err = c.api.Register(ctx, api.RegisterRequest{
		AccountID:   accountID,
		DeviceID:    deviceID,
		AuthKeyHash: keys.AuthKeyHash(authKey),
	})
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("Device registered.")
	c.io.Printf("Account: %s\n", accountID)
	c.io.Printf("Device:  %s\n", deviceID)
	c.io.Println()
	c.io.Println("Run 'extsync login' to start syncing.")
	return nil
}

func (c *Cli) ensureDeviceID(ctx context.Context) (string, error) {
	return EnsureDeviceID(ctx, c.kv)
}

// EnsureDeviceID returns the persisted device id, generating one on first
// use. The id is stable across sessions; merge provenance depends on it.
func EnsureDeviceID(ctx context.Context, kv storage.KV) (string, error) {
	data, err := kv.Get(ctx, storage.KeyDeviceID)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to load device id: %w", err)
	}

	deviceID := uuid.New().String()
	if err := kv.Set(ctx, storage.KeyDeviceID, []byte(deviceID)); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return deviceID, nil
}
