package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/extsync/internal/agent/keys"
	"github.com/iudanet/extsync/pkg/api"
)

// Login authenticates the device and stores the access token.
func (c *Cli) Login(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	accountID, err := c.io.ReadInput("Account ID: ")
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}

	passphrase, err := c.io.ReadPassword("Account passphrase: ")
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}

	deviceID, err := c.ensureDeviceID(ctx)
	if err != nil {
		return err
	}

	authKey, err := keys.DeriveAuthKey(passphrase, accountID)
	if err != nil {
		return fmt.Errorf("failed to derive auth key: %w", err)
	}

	resp, err := c.api.Login(ctx, api.LoginRequest{
		AccountID:   accountID,
		DeviceID:    deviceID,
		AuthKeyHash: keys.AuthKeyHash(authKey),
	})
	if err != nil {
		return err
	}

	state := &authState{
		AccountID:   accountID,
		DeviceID:    deviceID,
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Unix() + resp.ExpiresIn,
	}
	if err := c.saveAuth(ctx, state); err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("Logged in.")
	c.io.Printf("Token valid for %s\n", time.Duration(resp.ExpiresIn)*time.Second)
	return nil
}
