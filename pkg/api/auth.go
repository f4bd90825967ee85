package api

// RegisterRequest registers a device under an account. AuthKeyHash is the
// hex-encoded SHA-256 of the argon2-derived account auth key; the server
// never sees the passphrase.
type RegisterRequest struct {
	AccountID   string `json:"account_id"`
	DeviceID    string `json:"device_id"`
	AuthKeyHash string `json:"auth_key_hash"`
}

// RegisterResponse acknowledges a (possibly repeated) registration.
type RegisterResponse struct {
	Message string `json:"message"`
}

// LoginRequest authenticates a registered device.
type LoginRequest struct {
	AccountID   string `json:"account_id"`
	DeviceID    string `json:"device_id"`
	AuthKeyHash string `json:"auth_key_hash"`
}

// TokenResponse carries the access token for snapshot endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}
