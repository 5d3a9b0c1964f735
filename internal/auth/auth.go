// Package auth provides exchange API authentication using HMAC-SHA256
// request signatures over L2 API credentials.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Credentials holds the signer address and L2 API credentials.
// Key lifecycle (derivation, rotation) is handled outside this process;
// credentials arrive via configuration.
type Credentials struct {
	Address    string // Signer address, sent as-is in the address header
	APIKey     string
	APISecret  string // base64url-encoded HMAC key
	Passphrase string
}

// LoadCredentials validates and returns credentials.
func LoadCredentials(address, apiKey, apiSecret, passphrase string) (*Credentials, error) {
	if address == "" {
		return nil, fmt.Errorf("signer address is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if apiSecret == "" {
		return nil, fmt.Errorf("API secret is required")
	}
	if _, err := base64.URLEncoding.DecodeString(apiSecret); err != nil {
		return nil, fmt.Errorf("decode API secret: %w", err)
	}

	return &Credentials{
		Address:    address,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		Passphrase: passphrase,
	}, nil
}

// SignRequest generates authentication headers for an exchange API request.
// body may be nil for requests without a payload.
func (c *Credentials) SignRequest(method, path string, body []byte) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	signature, err := c.sign(timestamp, method, path, body)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"POLY_ADDRESS":    c.Address,
		"POLY_API_KEY":    c.APIKey,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_SIGNATURE":  signature,
	}, nil
}

// sign computes base64url(HMAC-SHA256(secret, timestamp + method + path + body)).
func (c *Credentials) sign(timestamp, method, path string, body []byte) (string, error) {
	key, err := base64.URLEncoding.DecodeString(c.APISecret)
	if err != nil {
		return "", fmt.Errorf("decode API secret: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	if len(body) > 0 {
		mac.Write(body)
	}

	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
