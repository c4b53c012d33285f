package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const DefaultLookupTimeout = 5 * time.Second

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	// RequireAuth rejects websocket upgrades without a valid token cookie
	// and pins presence claims to the token's user.
	RequireAuth bool
	// LookupTimeout bounds every authorization lookup against the database.
	LookupTimeout time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}

	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}

	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, requireAuth bool, lookupTimeout time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if lookupTimeout < 0 {
		return nil, fmt.Errorf("lookup timeout cannot be negative")
	}
	if lookupTimeout == 0 {
		lookupTimeout = DefaultLookupTimeout
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		RequireAuth:    requireAuth,
		LookupTimeout:  lookupTimeout,
	}, nil
}
