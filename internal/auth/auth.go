// Package auth carries engine credentials into connect URLs and REST
// request headers.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Query parameter names the engine socket expects.
const (
	ParamKeyID    = "apiKeyId"
	ParamSecret   = "apiKeySecret"
	ParamServerID = "serverId"
)

// Header names for engine REST requests.
const (
	HeaderKeyID  = "X-Api-Key"
	HeaderSecret = "X-Api-Secret"
)

// Credentials holds the key pair and the server identity this relay
// attaches to.
type Credentials struct {
	KeyID    string
	Secret   string
	ServerID string
}

// NewCredentials validates and returns the credential set.
func NewCredentials(keyID, secret, serverID string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("API key ID is required")
	}
	if secret == "" {
		return nil, errors.New("API key secret is required")
	}
	if serverID == "" {
		return nil, errors.New("server ID is required")
	}
	return &Credentials{
		KeyID:    keyID,
		Secret:   secret,
		ServerID: serverID,
	}, nil
}

// ConnectURL returns base with the credential query parameters attached.
// Query parameters already on base survive.
func (c *Credentials) ConnectURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set(ParamKeyID, c.KeyID)
	q.Set(ParamSecret, c.Secret)
	q.Set(ParamServerID, c.ServerID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Apply sets the auth headers on a REST request.
func (c *Credentials) Apply(req *http.Request) {
	req.Header.Set(HeaderKeyID, c.KeyID)
	req.Header.Set(HeaderSecret, c.Secret)
}

// Redacted masks the secret in a connect URL so it is safe to log.
func Redacted(connectURL string) string {
	u, err := url.Parse(connectURL)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	if q.Has(ParamSecret) {
		q.Set(ParamSecret, "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
