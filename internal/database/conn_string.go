package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/emberworks/enginelink/internal/config"
)

// BuildConnString renders cfg as a postgres:// URL in the form pgxpool
// accepts. Credentials are escaped, so passwords may contain URL
// metacharacters.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
