// Package dbconfig holds the Postgres settings shared by the snapshot
// repository and the sales log.
package dbconfig

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`

	// MaxConns caps the sales log pool; 0 keeps the pgx default.
	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Default returns settings for a local development database.
func Default() Config {
	return Config{
		Host:           "localhost",
		Port:           5432,
		User:           "postgres",
		Password:       "postgres",
		Database:       "fantasta",
		SSLMode:        "disable",
		ConnectTimeout: 5 * time.Second,
	}
}

var sslModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate rejects settings no driver could connect with.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("database host is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port %d", c.Port)
	}
	if c.Database == "" {
		return errors.New("database name is empty")
	}
	if !sslModes[c.SSLMode] {
		return fmt.Errorf("invalid database sslmode %q", c.SSLMode)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("invalid database max_conns %d", c.MaxConns)
	}
	return nil
}

// DSN returns the Postgres connection URL understood by both lib/pq and pgx.
// Credentials are escaped.
func (c Config) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if secs := int(c.ConnectTimeout / time.Second); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
