// Package config assembles the process settings from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/auction/replication"
	"github.com/mcdev12/fantasta/go/internal/dbconfig"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
		// AuthorityURL is where a follower forwards commands.
		AuthorityURL string `yaml:"authority_url"`
	} `yaml:"server"`

	Instance struct {
		ID        string `yaml:"id"`
		Role      string `yaml:"role"`
		AuctionID string `yaml:"auction_id"`
	} `yaml:"instance"`

	LogLevel string `yaml:"log_level"`

	Auction struct {
		Standard         engine.TimingProfile `yaml:"standard"`
		Rehearsal        engine.TimingProfile `yaml:"rehearsal"`
		RehearsalCredits int                  `yaml:"rehearsal_credits"`
		TickInterval     time.Duration        `yaml:"tick_interval"`
	} `yaml:"auction"`

	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
		ConsumerName  string `yaml:"consumer"`
	} `yaml:"nats"`

	Database struct {
		Enabled bool `yaml:"enabled"`

		// Restore warm-starts an authority from the stored snapshot.
		Restore     bool            `yaml:"restore"`
		SalesLog    bool            `yaml:"sales_log"`
		SalesBuffer int             `yaml:"sales_buffer"`
		Postgres    dbconfig.Config `yaml:"postgres"`
	} `yaml:"database"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Instance.Role = coordinator.RoleAuthority.String()
	c.Instance.AuctionID = "fantasta"
	c.LogLevel = "info"
	c.Auction.Standard = engine.StandardProfile
	c.Auction.Rehearsal = engine.RehearsalProfile
	c.Auction.RehearsalCredits = engine.RehearsalCredits
	c.Auction.TickInterval = time.Second

	js := replication.DefaultJetStreamConfig()
	c.NATS.URL = js.URL
	c.NATS.StreamName = js.StreamName
	c.NATS.SubjectPrefix = js.SubjectPrefix
	c.NATS.ConsumerName = js.ConsumerName

	c.Database.Restore = true
	c.Database.SalesLog = true
	c.Database.SalesBuffer = 128
	c.Database.Postgres = dbconfig.Default()
	return &c
}

// Load reads path (if non-empty) over the defaults and then applies
// environment overrides.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Server.AuthorityURL = getEnv("AUTHORITY_URL", c.Server.AuthorityURL)
	c.Instance.ID = getEnv("INSTANCE_ID", c.Instance.ID)
	c.Instance.Role = getEnv("INSTANCE_ROLE", c.Instance.Role)
	c.Instance.AuctionID = getEnv("AUCTION_ID", c.Instance.AuctionID)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Auction.RehearsalCredits = getEnvAsInt("REHEARSAL_CREDITS", c.Auction.RehearsalCredits)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Database.Enabled = getEnvAsBool("DB_ENABLED", c.Database.Enabled)

	pg := &c.Database.Postgres
	pg.Host = getEnv("DB_HOST", pg.Host)
	pg.Port = getEnvAsInt("DB_PORT", pg.Port)
	pg.User = getEnv("DB_USER", pg.User)
	pg.Password = getEnv("DB_PASSWORD", pg.Password)
	pg.Database = getEnv("DB_NAME", pg.Database)
	pg.SSLMode = getEnv("DB_SSLMODE", pg.SSLMode)
	pg.MaxConns = int32(getEnvAsInt("DB_MAX_CONNS", int(pg.MaxConns)))

	if c.Instance.ID == "" {
		c.Instance.ID = defaultInstanceID()
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects settings the process cannot run with.
func (c *Config) Validate() error {
	role, err := coordinator.ParseRole(c.Instance.Role)
	if err != nil {
		return err
	}
	if role == coordinator.RoleFollower && c.Server.AuthorityURL == "" {
		return errors.New("a follower needs server.authority_url")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Auction.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval %s", c.Auction.TickInterval)
	}
	if c.Auction.RehearsalCredits < 0 {
		return fmt.Errorf("invalid rehearsal credits %d", c.Auction.RehearsalCredits)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Database.Enabled {
		if err := c.Database.Postgres.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Role returns the parsed instance role. Validate has already checked it.
func (c *Config) Role() coordinator.Role {
	role, _ := coordinator.ParseRole(c.Instance.Role)
	return role
}

// Level returns the zerolog level, info when unset.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// JetStream returns the replication settings.
func (c *Config) JetStream() replication.JetStreamConfig {
	js := replication.DefaultJetStreamConfig()
	js.URL = c.NATS.URL
	if c.NATS.StreamName != "" {
		js.StreamName = c.NATS.StreamName
	}
	if c.NATS.SubjectPrefix != "" {
		js.SubjectPrefix = c.NATS.SubjectPrefix
	}
	if c.NATS.ConsumerName != "" {
		js.ConsumerName = c.NATS.ConsumerName
	}
	return js
}

// EngineOptions turns the auction settings into engine options.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithProfiles(c.Auction.Standard, c.Auction.Rehearsal),
		engine.WithRehearsalCredits(c.Auction.RehearsalCredits),
	}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "fantasta"
	}
	return host + "-" + uuid.NewString()[:8]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
