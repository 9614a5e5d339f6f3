package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
}

type DatabaseConfig struct {
	// Empty DSN runs the server on the in-memory store.
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

type WebRTCConfig struct {
	STUNServers  []string `yaml:"stun_servers" env-default:""`
	TURNServers  []string `yaml:"turn_servers" env-default:""`
	TURNUsername string   `yaml:"turn_username" env:"TURN_USERNAME" env-default:""`
	TURNPassword string   `yaml:"turn_password" env:"TURN_PASSWORD" env-default:""`
}

type HeartbeatConfig struct {
	Interval      time.Duration `yaml:"interval" env-default:"15s"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"10s"`
	// MaxMissed heartbeats in a row before the identity is evicted.
	MaxMissed int `yaml:"max_missed" env-default:"3"`
}

type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env-default:"3"`
	BaseDelay   time.Duration `yaml:"base_delay" env-default:"2s"`
	MaxDelay    time.Duration `yaml:"max_delay" env-default:"10s"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = 15 * time.Second
	}
	if c.Heartbeat.SweepInterval <= 0 {
		c.Heartbeat.SweepInterval = 10 * time.Second
	}
	if c.Heartbeat.MaxMissed <= 0 {
		c.Heartbeat.MaxMissed = 3
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = 3
	}
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect.BaseDelay = 2 * time.Second
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		c.Reconnect.MaxDelay = 10 * time.Second
	}
}

// MaxIdle is how long an identity may stay silent before the sweeper
// treats it as disconnected.
func (c HeartbeatConfig) MaxIdle() time.Duration {
	return c.Interval * time.Duration(c.MaxMissed)
}
