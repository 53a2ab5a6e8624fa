// Package config loads server configuration from YAML with optional
// KEY=value command-line overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`

	Kafka struct {
		Brokers            []string `yaml:"brokers"`
		CommandsTopic      string   `yaml:"commands_topic"`
		NotificationsTopic string   `yaml:"notifications_topic"`
		TradesTopic        string   `yaml:"trades_topic"`
		Group              string   `yaml:"group"`
	} `yaml:"kafka"`

	Journal struct {
		Dir string `yaml:"dir"`
	} `yaml:"journal"`

	Session struct {
		// Local wall-clock timestamps, "2006-01-02 15:04:05".
		// Empty start means open immediately; empty end means no close.
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"session"`
}

func Default() *Config {
	c := &Config{}
	c.Server.Listen = ":8080"
	c.Kafka.CommandsTopic = "orderbook.commands"
	c.Kafka.NotificationsTopic = "orderbook.notifications"
	c.Kafka.TradesTopic = "orderbook.trades"
	c.Kafka.Group = "orderbook-server"
	c.Journal.Dir = "data/journal"
	return c
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error so the server can start with defaults alone.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// ApplyOverrides applies KEY=value pairs on top of the loaded config.
// Keys use dotted lowercase paths, e.g. server.listen=:9090 or
// kafka.brokers=localhost:9092,localhost:9093.
func (c *Config) ApplyOverrides(args []string) error {
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("override %q: want KEY=value", arg)
		}
		switch key {
		case "server.listen":
			c.Server.Listen = value
		case "kafka.brokers":
			c.Kafka.Brokers = splitNonEmpty(value)
		case "kafka.commands_topic":
			c.Kafka.CommandsTopic = value
		case "kafka.notifications_topic":
			c.Kafka.NotificationsTopic = value
		case "kafka.trades_topic":
			c.Kafka.TradesTopic = value
		case "kafka.group":
			c.Kafka.Group = value
		case "journal.dir":
			c.Journal.Dir = value
		case "session.start":
			c.Session.Start = value
		case "session.end":
			c.Session.End = value
		default:
			return fmt.Errorf("override %q: unknown key", arg)
		}
	}
	return nil
}

const timeLayout = "2006-01-02 15:04:05"

// SessionWindow parses the configured session bounds. Zero times mean
// "open now" and "never close" respectively.
func (c *Config) SessionWindow() (start, end time.Time, err error) {
	if c.Session.Start != "" {
		start, err = time.ParseInLocation(timeLayout, c.Session.Start, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("session.start: %w", err)
		}
	}
	if c.Session.End != "" {
		end, err = time.ParseInLocation(timeLayout, c.Session.End, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("session.end: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("session.end %s is not after session.start %s", c.Session.End, c.Session.Start)
	}
	return start, end, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
