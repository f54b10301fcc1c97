// Package config loads the three persistent settings of the filesystem
// client from the environment: an enable gate, the server address and the
// server port. A missing variable falls back to its default; a malformed
// one is an error, never a panic.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Environment variable names.
const (
	EnvEnable = "NINEP_ENABLE"
	EnvIP     = "NINEP_IP"
	EnvPort   = "NINEP_PORT"
)

// DefaultPort is the registered 9P port, used when NINEP_PORT is unset.
const DefaultPort = 564

// Config is the loaded subsystem configuration.
type Config struct {
	// Enable gates the whole subsystem: when false no socket is opened
	// and no worker is started.
	Enable bool

	// IP is the IPv4 address of the 9P server.
	IP net.IP

	// Port is the server's TCP port.
	Port uint16
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{Port: DefaultPort}

	if v := os.Getenv(EnvEnable); v != "" {
		switch v {
		case "0":
		case "1":
			cfg.Enable = true
		default:
			return Config{}, fmt.Errorf("config: %s must be 0 or 1, got %q", EnvEnable, v)
		}
	}

	if v := os.Getenv(EnvIP); v != "" {
		ip := net.ParseIP(v)
		if ip == nil || ip.To4() == nil {
			return Config{}, fmt.Errorf("config: %s is not an IPv4 address: %q", EnvIP, v)
		}
		cfg.IP = ip.To4()
	}

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil || port == 0 {
			return Config{}, fmt.Errorf("config: %s must be 1-65535, got %q", EnvPort, v)
		}
		cfg.Port = uint16(port)
	}

	return cfg, nil
}

// Addr formats the host:port dial address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.IP.String(), strconv.Itoa(int(c.Port)))
}
