// Package config loads relay configuration from defaults, an optional YAML
// file and HELPHUB_* environment overrides. The two secrets of the external
// contract (KEYSTORE_PASSWORD, ADMIN_PASSWORD) are read from plain
// environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	TCPPort   int
	WebPort   int
	AdminPort int

	DataDir        string
	QueuePath      string
	KeystorePath   string
	WebRoot        string
	MessageLogPath string
	ServiceName    string

	// KeystorePassword unlocks the server's private key. The server exits
	// on absence.
	KeystorePassword string

	// AdminPassword authenticates the control plane. Absent or empty means
	// every control-plane request is rejected.
	AdminPassword string

	// connTimeout holds the framed-connection timeout in nanoseconds. It is
	// atomic so a config-file watch can retune the sweeper at runtime.
	connTimeout atomic.Int64

	file string
}

// ConnectionTimeout is the inactivity window after which a framed session
// is classified as a zombie. Also the sweep period.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.connTimeout.Load())
}

func (c *Config) setConnectionTimeout(d time.Duration) {
	c.connTimeout.Store(int64(d))
}

func newViper(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("tcp_port", 5000)
	v.SetDefault("web_port", 8080)
	v.SetDefault("admin_port", 5001)
	v.SetDefault("data_dir", "data")
	v.SetDefault("keystore_path", "helphub.keystore")
	v.SetDefault("webapp_dir", "webapp")
	v.SetDefault("message_log", "logs/messages.log")
	v.SetDefault("service_name", "HelpHub Relay")
	v.SetDefault("connection_timeout_ms", 45000)

	v.SetEnvPrefix("HELPHUB")
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Load builds the configuration. file may be empty, in which case defaults
// and environment overrides apply.
func Load(file string) (*Config, error) {
	v, err := newViper(file)
	if err != nil {
		return nil, err
	}

	keystorePassword := os.Getenv("KEYSTORE_PASSWORD")
	if keystorePassword == "" {
		return nil, errors.New("KEYSTORE_PASSWORD environment variable not set")
	}

	cfg := &Config{
		TCPPort:          v.GetInt("tcp_port"),
		WebPort:          v.GetInt("web_port"),
		AdminPort:        v.GetInt("admin_port"),
		DataDir:          v.GetString("data_dir"),
		KeystorePath:     v.GetString("keystore_path"),
		WebRoot:          v.GetString("webapp_dir"),
		MessageLogPath:   v.GetString("message_log"),
		ServiceName:      v.GetString("service_name"),
		KeystorePassword: keystorePassword,
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		file:             file,
	}
	cfg.QueuePath = filepath.Join(cfg.DataDir, "emergency.db")
	cfg.setConnectionTimeout(time.Duration(v.GetInt("connection_timeout_ms")) * time.Millisecond)
	return cfg, nil
}
