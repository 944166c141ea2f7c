package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/events"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultBindAddr        = "127.0.0.1:1337"
	DefaultNetworkID       = messages.DefaultNetworkID
	DefaultStatusTimeout   = 5000 * time.Millisecond
	DefaultTCPTimeout      = 1000 * time.Millisecond
	DefaultMaxMessageSize  = 16 * 1024 * 1024
	DefaultChannelCapacity = events.DefaultCapacity
	DefaultMaxBacklog      = events.DefaultMaxBacklog
	DefaultCacheSize       = 10000
	DefaultMaxPool         = 2
	DefaultStore           = false
)

// Config contains all the configuration properties of a node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port where this node listens for peers.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes, when BindAddr is not routable.
	AdvertiseAddr string `mapstructure:"advertise"`

	// ServiceAddr is the IP:PORT of the HTTP API service. Empty disables it.
	ServiceAddr string `mapstructure:"service-listen"`

	// NetworkID is written in the header of every outgoing message. Messages
	// carrying another network ID are dropped.
	NetworkID uint8 `mapstructure:"network-id"`

	// StatusTimeout is the period at which the node broadcasts its Status.
	StatusTimeout time.Duration `mapstructure:"status-timeout"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of outbound connections and writes.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// MaxMessageSize is the largest frame accepted from a peer.
	MaxMessageSize int `mapstructure:"max-message-size"`

	// ChannelCapacity is the buffer size of each queue between the node's
	// collaborators and its event loop.
	ChannelCapacity int `mapstructure:"channel-capacity"`

	// MaxBacklog is the number of items each queue holds once its channel is
	// full. Further items are logged and dropped.
	MaxBacklog int `mapstructure:"max-backlog"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the number of messages the in-memory log keeps.
	CacheSize int `mapstructure:"cache-size"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the validator.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		BindAddr:        DefaultBindAddr,
		NetworkID:       DefaultNetworkID,
		StatusTimeout:   DefaultStatusTimeout,
		TCPTimeout:      DefaultTCPTimeout,
		MaxMessageSize:  DefaultMaxMessageSize,
		ChannelCapacity: DefaultChannelCapacity,
		MaxBacklog:      DefaultMaxBacklog,
		CacheSize:       DefaultCacheSize,
		MaxPool:         DefaultMaxPool,
		Store:           DefaultStore,
		DatabaseDir:     DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// SetLogger replaces the logger, for example to add hooks.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// Logger returns a formatted logrus Entry, with prefix set to "bftnode".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "bftnode")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".BFTNode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "BFTNode")
		} else {
			return filepath.Join(home, ".bftnode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level. Unknown values fall back
// to debug.
func LogLevel(l string) logrus.Level {
	level, err := logrus.ParseLevel(l)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}
