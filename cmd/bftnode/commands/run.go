package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mosaicnetworks/bftnode/src/config"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/mosaicnetworks/bftnode/src/net"
	"github.com/mosaicnetworks/bftnode/src/node"
	"github.com/mosaicnetworks/bftnode/src/peers"
	"github.com/mosaicnetworks/bftnode/src/service"
	"github.com/mosaicnetworks/bftnode/src/store"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// NewRunCmd returns the command that starts a node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	conf := &_config.Node
	logger := conf.Logger()

	key, err := keys.NewSimpleKeyfile(conf.Keyfile()).ReadKey()
	if err != nil {
		logger.WithError(err).Error("Cannot read private key")
		return err
	}
	conf.Key = key

	peerSet, err := peers.NewJSONPeerSet(conf.DataDir).PeerSet()
	if err != nil {
		logger.WithError(err).Error("Cannot read peers")
		return err
	}

	validator, err := node.NewValidator(key, conf.Moniker, peerSet)
	if err != nil {
		logger.WithError(err).Error("Cannot create validator")
		return err
	}

	st, err := newStore(conf)
	if err != nil {
		logger.WithError(err).Error("Cannot open store")
		return err
	}

	trans, err := net.NewTCPTransport(
		conf.BindAddr,
		conf.AdvertiseAddr,
		conf.MaxPool,
		conf.TCPTimeout,
		conf.MaxMessageSize,
		logger.WithField("ns", "net"),
	)
	if err != nil {
		st.Close()
		logger.WithError(err).Error("Cannot create transport")
		return err
	}

	n := node.NewNode(conf, validator, peerSet, st, trans)

	if conf.ServiceAddr != "" {
		srv := service.NewService(conf.ServiceAddr, n, logger.WithField("ns", "service"))
		go srv.Serve()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return n.Run(ctx)
}

func newStore(conf *config.Config) (store.Store, error) {
	if !conf.Store {
		return store.NewInmemStore(conf.CacheSize), nil
	}
	return store.LoadOrCreateBadgerStore(
		conf.CacheSize,
		conf.DatabaseDir,
		conf.Logger().WithField("ns", "store"),
	)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Node.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Node.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")
	cmd.Flags().String("moniker", _config.Node.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Node.BindAddr, "Listen IP:Port for the node")
	cmd.Flags().StringP("advertise", "a", _config.Node.AdvertiseAddr, "Advertise IP:Port for the node")
	cmd.Flags().Uint8("network-id", _config.Node.NetworkID, "Network ID written in message headers")
	cmd.Flags().DurationP("timeout", "t", _config.Node.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Node.MaxPool, "Connection pool size max")
	cmd.Flags().StringP("service-listen", "s", _config.Node.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Int("max-message-size", _config.Node.MaxMessageSize, "Largest frame accepted from a peer")

	// Store
	cmd.Flags().Bool("store", _config.Node.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Node.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.Node.CacheSize, "Number of messages kept in memory")

	// Node configuration
	cmd.Flags().Duration("status-timeout", _config.Node.StatusTimeout, "Time between Status broadcasts")
	cmd.Flags().Int("channel-capacity", _config.Node.ChannelCapacity, "Buffer size of event queues")
	cmd.Flags().Int("max-backlog", _config.Node.MaxBacklog, "Items kept per event queue when it is full")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Node.SetDataDir(_config.Node.DataDir)

	_config.Node.SetLogger(newLogger(_config.Node.LogLevel, _config.LogFile))

	logFields := logrus.Fields{
		"node.DataDir":         _config.Node.DataDir,
		"node.BindAddr":        _config.Node.BindAddr,
		"node.AdvertiseAddr":   _config.Node.AdvertiseAddr,
		"node.ServiceAddr":     _config.Node.ServiceAddr,
		"node.NetworkID":       _config.Node.NetworkID,
		"node.MaxPool":         _config.Node.MaxPool,
		"node.Store":           _config.Node.Store,
		"node.LogLevel":        _config.Node.LogLevel,
		"node.Moniker":         _config.Node.Moniker,
		"node.StatusTimeout":   _config.Node.StatusTimeout,
		"node.TCPTimeout":      _config.Node.TCPTimeout,
		"node.MaxMessageSize":  _config.Node.MaxMessageSize,
		"node.ChannelCapacity": _config.Node.ChannelCapacity,
		"node.MaxBacklog":      _config.Node.MaxBacklog,
		"node.CacheSize":       _config.Node.CacheSize,
		"LogFile":              _config.LogFile,
	}

	if _config.Node.Store {
		logFields["node.DatabaseDir"] = _config.Node.DatabaseDir
	}

	_config.Node.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/bftnode.toml (.json, .yaml also work)
	viper.SetConfigName("bftnode")            // name of config file (without extension)
	viper.AddConfigPath(_config.Node.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Node.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Node.Logger().Debugf("No config file found in: %s", _config.Node.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// newLogger builds the node logger. When logFile is set, every level is also
// written to that file.
func newLogger(level, logFile string) *logrus.Logger {
	logger := logrus.New()
	logger.Level = config.LogLevel(level)
	logger.Formatter = new(prefixed.TextFormatter)

	if logFile == "" {
		return logger
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logger.Info(fmt.Sprintf("Failed to open %s, using default stderr", logFile))
		return logger
	}
	f.Close()

	pathMap := lfshook.PathMap{}
	for _, l := range logrus.AllLevels {
		pathMap[l] = logFile
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
