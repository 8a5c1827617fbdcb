// Package config loads the daemon configuration: listen address, identity
// key location, session-engine tuning, and the static peer list.
package config

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	// CfgFile overrides the default config file location (set by the
	// -config flag before InitConfig runs).
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

// BaseDirName is the per-user configuration directory under $HOME.
const BaseDirName = ".cjdns-go"

// InitConfig wires viper to the config file, loading defaults and creating
// the file on first run.
func InitConfig() {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildConfigDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	handleConfigFile()
}

// BuildConfigDirPath returns $HOME/.cjdns-go, falling back to the working
// directory when HOME is unset.
func BuildConfigDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.WithError(err).Warn("cannot determine home directory, using working directory")
		return BaseDirName
	}
	return filepath.Join(home, BaseDirName)
}

func setDefaults() {
	def := DefaultNodeConfig()
	viper.SetDefault("listen_address", def.ListenAddress)
	viper.SetDefault("key_dir", def.KeyDir)
	viper.SetDefault("password", "")

	viper.SetDefault("session.replay_window", def.Session.ReplayWindow)
	viper.SetDefault("session.inactivity_timeout", def.Session.InactivityTimeout)
	viper.SetDefault("session.handshake_timeout", def.Session.HandshakeTimeout)
	viper.SetDefault("session.max_buffered_payloads", def.Session.MaxBufferedPayloads)
	viper.SetDefault("session.sweep_interval", def.Session.SweepInterval)

	viper.SetDefault("peers", []PeerConfig{})
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && CfgFile == "" {
			createDefaultConfigFile()
		} else {
			log.WithError(err).Warn("failed to read config file, using defaults")
		}
	}
}

// createDefaultConfigFile writes the default configuration so users have a
// file to edit on first run.
func createDefaultConfigFile() {
	dir := BuildConfigDirPath()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.WithError(err).Warn("failed to create config directory")
		return
	}
	path := filepath.Join(dir, "config.yaml")
	out, err := yaml.Marshal(defaultConfigDocument())
	if err != nil {
		log.WithError(err).Warn("failed to serialize default config")
		return
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		log.WithError(err).Warn("failed to write default config file")
		return
	}
	if err := viper.ReadInConfig(); err != nil {
		log.WithError(err).Warn("failed to re-read created config file")
	}
	log.WithField("path", path).Info("created default config file")
}

// NewNodeConfigFromViper builds a NodeConfig from the current viper state.
// Preferred over global state so tests can construct configs directly.
func NewNodeConfigFromViper() *NodeConfig {
	cfg := DefaultNodeConfig()
	cfg.ListenAddress = viper.GetString("listen_address")
	cfg.KeyDir = viper.GetString("key_dir")
	cfg.Password = viper.GetString("password")

	cfg.Session.ReplayWindow = viper.GetUint64("session.replay_window")
	cfg.Session.InactivityTimeout = viper.GetDuration("session.inactivity_timeout")
	cfg.Session.HandshakeTimeout = viper.GetDuration("session.handshake_timeout")
	cfg.Session.MaxBufferedPayloads = viper.GetInt("session.max_buffered_payloads")
	cfg.Session.SweepInterval = viper.GetDuration("session.sweep_interval")

	var peers []PeerConfig
	if err := viper.UnmarshalKey("peers", &peers); err != nil {
		log.WithError(err).Warn("failed to parse peers list, ignoring")
		peers = nil
	}
	cfg.Peers = peers
	return cfg
}
