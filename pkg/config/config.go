package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config represents the gateway's full configuration.
type Config struct {
	Zello    ZelloConfig    `mapstructure:"zello"`
	FNEPeer  FNEPeerConfig  `mapstructure:"fnePeer"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ZelloConfig holds the Zello channel connection and JWT-signing
// parameters, field-for-field the configuration keys spec.md names.
type ZelloConfig struct {
	URL          string `mapstructure:"zelloUrl"`
	Username     string `mapstructure:"zelloUsername"`
	Password     string `mapstructure:"zelloPassword"`
	Channel      string `mapstructure:"zelloChannel"`
	AuthToken    string `mapstructure:"zelloAuthToken"`
	Issuer       string `mapstructure:"zelloIssuer"`
	PemFilePath  string `mapstructure:"zelloPemFilePath"`
	PingInterval int    `mapstructure:"zelloPingInterval"` // milliseconds
	AliasFile    string `mapstructure:"zelloAliasFile"`
}

// FNEPeerConfig holds the fnepeer.Client connection parameters, the same
// fields the teacher's SystemConfig carries for a PEER-mode system.
type FNEPeerConfig struct {
	IP         string `mapstructure:"ip"`
	Port       int    `mapstructure:"port"`
	MasterIP   string `mapstructure:"masterIp"`
	MasterPort int    `mapstructure:"masterPort"`
	Passphrase string `mapstructure:"passphrase"`
	RadioID    int    `mapstructure:"radioId"`
	Callsign   string `mapstructure:"callsign"`
	ColorCode  int    `mapstructure:"colorCode"`
}

// BridgeConfig holds CallBridge's routing and gain parameters.
type BridgeConfig struct {
	SourceID                 uint32  `mapstructure:"sourceId"`
	DestinationID            uint32  `mapstructure:"destinationId"`
	RepeaterID               uint32  `mapstructure:"repeaterId"`
	Timeslot                 int     `mapstructure:"timeslot"`
	TxMode                   int     `mapstructure:"txMode"` // 1=DMR, 2=P25
	OverrideSourceIDFromUDP  bool    `mapstructure:"overrideSourceIdFromUDP"`
	GrantDemand              bool    `mapstructure:"grantDemand"`
	RxAudioGain              float64 `mapstructure:"rxAudioGain"`
	TxAudioGain              float64 `mapstructure:"txAudioGain"`
	VocoderDecoderAudioGain  float64 `mapstructure:"vocoderDecoderAudioGain"`
	VocoderEncoderAudioGain  float64 `mapstructure:"vocoderEncoderAudioGain"`
	VocoderDecoderAutoGain   bool    `mapstructure:"vocoderDecoderAutoGain"`
	DropTimeMs               int     `mapstructure:"dropTimeMs"`
}

// MQTTConfig holds MQTT client configuration for call-event publishing.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// DatabaseConfig holds the SQLite CDR store path.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/zello-gateway")
	}

	viper.SetEnvPrefix("ZELLOGW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults.
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - also OK.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("zello.zelloUrl", "wss://zello.io/ws")
	viper.SetDefault("zello.zelloPingInterval", 30000)

	viper.SetDefault("fnePeer.port", 62031)
	viper.SetDefault("fnePeer.colorCode", 1)

	viper.SetDefault("bridge.timeslot", 1)
	viper.SetDefault("bridge.txMode", 2)
	viper.SetDefault("bridge.rxAudioGain", 1.0)
	viper.SetDefault("bridge.txAudioGain", 1.0)
	viper.SetDefault("bridge.vocoderDecoderAudioGain", 1.0)
	viper.SetDefault("bridge.vocoderEncoderAudioGain", 1.0)
	viper.SetDefault("bridge.dropTimeMs", 2000)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.topic_prefix", "zello-gateway")
	viper.SetDefault("mqtt.client_id", "zello-gateway")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retained", false)

	viper.SetDefault("database.path", "zello-gateway.db")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}
