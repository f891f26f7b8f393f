package config

import "fmt"

// validate validates the gateway configuration.
func validate(cfg *Config) error {
	if cfg.Zello.URL == "" {
		return fmt.Errorf("zello.zelloUrl is required")
	}
	if cfg.Zello.Username == "" && cfg.Zello.AuthToken == "" {
		return fmt.Errorf("zello.zelloUsername or zello.zelloAuthToken is required")
	}
	if cfg.Zello.Channel == "" {
		return fmt.Errorf("zello.zelloChannel is required")
	}
	if cfg.Zello.PingInterval < 0 {
		return fmt.Errorf("zello.zelloPingInterval must not be negative")
	}

	if cfg.FNEPeer.Port <= 0 || cfg.FNEPeer.Port > 65535 {
		return fmt.Errorf("fnePeer.port must be between 1 and 65535")
	}
	if cfg.FNEPeer.MasterIP == "" {
		return fmt.Errorf("fnePeer.masterIp is required")
	}
	if cfg.FNEPeer.MasterPort <= 0 || cfg.FNEPeer.MasterPort > 65535 {
		return fmt.Errorf("fnePeer.masterPort must be between 1 and 65535")
	}
	if cfg.FNEPeer.Passphrase == "" {
		return fmt.Errorf("fnePeer.passphrase is required")
	}
	if cfg.FNEPeer.RadioID <= 0 {
		return fmt.Errorf("fnePeer.radioId is required")
	}

	if cfg.Bridge.TxMode != 1 && cfg.Bridge.TxMode != 2 {
		return fmt.Errorf("bridge.txMode must be 1 (DMR) or 2 (P25)")
	}
	if cfg.Bridge.Timeslot != 0 && cfg.Bridge.Timeslot != 1 && cfg.Bridge.Timeslot != 2 {
		return fmt.Errorf("bridge.timeslot must be 0 (unset), 1, or 2")
	}
	if cfg.Bridge.DropTimeMs < 0 {
		return fmt.Errorf("bridge.dropTimeMs must not be negative")
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
	}

	return nil
}
