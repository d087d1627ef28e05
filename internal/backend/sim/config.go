package sim

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// DeviceSpec describes one simulated device in the configuration file.
type DeviceSpec struct {
	Model     string  `toml:"model" json:"model"`
	Vendor    string  `toml:"vendor" json:"vendor"`
	Serial    string  `toml:"serial" json:"serial"`
	Width     int     `toml:"width" json:"width"`
	Height    int     `toml:"height" json:"height"`
	FrameRate float64 `toml:"frame_rate" json:"frame_rate"`
	PoolSize  int     `toml:"pool_size" json:"pool_size"`
}

// Config is the complete simulated device file (devices.toml).
type Config struct {
	Version int                   `toml:"version" json:"version"`
	Devices map[string]DeviceSpec `toml:"devices" json:"devices"`
}

// DefaultConfig returns a single-device simulator configuration.
func DefaultConfig() Config {
	return Config{
		Version: 1,
		Devices: map[string]DeviceSpec{
			"sim-0": {
				Model:     "TLSimu",
				Vendor:    "camnode",
				Serial:    "SIM00000",
				Width:     128,
				Height:    96,
				FrameRate: 1000,
				PoolSize:  4,
			},
		},
	}
}

// LoadConfig loads the device file. A missing file yields DefaultConfig so
// the simulator is usable without any on-disk configuration.
func LoadConfig(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read device config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse device config: %w", err)
	}

	if cfg.Devices == nil {
		cfg.Devices = make(map[string]DeviceSpec)
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	for id, spec := range cfg.Devices {
		cfg.Devices[id] = normalizeSpec(spec)
	}

	return cfg, nil
}

// normalizeSpec fills unset fields with usable defaults.
func normalizeSpec(spec DeviceSpec) DeviceSpec {
	if spec.Width <= 0 {
		spec.Width = 128
	}
	if spec.Height <= 0 {
		spec.Height = 96
	}
	if spec.FrameRate <= 0 {
		spec.FrameRate = 1000
	}
	if spec.PoolSize <= 0 {
		spec.PoolSize = 4
	}
	if spec.Model == "" {
		spec.Model = "TLSimu"
	}
	return spec
}

// sortedIDs returns device IDs in stable enumeration order.
func sortedIDs(devices map[string]DeviceSpec) []string {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
