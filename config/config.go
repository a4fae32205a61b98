package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kevin27954/convergence-sim-test/db"
	"github.com/spf13/viper"
)

// FailureWindow is the range of rounds a failing replica spends disconnected.
// Round i is connected when i < Start or i > End.
type FailureWindow struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

func (w FailureWindow) Connected(round int) bool {
	return round < w.Start || round > w.End
}

type Config struct {
	DataDir            string        `mapstructure:"data_dir"`
	Store              string        `mapstructure:"store"`
	Iterations         int           `mapstructure:"iterations"`
	ItemDelay          time.Duration `mapstructure:"item_delay"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	RetransmitInterval time.Duration `mapstructure:"retransmit_interval"`
	FailureWindow      FailureWindow `mapstructure:"failure_window"`
	Host               string        `mapstructure:"host"`
	BasePort           int           `mapstructure:"base_port"`
	LogLevel           string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("store", db.KIND_FILE)
	v.SetDefault("iterations", 200)
	v.SetDefault("item_delay", 20*time.Millisecond)
	v.SetDefault("settle_delay", 5*time.Second)
	v.SetDefault("retransmit_interval", 500*time.Millisecond)
	v.SetDefault("failure_window.start", 200)
	v.SetDefault("failure_window.end", 500)
	v.SetDefault("host", "localhost")
	v.SetDefault("base_port", 9000)
	v.SetDefault("log_level", "info")
}

// Load reads defaults, then the optional file at path, then CONVSIM_* env vars.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONVSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Iterations < 1:
		return fmt.Errorf("iterations must be at least 1, got %d", c.Iterations)
	case c.ItemDelay < 0 || c.SettleDelay < 0:
		return fmt.Errorf("delays must not be negative")
	case c.RetransmitInterval <= 0:
		return fmt.Errorf("retransmit_interval must be positive, got %s", c.RetransmitInterval)
	case c.FailureWindow.End < c.FailureWindow.Start:
		return fmt.Errorf("failure_window end %d is before start %d", c.FailureWindow.End, c.FailureWindow.Start)
	case c.Store != db.KIND_FILE && c.Store != db.KIND_SQLITE:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, db.KIND_FILE, db.KIND_SQLITE)
	case c.BasePort < 0 || c.BasePort > 65535:
		return fmt.Errorf("base_port out of range: %d", c.BasePort)
	}

	return nil
}

func (c Config) NodesFile() string {
	return filepath.Join(c.DataDir, "nodes.yaml")
}

func (c Config) OpenStore() (db.Store, error) {
	return db.Open(c.Store, c.DataDir)
}
