package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort         = 8080
	defaultDBPath       = "data/linkporter.db"
	defaultSaveDir      = "/saved-shares"
	defaultIntervalMin  = 5
	defaultIntervalMax  = 15
	defaultDirCron      = "*/30 * * * *"
	defaultTrashCron    = "0 */2 * * *"
	defaultRequestsRate = 2.0
)

// Netdisk holds the remote storage account settings.
type Netdisk struct {
	BaseURL           string  `yaml:"base_url"`
	Cookie            string  `yaml:"cookie"`
	SaveDir           string  `yaml:"save_dir"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RecyclePassword   string  `yaml:"recycle_password"`
}

// Cleanup holds the cron expressions for the maintenance jobs.
type Cleanup struct {
	DirCron   string `yaml:"dir_cron"`
	TrashCron string `yaml:"trash_cron"`
}

// Config describes runtime configuration for the service.
type Config struct {
	Port        int     `yaml:"port"`
	DBPath      string  `yaml:"db_path"`
	Netdisk     Netdisk `yaml:"netdisk"`
	Cleanup     Cleanup `yaml:"cleanup"`
	IntervalMin int     `yaml:"interval_min"`
	IntervalMax int     `yaml:"interval_max"`
	WebhookURL  string  `yaml:"webhook_url"`
}

// Default returns the settings used when no config file is present.
func Default() Config {
	return Config{
		Port:   defaultPort,
		DBPath: defaultDBPath,
		Netdisk: Netdisk{
			SaveDir:           defaultSaveDir,
			RequestsPerSecond: defaultRequestsRate,
		},
		Cleanup: Cleanup{
			DirCron:   defaultDirCron,
			TrashCron: defaultTrashCron,
		},
		IntervalMin: defaultIntervalMin,
		IntervalMax: defaultIntervalMax,
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// basic normalization
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.Netdisk.SaveDir == "" {
		cfg.Netdisk.SaveDir = defaultSaveDir
	}
	if cfg.Netdisk.RequestsPerSecond <= 0 {
		cfg.Netdisk.RequestsPerSecond = defaultRequestsRate
	}
	if cfg.Cleanup.DirCron == "" {
		cfg.Cleanup.DirCron = defaultDirCron
	}
	if cfg.Cleanup.TrashCron == "" {
		cfg.Cleanup.TrashCron = defaultTrashCron
	}
	// validate pacing defaults explicitly: the engine rejects bad intervals
	// at start time, so catch a bad config at boot instead
	if cfg.IntervalMin < 1 || cfg.IntervalMax < cfg.IntervalMin {
		return cfg, fmt.Errorf("invalid pacing interval [%d,%d]: need 1 <= min <= max", cfg.IntervalMin, cfg.IntervalMax)
	}
	return cfg, nil
}
