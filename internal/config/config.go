// Package config loads server configuration from the environment.
//
// Every setting has a FAL_-prefixed environment variable. The only required
// one is the API key; cache and state directories default to subdirectories
// of the user cache dir so a bare `FAL_API_KEY=... fal-mcp` works.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all server and worker settings.
type Config struct {
	// APIKey authenticates against the fal.ai API. Read from FAL_API_KEY,
	// falling back to FAL_KEY (the name the official clients use).
	APIKey string `mapstructure:"fal_api_key"`

	// APIURL is the public API base used for model listing, search and
	// OpenAPI schema fetches.
	APIURL string `mapstructure:"fal_api_url"`

	// QueueURL is the async queue endpoint (submit/status/result/cancel).
	QueueURL string `mapstructure:"fal_queue_url"`

	// RunURL is the synchronous inference endpoint.
	RunURL string `mapstructure:"fal_run_url"`

	// RestURL is the REST endpoint used for storage uploads.
	RestURL string `mapstructure:"fal_rest_url"`

	// CacheDir stores fetched model schemas.
	CacheDir string `mapstructure:"fal_cache_dir"`

	// DownloadDir is the default destination for download_file.
	DownloadDir string `mapstructure:"fal_download_dir"`

	// UploadStateDir holds one JSON state file per upload session. It is
	// shared between the server process and detached upload workers.
	UploadStateDir string `mapstructure:"fal_upload_state_dir"`

	// MaxActiveUploads caps concurrently tracked non-terminal upload
	// sessions. 0 means unlimited.
	MaxActiveUploads int `mapstructure:"fal_max_active_uploads"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"fal_log_level"`
}

// Load reads configuration from the environment and applies defaults.
func Load() (*Config, error) {
	v := viper.New()

	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		cacheRoot = os.TempDir()
	}

	v.SetDefault("fal_api_url", "https://fal.ai/api")
	v.SetDefault("fal_queue_url", "https://queue.fal.run")
	v.SetDefault("fal_run_url", "https://fal.run")
	v.SetDefault("fal_rest_url", "https://rest.alpha.fal.ai")
	v.SetDefault("fal_cache_dir", filepath.Join(cacheRoot, "fal-mcp", "schemas"))
	v.SetDefault("fal_download_dir", ".")
	v.SetDefault("fal_upload_state_dir", filepath.Join(cacheRoot, "fal-mcp", "uploads"))
	v.SetDefault("fal_max_active_uploads", 0)
	v.SetDefault("fal_log_level", "info")

	// FAL_KEY is what fal's own clients read; accept it as an alias.
	if err := v.BindEnv("fal_api_key", "FAL_API_KEY", "FAL_KEY"); err != nil {
		return nil, err
	}
	for _, key := range []string{
		"fal_api_url", "fal_queue_url", "fal_run_url", "fal_rest_url",
		"fal_cache_dir", "fal_download_dir", "fal_upload_state_dir",
		"fal_max_active_uploads", "fal_log_level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("FAL_API_KEY is required (get one at https://fal.ai/dashboard/keys)")
	}

	cfg.CacheDir = expandHome(cfg.CacheDir)
	cfg.DownloadDir = expandHome(cfg.DownloadDir)
	cfg.UploadStateDir = expandHome(cfg.UploadStateDir)

	return &cfg, nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(home, path[2:])
	}
	return path
}
