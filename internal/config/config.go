// Package config handles the global ~/.chatsync/config.toml and the
// per-profile engine configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Duration wraps time.Duration so TOML values can be written as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Engine holds the per-profile sync engine tunables, stored in
// <profile>/config.toml.
type Engine struct {
	RemoteBaseURL string `toml:"remote_base_url"`
	AuthToken     string `toml:"auth_token"`
	CurrentUserID int64  `toml:"current_user_id"`

	WindowSize       int `toml:"window_size"`
	PreloadThreshold int `toml:"preload_threshold"`
	PageSize         int `toml:"page_size"`

	ChatListTTL     Duration `toml:"chat_list_ttl"`
	SyncInterval    Duration `toml:"sync_interval"`
	IdleThreshold   Duration `toml:"idle_threshold"`
	IdleCheckPeriod Duration `toml:"idle_check_period"`
	ChatDebounce    Duration `toml:"chat_debounce"`
	ListDebounce    Duration `toml:"list_debounce"`
	WarmTopChats    int      `toml:"warm_top_chats"`
}

// DefaultEngine returns the engine defaults applied to any field left
// zero in the profile config.
func DefaultEngine() Engine {
	return Engine{
		WindowSize:       50,
		PreloadThreshold: 10,
		PageSize:         50,
		ChatListTTL:      Duration{5 * time.Minute},
		SyncInterval:     Duration{30 * time.Second},
		IdleThreshold:    Duration{30 * time.Second},
		IdleCheckPeriod:  Duration{5 * time.Second},
		ChatDebounce:     Duration{2 * time.Second},
		ListDebounce:     Duration{5 * time.Second},
		WarmTopChats:     5,
	}
}

// Load reads the global config from the given path. Returns zero config
// and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEngine reads the per-profile engine config and fills defaults for
// any zero field. A missing file yields pure defaults, not an error.
func LoadEngine(path string) (*Engine, error) {
	cfg := DefaultEngine()
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}
	applyEngineDefaults(&cfg)
	return &cfg, nil
}

func applyEngineDefaults(cfg *Engine) {
	def := DefaultEngine()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.PreloadThreshold <= 0 {
		cfg.PreloadThreshold = def.PreloadThreshold
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.ChatListTTL.Duration <= 0 {
		cfg.ChatListTTL = def.ChatListTTL
	}
	if cfg.SyncInterval.Duration <= 0 {
		cfg.SyncInterval = def.SyncInterval
	}
	if cfg.IdleThreshold.Duration <= 0 {
		cfg.IdleThreshold = def.IdleThreshold
	}
	if cfg.IdleCheckPeriod.Duration <= 0 {
		cfg.IdleCheckPeriod = def.IdleCheckPeriod
	}
	if cfg.ChatDebounce.Duration <= 0 {
		cfg.ChatDebounce = def.ChatDebounce
	}
	if cfg.ListDebounce.Duration <= 0 {
		cfg.ListDebounce = def.ListDebounce
	}
	if cfg.WarmTopChats <= 0 {
		cfg.WarmTopChats = def.WarmTopChats
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return save(path, cfg)
}

// SaveEngine writes the engine config to the given path.
func SaveEngine(path string, cfg *Engine) error {
	return save(path, cfg)
}

func save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
