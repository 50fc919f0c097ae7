// Package config loads certperms settings from defaults, an optional YAML
// file and CERTPERMS_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/keyfile"
)

const EnvPrefix = "CERTPERMS"

type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
	Keys    KeysConfig    `mapstructure:"keys"`
	ACL     ACLConfig     `mapstructure:"acl"`
	Audit   AuditConfig   `mapstructure:"audit"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type StoreConfig struct {
	Locations  []string `mapstructure:"locations"`
	Categories []string `mapstructure:"categories"`
}

func (s StoreConfig) ParseLocations() ([]systemstore.Location, error) {
	out := make([]systemstore.Location, 0, len(s.Locations))
	for _, l := range s.Locations {
		loc, err := systemstore.ParseLocation(l)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

func (s StoreConfig) ParseCategories() ([]systemstore.Category, error) {
	out := make([]systemstore.Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		cat, err := systemstore.ParseCategory(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

type KeysConfig struct {
	// Directories replace the built-in key directory templates when set.
	Directories []keyfile.Template `mapstructure:"directories"`
	Match       string             `mapstructure:"match"`
}

type ACLConfig struct {
	LockDir string `mapstructure:"lockDir"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("store.locations", []string{"CurrentUser", "LocalMachine"})
	v.SetDefault("store.categories", []string{"My"})
	v.SetDefault("keys.match", keyfile.FirstMatch.Name())
	v.SetDefault("acl.lockDir", filepath.Join(userDir(os.UserCacheDir), "certperms", "locks"))
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", filepath.Join(userDir(os.UserConfigDir), "certperms"))
}

func userDir(fn func() (string, error)) string {
	if dir, err := fn(); err == nil && dir != "" {
		return dir
	}
	return os.TempDir()
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, certerr.New(certerr.InvalidArgument, "read config", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, certerr.New(certerr.InvalidArgument, "decode config", path, err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Store.ParseLocations(); err != nil {
		return err
	}
	if _, err := c.Store.ParseCategories(); err != nil {
		return err
	}
	if _, err := keyfile.ParseMatchPolicy(c.Keys.Match); err != nil {
		return err
	}
	for i, t := range c.Keys.Directories {
		if strings.TrimSpace(t.Path) == "" {
			return certerr.New(certerr.InvalidArgument, "validate config", fmt.Sprintf("keys.directories[%d]", i), fmt.Errorf("path is required"))
		}
	}
	if c.Audit.Enabled && c.Audit.Dir == "" {
		return certerr.New(certerr.InvalidArgument, "validate config", "audit.dir", fmt.Errorf("audit is enabled without a directory"))
	}
	return nil
}
