package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StoreConfig is the operator-editable storefront configuration. It
// lives in store.yml and hot-reloads, so display copy and format
// toggles never need a restart.
type StoreConfig struct {
	StoreName       string   `mapstructure:"storeName"`
	ReceiptFooter   string   `mapstructure:"receiptFooter"`
	DownloadFormats []string `mapstructure:"downloadFormats"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		StoreName:       "Soundcrate",
		ReceiptFooter:   "Thanks for supporting independent music.",
		DownloadFormats: []string{"mp3", "flac", "original"},
	}
}

type StoreConfigHolder struct {
	current atomic.Value // holds StoreConfig
}

func NewStoreConfigHolder() (*StoreConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("store")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/soundcrate/config")
	v.AddConfigPath("/etc/soundcrate")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SOUNDCRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultStoreConfig()
		v.SetDefault("store.storeName", defaults.StoreName)
		v.SetDefault("store.receiptFooter", defaults.ReceiptFooter)
		v.SetDefault("store.downloadFormats", defaults.DownloadFormats)
	}

	var cfg StoreConfig
	if err := v.UnmarshalKey("store", &cfg); err != nil {
		return nil, err
	}
	if err := validateStoreConfig(cfg); err != nil {
		return nil, err
	}

	holder := &StoreConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated StoreConfig
		if err := v.UnmarshalKey("store", &updated); err != nil {
			log.Printf("[store-config] reload failed: %v", err)
			return
		}
		if err := validateStoreConfig(updated); err != nil {
			log.Printf("[store-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[store-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *StoreConfigHolder) Get() StoreConfig {
	return h.current.Load().(StoreConfig)
}

// FormatEnabled reports whether the operator allows packaging in the
// given format. Entitlement checks are separate; this is a storefront
// toggle only.
func (h *StoreConfigHolder) FormatEnabled(format string) bool {
	if h == nil {
		return true
	}
	for _, enabled := range h.Get().DownloadFormats {
		if strings.EqualFold(enabled, format) {
			return true
		}
	}
	return false
}

func validateStoreConfig(cfg StoreConfig) error {
	if strings.TrimSpace(cfg.StoreName) == "" {
		return errors.New("store.storeName cannot be empty")
	}
	if len(cfg.DownloadFormats) == 0 {
		return errors.New("store.downloadFormats cannot be empty")
	}
	return nil
}
