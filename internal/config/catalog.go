package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// PackageConfig is one purchasable package as written in catalog.yml.
type PackageConfig struct {
	Name    string `mapstructure:"name"`
	Credits int    `mapstructure:"credits"`
	Price   string `mapstructure:"price"`
}

type CatalogConfig struct {
	Packages []PackageConfig `mapstructure:"packages"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Packages: []PackageConfig{
			{Name: "Стартовый", Credits: 5, Price: "100"},
			{Name: "Базовый", Credits: 10, Price: "180"},
			{Name: "Продвинутый", Credits: 25, Price: "400"},
			{Name: "Профессиональный", Credits: 50, Price: "750"},
		},
	}
}

type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig

	mu        sync.Mutex
	listeners []func(CatalogConfig)
}

// NewCatalogHolder reads catalog.yml and keeps watching it. A missing file
// falls back to the default catalog without a watcher.
func NewCatalogHolder(cfg Config) (*CatalogHolder, error) {
	v := viper.New()

	if cfg.CatalogFile != "" {
		v.SetConfigFile(cfg.CatalogFile)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/creditledger")
		v.AddConfigPath(".")
	}

	holder := &CatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		holder.current.Store(DefaultCatalogConfig())
		return holder, nil
	}

	var catalog CatalogConfig
	if err := v.Unmarshal(&catalog); err != nil {
		return nil, err
	}
	if err := ValidateCatalogConfig(catalog); err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CatalogConfig
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[catalog-config] reload failed: %v", err)
			return
		}
		if err := ValidateCatalogConfig(updated); err != nil {
			log.Printf("[catalog-config] invalid config ignored: %v", err)
			return
		}
		holder.Set(updated)
		log.Printf("[catalog-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticCatalogHolder returns a holder that never reloads.
func NewStaticCatalogHolder(catalog CatalogConfig) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *CatalogHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

// Set replaces the current catalog and notifies listeners.
func (h *CatalogHolder) Set(catalog CatalogConfig) {
	h.current.Store(catalog)

	h.mu.Lock()
	listeners := append([]func(CatalogConfig){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(catalog)
	}
}

// OnChange registers fn to run after every successful reload.
func (h *CatalogHolder) OnChange(fn func(CatalogConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func ValidateCatalogConfig(catalog CatalogConfig) error {
	if len(catalog.Packages) == 0 {
		return errors.New("catalog.packages cannot be empty")
	}
	for i, pkg := range catalog.Packages {
		if strings.TrimSpace(pkg.Name) == "" {
			return fmt.Errorf("catalog.packages[%d]: name is required", i)
		}
		if pkg.Credits <= 0 {
			return fmt.Errorf("catalog.packages[%d]: credits must be positive", i)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(pkg.Price))
		if err != nil {
			return fmt.Errorf("catalog.packages[%d]: invalid price %q", i, pkg.Price)
		}
		if !price.IsPositive() {
			return fmt.Errorf("catalog.packages[%d]: price must be positive", i)
		}
	}
	return nil
}
