package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FeatureConfig lists which features the installation recognises.
// FreeFeatures are available without a license; LicensedFeatures is the
// allowlist of features a valid license may unlock.
type FeatureConfig struct {
	LicensedFeatures map[string]bool `mapstructure:"licensed_features"`
	FreeFeatures     map[string]bool `mapstructure:"free_features"`
}

func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		LicensedFeatures: map[string]bool{
			"multi_user":       true,
			"recurring":        true,
			"crypto_portfolio": true,
			"debt_tracking":    true,
			"reports":          true,
		},
		FreeFeatures: map[string]bool{
			"transactions": true,
			"categories":   true,
			"dashboard":    true,
		},
	}
}

// IsFree reports whether name is enabled in the free feature set.
func (f FeatureConfig) IsFree(name string) bool {
	return f.FreeFeatures[normalizeFeature(name)]
}

// IsLicensable reports whether a license may unlock name. Features missing
// from the map are allowed; only an explicit false disables them.
func (f FeatureConfig) IsLicensable(name string) bool {
	enabled, ok := f.LicensedFeatures[normalizeFeature(name)]
	return !ok || enabled
}

func normalizeFeature(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type LicenseConfigHolder struct {
	current atomic.Value // holds FeatureConfig
}

// NewStaticLicenseConfigHolder returns a holder that never reloads.
func NewStaticLicenseConfigHolder(cfg FeatureConfig) *LicenseConfigHolder {
	holder := &LicenseConfigHolder{}
	holder.current.Store(normalizeFeatureConfig(cfg))
	return holder
}

func NewLicenseConfigHolder(appCfg Config) (*LicenseConfigHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(appCfg.License.FeaturesFile); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("license")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/fintrack/config")
		v.AddConfigPath("/etc/fintrack")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FINTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeatureConfig()
	v.SetDefault("license.licensed_features", defaults.LicensedFeatures)
	v.SetDefault("license.free_features", defaults.FreeFeatures)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	var cfg FeatureConfig
	if err := v.UnmarshalKey("license", &cfg); err != nil {
		return nil, err
	}
	if err := validateFeatureConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LicenseConfigHolder{}
	holder.current.Store(normalizeFeatureConfig(cfg))

	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FeatureConfig
		if err := v.UnmarshalKey("license", &updated); err != nil {
			log.Printf("[license-config] reload failed: %v", err)
			return
		}
		if err := validateFeatureConfig(updated); err != nil {
			log.Printf("[license-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(normalizeFeatureConfig(updated))
		log.Printf("[license-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *LicenseConfigHolder) Get() FeatureConfig {
	return h.current.Load().(FeatureConfig)
}

func validateFeatureConfig(cfg FeatureConfig) error {
	for name := range cfg.FreeFeatures {
		if strings.TrimSpace(name) == "" {
			return errors.New("license.free_features contains an empty name")
		}
	}
	for name := range cfg.LicensedFeatures {
		if strings.TrimSpace(name) == "" {
			return errors.New("license.licensed_features contains an empty name")
		}
	}
	return nil
}

func normalizeFeatureConfig(cfg FeatureConfig) FeatureConfig {
	out := FeatureConfig{
		LicensedFeatures: make(map[string]bool, len(cfg.LicensedFeatures)),
		FreeFeatures:     make(map[string]bool, len(cfg.FreeFeatures)),
	}
	for name, enabled := range cfg.LicensedFeatures {
		out.LicensedFeatures[normalizeFeature(name)] = enabled
	}
	for name, enabled := range cfg.FreeFeatures {
		out.FreeFeatures[normalizeFeature(name)] = enabled
	}
	return out
}
