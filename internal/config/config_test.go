package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LICENSE_HARDWARE_ID_METHOD", "bogus")
	t.Setenv("LICENSE_RECHECK_INTERVAL", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "900")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, HardwareIDMethodAuto, cfg.License.HardwareIDMethod)
	assert.Equal(t, 30*time.Minute, cfg.Session.LicenseRecheckInterval)
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.License.RequestTimeout)
}

func TestLoadLicenseOverrides(t *testing.T) {
	t.Setenv("LICENSE_ENABLED", "false")
	t.Setenv("LICENSE_API_URL", "https://example.test/api/")
	t.Setenv("LICENSE_CACHE_DURATION", "60")
	t.Setenv("LICENSE_OFFLINE_GRACE_DAYS", "3")
	t.Setenv("LICENSE_HARDWARE_ID_METHOD", "MANUAL")

	cfg := Load()

	assert.False(t, cfg.License.Enabled)
	assert.Equal(t, "https://example.test/api", cfg.License.APIURL)
	assert.Equal(t, time.Minute, cfg.License.CacheDuration)
	assert.Equal(t, 72*time.Hour, cfg.License.OfflineGracePeriod)
	assert.Equal(t, HardwareIDMethodManual, cfg.License.HardwareIDMethod)
}

func TestLoadTelemetry(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")

	cfg := Load()

	assert.Equal(t, "debug", cfg.Telemetry.LogLevel)
	assert.True(t, cfg.Telemetry.TracingEnabled)
	assert.Equal(t, "http", cfg.Telemetry.OTLPProtocol)
	assert.Equal(t, 0.1, cfg.Telemetry.SamplingRatio)
}

func TestNewLicenseConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "license.yml")
	content := []byte(`license:
  licensed_features:
    reports: false
    crypto_portfolio: true
  free_features:
    transactions: true
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewLicenseConfigHolder(Config{License: LicenseConfig{FeaturesFile: path}})
	require.NoError(t, err)

	features := holder.Get()
	assert.True(t, features.IsFree("transactions"))
	assert.True(t, features.IsFree(" Transactions "))
	assert.False(t, features.IsFree("reports"))
	assert.False(t, features.IsLicensable("reports"))
	assert.True(t, features.IsLicensable("crypto_portfolio"))
	assert.True(t, features.IsLicensable("unlisted"))
}

func TestStaticLicenseConfigHolderNormalizesNames(t *testing.T) {
	holder := NewStaticLicenseConfigHolder(FeatureConfig{
		FreeFeatures: map[string]bool{"Dashboard": true, "export": false},
	})

	assert.True(t, holder.Get().IsFree("dashboard"))
	assert.False(t, holder.Get().IsFree("export"))
}
