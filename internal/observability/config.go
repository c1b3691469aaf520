package observability

import (
	"strings"

	"github.com/smallbiznis/fintrack/internal/config"
)

// Config is the normalized telemetry view shared by the logger, tracer and
// metrics providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "fintrack"
	}

	tel := cfg.Telemetry
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             oneOf(tel.LogLevel, "info", "debug", "info", "warn", "error"),
		LogFormat:            oneOf(tel.LogFormat, "json", "json", "console"),
		OtelEnabled:          tel.TracingEnabled,
		OtelExporterEndpoint: strings.TrimSpace(tel.OTLPEndpoint),
		OtelExporterProtocol: oneOf(tel.OTLPProtocol, "grpc", "grpc", "http", "http/protobuf"),
		OtelSamplingRatio:    tel.SamplingRatio,
	}
}

// Debug enables verbose request logs and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func oneOf(value, def string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return def
}
