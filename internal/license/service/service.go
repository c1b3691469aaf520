package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/fintrack/internal/apperror"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/smallbiznis/fintrack/internal/license/domain"
	"github.com/smallbiznis/fintrack/internal/license/hardware"
	"github.com/smallbiznis/fintrack/internal/observability/metrics"
	"github.com/smallbiznis/fintrack/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// maxCacheFreshness caps how long a cached validation short-circuits the
// remote check, whatever cache_duration says, so revocations propagate.
const maxCacheFreshness = 5 * time.Minute

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Features *config.LicenseConfigHolder
	Repo     domain.Repository
	Client   domain.Client
	Keys     domain.KeySource
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
	Hardware hardware.Source  `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	cfg      config.LicenseConfig
	version  string
	features *config.LicenseConfigHolder
	repo     domain.Repository
	client   domain.Client
	keys     domain.KeySource
	clock    clock.Clock
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	installationID string
	freshness      time.Duration
}

func New(p Params) domain.Service {
	src := p.Hardware
	if src == nil {
		src = hardware.NewHostSource(p.Config)
	}
	features := p.Features
	if features == nil {
		features = config.NewStaticLicenseConfigHolder(config.DefaultFeatureConfig())
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	freshness := p.Config.License.CacheDuration
	if freshness > maxCacheFreshness {
		freshness = maxCacheFreshness
	}

	s := &Service{
		log:            p.Log.Named("license.service"),
		cfg:            p.Config.License,
		version:        p.Config.AppVersion,
		features:       features,
		repo:           p.Repo,
		client:         p.Client,
		keys:           p.Keys,
		clock:          clk,
		metrics:        p.Metrics,
		tracer:         otel.Tracer("fintrack/license"),
		installationID: hardware.Resolve(context.Background(), p.Config.License.HardwareIDMethod, p.Config.License.ManualHardwareID, src),
		freshness:      freshness,
	}
	return s
}

func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

func (s *Service) InstallationID() string {
	return s.installationID
}

func (s *Service) Validate(ctx context.Context, key string, forceOnline bool) domain.ValidationResult {
	ctx, span := s.tracer.Start(ctx, "license.validate")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.Bool("license.force_online", forceOnline))...)

	result, outcome := s.validate(ctx, strings.TrimSpace(key), forceOnline)
	span.SetAttributes(tracing.SafeAttributes(attribute.String("license.outcome", outcome))...)
	s.metrics.IncLicenseValidation(outcome)
	if result.Features == nil {
		result.Features = []string{}
	}
	return result
}

func (s *Service) validate(ctx context.Context, key string, forceOnline bool) (domain.ValidationResult, string) {
	const op = "license.validate"

	if !s.cfg.Enabled {
		return domain.ValidationResult{Valid: true}, metrics.LicenseOutcomeDisabled
	}
	if key == "" {
		return invalid(apperror.New(apperror.KindValidationFailure, op, domain.ErrNoLicenseKey)), metrics.LicenseOutcomeInvalid
	}

	now := s.clock.Now()
	if forceOnline {
		if err := s.repo.DeleteByKey(ctx, key); err != nil {
			s.log.Warn("license.cache.purge_failed", zap.Error(err))
			s.metrics.IncError("license", err)
		}
	} else if record, err := s.repo.GetByKey(ctx, key); err == nil {
		if record.IsValid && !record.Expired(now) && now.Sub(record.LastValidatedAt) < s.freshness {
			return resultFromRecord(record, false), metrics.LicenseOutcomeCached
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("license.cache.read_failed", zap.Error(err))
		s.metrics.IncError("license", err)
	}

	started := time.Now()
	resp, raw, err := s.client.Validate(ctx, domain.ValidateRequest{
		LicenseKey: key,
		HardwareID: s.installationID,
		AppVersion: s.version,
		Timestamp:  now.Unix(),
	})
	s.metrics.ObserveLicenseRemoteCheck(time.Since(started))
	if err != nil {
		return s.offlineFallback(ctx, key, now, err)
	}

	if !resp.Valid {
		if err := s.repo.DeleteByKey(ctx, key); err != nil {
			s.log.Warn("license.cache.purge_failed", zap.Error(err))
		}
		message := strings.TrimSpace(resp.Message)
		if message == "" {
			message = domain.ErrLicenseInvalid.Error()
		}
		s.log.Warn("license.validate.rejected", zap.String("reason", message))
		result := invalid(apperror.New(apperror.KindValidationFailure, op, domain.ErrLicenseInvalid))
		result.Error = message
		return result, metrics.LicenseOutcomeInvalid
	}

	features := normalizeFeatures(resp.Features)
	record := &domain.Record{
		LicenseKey:        key,
		HardwareID:        s.installationID,
		ValidationPayload: datatypes.JSON(raw),
		LastValidatedAt:   now,
		ExpiresAt:         resp.ExpiresAtTime(),
		IsValid:           true,
		Features:          datatypes.NewJSONSlice(features),
		CreatedAt:         now,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		// the remote verdict stands even if it could not be cached
		s.log.Warn("license.cache.write_failed", zap.Error(err))
		s.metrics.IncError("license", err)
	}

	return domain.ValidationResult{
		Valid:     true,
		Features:  features,
		ExpiresAt: record.ExpiresAt,
	}, metrics.LicenseOutcomeOnline
}

func (s *Service) offlineFallback(ctx context.Context, key string, now time.Time, cause error) (domain.ValidationResult, string) {
	const op = "license.validate"

	s.log.Warn("license.validate.offline_fallback", zap.Error(cause))

	record, err := s.repo.GetByKey(ctx, key)
	if err == nil && record.IsValid && !record.Expired(now) && now.Sub(record.LastValidatedAt) < s.cfg.OfflineGracePeriod {
		return resultFromRecord(record, true), metrics.LicenseOutcomeOffline
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("license.cache.read_failed", zap.Error(err))
	}

	return invalid(apperror.New(apperror.KindValidationFailure, op, domain.ErrServerUnreachable)), metrics.LicenseOutcomeNoGrace
}

func (s *Service) StoreInSession(sc *domain.SessionContext, key string, result domain.ValidationResult) {
	if sc == nil {
		return
	}
	features := append([]string(nil), result.Features...)
	sc.Set(domain.SessionState{
		LicenseKey:  strings.TrimSpace(key),
		Valid:       result.Valid,
		Features:    features,
		ExpiresAt:   result.ExpiresAt,
		ValidatedAt: s.clock.Now(),
		HardwareID:  s.installationID,
	})
}

func (s *Service) HasFeature(sc *domain.SessionContext, name string) bool {
	features := s.features.Get()
	if features.IsFree(name) {
		return true
	}
	state, ok := sc.State()
	if !ok || !state.Valid {
		return false
	}
	if !features.IsLicensable(name) {
		return false
	}
	return state.HasFeature(name)
}

func (s *Service) Deactivate(ctx context.Context, sc *domain.SessionContext, key string) (*domain.DeactivationResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		if state, ok := sc.State(); ok {
			key = state.LicenseKey
		}
	}
	if key == "" {
		return nil, apperror.New(apperror.KindValidationFailure, "license.deactivate", domain.ErrNoLicenseKey)
	}

	result := &domain.DeactivationResult{}
	if s.cfg.Enabled {
		err := s.client.Deactivate(ctx, domain.DeactivateRequest{
			LicenseKey: key,
			HardwareID: s.installationID,
		})
		if err != nil {
			s.log.Warn("license.deactivate.remote_failed", zap.Error(err))
			result.RemoteError = err.Error()
		} else {
			result.RemoteNotified = true
		}
	}

	sc.Clear()
	if err := s.repo.DeleteByKey(ctx, key); err != nil {
		return result, apperror.New(apperror.KindOf(err), "license.deactivate", err)
	}

	s.metrics.IncLicenseDeactivation()
	s.log.Info("license.deactivated", zap.Bool("remote_notified", result.RemoteNotified))
	return result, nil
}

func (s *Service) CurrentGlobalLicenseKey(ctx context.Context) (string, error) {
	if s.keys == nil {
		return "", domain.ErrNoLicenseKey
	}
	key, err := s.keys.FindAnyLicenseKey(ctx)
	if err != nil {
		if errors.Is(err, authdomain.ErrLicenseKeyNotSet) {
			return "", domain.ErrNoLicenseKey
		}
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrNoLicenseKey
	}
	return key, nil
}

func (s *Service) ClearCache(ctx context.Context, sc *domain.SessionContext) error {
	sc.Clear()
	if err := s.repo.DeleteAll(ctx); err != nil {
		return apperror.New(apperror.KindOf(err), "license.clear_cache", err)
	}
	s.log.Info("license.cache.cleared")
	return nil
}

func (s *Service) Status(ctx context.Context, sc *domain.SessionContext) (*domain.Status, error) {
	status := &domain.Status{
		Enabled:               s.cfg.Enabled,
		InstallationID:        s.installationID,
		HardwareIDMethod:      s.cfg.HardwareIDMethod,
		CacheFreshnessSeconds: int64(s.freshness / time.Second),
		OfflineGraceSeconds:   int64(s.cfg.OfflineGracePeriod / time.Second),
	}

	key := ""
	if state, ok := sc.State(); ok {
		copied := state
		status.Session = &copied
		key = state.LicenseKey
	}
	if key == "" {
		found, err := s.CurrentGlobalLicenseKey(ctx)
		if err != nil && !errors.Is(err, domain.ErrNoLicenseKey) {
			return nil, err
		}
		key = found
	}
	if key == "" {
		return status, nil
	}
	status.LicenseKey = domain.MaskKey(key)

	record, err := s.repo.GetByKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	age := now.Sub(record.LastValidatedAt)
	status.Cache = &domain.CacheStatus{
		LastValidatedAt: record.LastValidatedAt,
		ExpiresAt:       record.ExpiresAt,
		IsValid:         record.IsValid,
		Features:        []string(record.Features),
		Fresh:           record.IsValid && age < s.freshness,
		WithinGrace:     record.IsValid && age < s.cfg.OfflineGracePeriod,
	}
	return status, nil
}

func resultFromRecord(record *domain.Record, offline bool) domain.ValidationResult {
	return domain.ValidationResult{
		Valid:     true,
		Features:  append([]string(nil), record.Features...),
		ExpiresAt: record.ExpiresAt,
		Cached:    true,
		Offline:   offline,
	}
}

func invalid(err *apperror.Error) domain.ValidationResult {
	message := ""
	if err != nil && err.Err != nil {
		message = err.Err.Error()
	}
	return domain.ValidationResult{
		Valid: false,
		Error: message,
		Err:   err,
	}
}

func normalizeFeatures(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, feature := range raw {
		feature = domain.NormalizeFeature(feature)
		if feature == "" {
			continue
		}
		if _, ok := seen[feature]; ok {
			continue
		}
		seen[feature] = struct{}{}
		out = append(out, feature)
	}
	return out
}
