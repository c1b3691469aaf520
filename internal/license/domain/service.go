package domain

import "context"

type Repository interface {
	GetByKey(ctx context.Context, key string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	DeleteByKey(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
}

// Client talks to the remote license server.
type Client interface {
	Validate(ctx context.Context, req ValidateRequest) (*RemoteResponse, []byte, error)
	Deactivate(ctx context.Context, req DeactivateRequest) error
}

// KeySource looks up the installation-wide license key.
type KeySource interface {
	FindAnyLicenseKey(ctx context.Context) (string, error)
}

type Service interface {
	Enabled() bool
	InstallationID() string
	Validate(ctx context.Context, key string, forceOnline bool) ValidationResult
	StoreInSession(sc *SessionContext, key string, result ValidationResult)
	HasFeature(sc *SessionContext, name string) bool
	Deactivate(ctx context.Context, sc *SessionContext, key string) (*DeactivationResult, error)
	CurrentGlobalLicenseKey(ctx context.Context) (string, error)
	ClearCache(ctx context.Context, sc *SessionContext) error
	Status(ctx context.Context, sc *SessionContext) (*Status, error)
}
