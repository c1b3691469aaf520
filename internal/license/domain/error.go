package domain

import "errors"

var (
	ErrNotFound          = errors.New("license cache entry not found")
	ErrNoLicenseKey      = errors.New("no license key configured")
	ErrLicenseInvalid    = errors.New("license is not valid")
	ErrLicenseExpired    = errors.New("license has expired")
	ErrServerUnreachable = errors.New("license server unreachable and no valid cached license")
	ErrBadResponse       = errors.New("license server returned an unusable response")
	ErrPermissionDenied  = errors.New("only administrators may manage the license")
)
