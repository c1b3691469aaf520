package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Record is the cached outcome of the last successful online validation of
// a license key. There is at most one row per key.
type Record struct {
	LicenseKey        string                      `gorm:"column:license_key;type:text;primaryKey"`
	HardwareID        string                      `gorm:"column:hardware_id;type:text;not null"`
	ValidationPayload datatypes.JSON              `gorm:"column:validation_payload"`
	LastValidatedAt   time.Time                   `gorm:"column:last_validated_at;not null"`
	ExpiresAt         *time.Time                  `gorm:"column:expires_at"`
	IsValid           bool                        `gorm:"column:is_valid;not null"`
	Features          datatypes.JSONSlice[string] `gorm:"column:features"`
	CreatedAt         time.Time                   `gorm:"column:created_at;not null"`
}

func (Record) TableName() string { return "license_cache" }

// Expired reports whether the license itself has lapsed at now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// RemoteResponse is the body returned by {api_url}/validate.php.
type RemoteResponse struct {
	Valid     bool           `json:"valid"`
	Features  []string       `json:"features"`
	ExpiresAt *int64         `json:"expires_at"`
	UserInfo  map[string]any `json:"user_info"`
	Message   string         `json:"message,omitempty"`
}

// ExpiresAtTime converts the epoch-millisecond expiry into a time.
func (r RemoteResponse) ExpiresAtTime() *time.Time {
	if r.ExpiresAt == nil || *r.ExpiresAt <= 0 {
		return nil
	}
	t := time.UnixMilli(*r.ExpiresAt).UTC()
	return &t
}

type ValidateRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
	AppVersion string `json:"app_version"`
	Timestamp  int64  `json:"timestamp"`
}

type DeactivateRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
}

// ValidationResult is what Validate reports. It never carries a panic or a
// raw transport error; Err holds the tagged cause when Valid is false.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Features  []string   `json:"features"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Cached    bool       `json:"cached"`
	Offline   bool       `json:"offline"`
	Error     string     `json:"error,omitempty"`
	Err       error      `json:"-"`
}

// SessionState is the license view attached to a single login session.
type SessionState struct {
	LicenseKey  string     `json:"license_key"`
	Valid       bool       `json:"valid"`
	Features    []string   `json:"features"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ValidatedAt time.Time  `json:"validated_at"`
	HardwareID  string     `json:"hardware_id"`
}

func (s SessionState) HasFeature(name string) bool {
	name = NormalizeFeature(name)
	for _, feature := range s.Features {
		if NormalizeFeature(feature) == name {
			return true
		}
	}
	return false
}

// SessionContext carries the license state of one session through License
// Gate calls. It is not safe for concurrent use; each request owns its own.
type SessionContext struct {
	id      string
	state   *SessionState
	changed bool
}

func NewSessionContext(id string, state *SessionState) *SessionContext {
	sc := &SessionContext{id: id}
	if state != nil {
		copied := *state
		sc.state = &copied
	}
	return sc
}

func (c *SessionContext) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

func (c *SessionContext) State() (SessionState, bool) {
	if c == nil || c.state == nil {
		return SessionState{}, false
	}
	return *c.state, true
}

func (c *SessionContext) Set(state SessionState) {
	if c == nil {
		return
	}
	c.state = &state
	c.changed = true
}

func (c *SessionContext) Clear() {
	if c == nil {
		return
	}
	if c.state != nil {
		c.changed = true
	}
	c.state = nil
}

// Changed reports whether Set or Clear modified the state since creation.
func (c *SessionContext) Changed() bool {
	return c != nil && c.changed
}

// Status is the read-only summary shown on the license admin screen.
type Status struct {
	Enabled               bool          `json:"enabled"`
	InstallationID        string        `json:"installation_id"`
	HardwareIDMethod      string        `json:"hardware_id_method"`
	LicenseKey            string        `json:"license_key,omitempty"`
	Session               *SessionState `json:"session,omitempty"`
	Cache                 *CacheStatus  `json:"cache,omitempty"`
	CacheFreshnessSeconds int64         `json:"cache_freshness_seconds"`
	OfflineGraceSeconds   int64         `json:"offline_grace_seconds"`
}

type CacheStatus struct {
	LastValidatedAt time.Time  `json:"last_validated_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IsValid         bool       `json:"is_valid"`
	Features        []string   `json:"features"`
	Fresh           bool       `json:"fresh"`
	WithinGrace     bool       `json:"within_grace"`
}

// DeactivationResult reports the remote half of a deactivation. The local
// purge always happens.
type DeactivationResult struct {
	RemoteNotified bool   `json:"remote_notified"`
	RemoteError    string `json:"remote_error,omitempty"`
}

func NormalizeFeature(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MaskKey hides all but the edges of a license key for display.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
