package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/internal/auth/domain"
	"github.com/smallbiznis/fintrack/internal/auth/password"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	defaultSessionTTL = 7 * 24 * time.Hour
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	genID       *snowflake.Node
	clock       clock.Clock
	sessionTTL  time.Duration
}

func New(p Params) domain.Service {
	ttl := p.Config.Session.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:         p.Log.Named("auth.service"),
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		genID:       p.GenID,
		clock:       clk,
		sessionTTL:  ttl,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	username := normalizeUsername(req.Username)
	if username == "" {
		return nil, domain.ErrInvalidUsername
	}
	if err := password.Validate(req.Password); err != nil {
		return nil, domain.ErrInvalidPassword
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("auth.user.created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", role.String()),
	)
	return user, nil
}

func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

func (s *Service) VerifyCredentials(ctx context.Context, username, plain string) (*domain.User, error) {
	username = normalizeUsername(username)
	if username == "" || plain == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(plain, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	if password.NeedsRehash(user.PasswordHash) {
		if hashed, err := password.Hash(plain); err == nil {
			if err := s.repo.UpdateFields(ctx, user.ID, map[string]any{
				"password_hash": hashed,
				"updated_at":    s.clock.Now(),
			}); err != nil {
				s.log.Warn("auth.password.rehash_failed", zap.Error(err))
			}
		}
	}
	return user, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListAdmins(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListByRole(ctx, domain.RoleAdmin)
}

func (s *Service) ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error {
	if err := password.Validate(newPassword); err != nil {
		return domain.ErrInvalidPassword
	}
	hashed, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, userID, map[string]any{
		"password_hash": hashed,
		"updated_at":    s.clock.Now(),
	})
}

func (s *Service) GetLicenseKey(ctx context.Context, userID snowflake.ID) (string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.LicenseKey == nil || strings.TrimSpace(*user.LicenseKey) == "" {
		return "", domain.ErrLicenseKeyNotSet
	}
	return *user.LicenseKey, nil
}

func (s *Service) SetLicenseKey(ctx context.Context, userID snowflake.ID, key string) error {
	key = strings.TrimSpace(key)
	var value any
	if key != "" {
		value = key
	}
	return s.repo.UpdateFields(ctx, userID, map[string]any{
		"license_key": value,
		"updated_at":  s.clock.Now(),
	})
}

// FindAnyLicenseKey returns the installation-wide license key. Keys stored on
// admins win over keys stored on other users.
func (s *Service) FindAnyLicenseKey(ctx context.Context) (string, error) {
	users, err := s.repo.FindWithLicenseKey(ctx)
	if err != nil {
		return "", err
	}
	for _, user := range users {
		if user.LicenseKey != nil && strings.TrimSpace(*user.LicenseKey) != "" {
			return *user.LicenseKey, nil
		}
	}
	return "", domain.ErrLicenseKeyNotSet
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	user, err := s.VerifyCredentials(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		SessionTokenHash: HashToken(rawToken),
		State:            domain.SessionStatePending,
		UserAgent:        strings.TrimSpace(req.UserAgent),
		IPAddress:        strings.TrimSpace(req.IPAddress),
		ExpiresAt:        now.Add(s.sessionTTL),
		LastSeenAt:       now,
		CreatedAt:        now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info("auth.login.pending",
		zap.String("user_id", user.ID.String()),
		zap.String("session_id", session.ID.String()),
	)

	return &domain.LoginResult{
		User:      user,
		Session:   session,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if s.clock.Now().After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id snowflake.ID) (*domain.Session, error) {
	return s.sessionRepo.GetSessionByID(ctx, id)
}

func (s *Service) TouchSession(ctx context.Context, sessionID snowflake.ID, at time.Time) error {
	return s.sessionRepo.UpdateSessionFields(ctx, sessionID, map[string]any{
		"last_seen_at": at,
	})
}

func (s *Service) MarkAuthenticated(ctx context.Context, sessionID snowflake.ID, checkedAt time.Time) error {
	return s.sessionRepo.UpdateSessionFields(ctx, sessionID, map[string]any{
		"state":              domain.SessionStateAuthenticated,
		"license_checked_at": checkedAt,
		"last_seen_at":       checkedAt,
	})
}

func (s *Service) MarkLicenseChecked(ctx context.Context, sessionID snowflake.ID, checkedAt time.Time) error {
	return s.sessionRepo.UpdateSessionFields(ctx, sessionID, map[string]any{
		"license_checked_at": checkedAt,
	})
}

func (s *Service) RevokeSession(ctx context.Context, sessionID snowflake.ID) error {
	if err := s.sessionRepo.RevokeSession(ctx, sessionID, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("auth.session.revoked", zap.String("session_id", sessionID.String()))
	return nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the stored form of a raw session token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
