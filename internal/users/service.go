package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/morotw/awards/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages account profiles resolved from validated session claims.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
		cache:  sync.Map{},
	}, nil
}

// ResolveProfile returns the stored profile for the validated session claims,
// creating it on first sight and mirroring changed display metadata into the
// row. Token roles seed IsAdmin on creation only; afterwards the stored flag
// is authoritative.
func (s *Service) ResolveProfile(claims auth.SessionClaims) (Profile, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return Profile{}, ErrInvalidIdentity
	}

	if cached, ok := s.cache.Load(subject); ok {
		if profile, ok := cached.(Profile); ok {
			return profile, nil
		}
	}

	var profile Profile
	err := s.db.Where("user_id = ?", subject).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:     subject,
			Username:   normalize(claims.Username),
			AvatarURL:  normalize(claims.AvatarURL),
			IsAdmin:    claims.HasRole(auth.RoleAdmin),
			LastSeenAt: s.now(),
		}
		if err := s.db.Create(&profile).Error; err != nil {
			return Profile{}, err
		}
	} else if err != nil {
		return Profile{}, err
	} else {
		updates := map[string]interface{}{}
		if username := normalize(claims.Username); username != "" && username != profile.Username {
			updates["username"] = username
			profile.Username = username
		}
		if avatar := normalize(claims.AvatarURL); avatar != "" && avatar != profile.AvatarURL {
			updates["avatar_url"] = avatar
			profile.AvatarURL = avatar
		}
		updates["last_seen_at"] = s.now()
		if err := s.db.Model(&Profile{}).
			Where("user_id = ?", subject).
			Updates(updates).
			Error; err != nil {
			// The stale row still serves the request; the failure must not
			// go dark.
			s.logger.Warn("profile metadata refresh failed",
				zap.String("user_id", subject),
				zap.Error(err))
		}
	}

	s.cache.Store(subject, profile)
	return profile, nil
}

// SetAdmin flips the stored admin flag and drops the cached profile so the
// change applies on the next request.
func (s *Service) SetAdmin(userID string, isAdmin bool) error {
	subject := normalize(userID)
	if subject == "" {
		return ErrInvalidIdentity
	}
	if err := s.db.Model(&Profile{}).
		Where("user_id = ?", subject).
		Update("is_admin", isAdmin).Error; err != nil {
		return err
	}
	s.cache.Delete(subject)
	return nil
}
