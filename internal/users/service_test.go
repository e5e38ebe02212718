package users

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/morotw/awards/backend/internal/auth"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func sessionClaims(subject, username string, roles ...string) auth.SessionClaims {
	return auth.SessionClaims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
		},
	}
}

func TestResolveProfileCreatesOnFirstSight(t *testing.T) {
	service, db := newTestService(t)

	profile, err := service.ResolveProfile(sessionClaims("user-1", "foo"))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if profile.UserID != "user-1" || profile.Username != "foo" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.IsAdmin {
		t.Fatalf("plain claims must not grant admin")
	}

	var total int64
	if err := db.Model(&Profile{}).Count(&total).Error; err != nil {
		t.Fatalf("failed to count profiles: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected one profile row, got %d", total)
	}

	// second resolve hits the cache and must not duplicate the row
	if _, err := service.ResolveProfile(sessionClaims("user-1", "foo")); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if err := db.Model(&Profile{}).Count(&total).Error; err != nil {
		t.Fatalf("failed to count profiles: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected profile row to remain unique, got %d", total)
	}
}

func TestResolveProfileSeedsAdminFromRoleOnCreation(t *testing.T) {
	service, _ := newTestService(t)

	profile, err := service.ResolveProfile(sessionClaims("operator-1", "op", auth.RoleAdmin))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !profile.IsAdmin {
		t.Fatalf("expected admin profile from admin role")
	}
}

func TestStoredAdminFlagWinsOverToken(t *testing.T) {
	service, db := newTestService(t)

	if _, err := service.ResolveProfile(sessionClaims("user-1", "foo")); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := db.Model(&Profile{}).Where("user_id = ?", "user-1").Update("is_admin", true).Error; err != nil {
		t.Fatalf("failed to flip admin flag: %v", err)
	}
	service.cache.Delete("user-1")

	// token without the admin role, stored flag set
	profile, err := service.ResolveProfile(sessionClaims("user-1", "foo"))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !profile.IsAdmin {
		t.Fatalf("stored admin flag must be authoritative")
	}
}

func TestSetAdminDropsCache(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.ResolveProfile(sessionClaims("user-1", "foo")); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := service.SetAdmin("user-1", true); err != nil {
		t.Fatalf("set admin failed: %v", err)
	}
	profile, err := service.ResolveProfile(sessionClaims("user-1", "foo"))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !profile.IsAdmin {
		t.Fatalf("expected admin after SetAdmin")
	}
}

func TestResolveProfileRejectsEmptySubject(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.ResolveProfile(sessionClaims("", "foo")); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestResolveProfileLogsMetadataRefreshFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
		Logger:   zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	if _, err := service.ResolveProfile(sessionClaims("user-1", "foo")); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Block profile updates at the store and force the refresh path.
	if err := db.Exec(`CREATE TRIGGER block_profile_updates BEFORE UPDATE ON profiles
		BEGIN SELECT RAISE(ABORT, 'updates disabled'); END;`).Error; err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}
	service.cache.Delete("user-1")

	profile, err := service.ResolveProfile(sessionClaims("user-1", "bar"))
	if err != nil {
		t.Fatalf("resolution must survive a failed metadata refresh: %v", err)
	}
	if profile.UserID != "user-1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if logs.FilterMessage("profile metadata refresh failed").Len() != 1 {
		t.Fatalf("expected the refresh failure to be logged, got %d entries", logs.Len())
	}
}
