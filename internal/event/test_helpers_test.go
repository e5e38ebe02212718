package event

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDGenerator struct {
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustFinalistID(t *testing.T, value string) FinalistID {
	t.Helper()
	id, err := NewFinalistID(value)
	if err != nil {
		t.Fatalf("unexpected finalist id error: %v", err)
	}
	return id
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:awards_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&EventConfig{}, &Category{}, &Nomination{}, &Finalist{}, &Vote{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// Same partial index the production migrations create; the reveal path
	// relies on it as the arbiter for concurrent position claims.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_finalists_category_position
		ON finalists (category_id, final_position)
		WHERE final_position IS NOT NULL;`).Error; err != nil {
		t.Fatalf("failed to create position index: %v", err)
	}
	return db
}

// newTestService seeds the singleton config pinned to the supplied phase and
// a pair of categories, and returns a service with a fixed clock.
func newTestService(t *testing.T, phase Phase) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)

	forced := phase
	config := EventConfig{
		ID:               configRowID,
		NominationsStart: time.Unix(1700000000, 0).UTC(),
		NominationsEnd:   time.Unix(1700100000, 0).UTC(),
		CurationEnd:      time.Unix(1700200000, 0).UTC(),
		VotingEnd:        time.Unix(1700300000, 0).UTC(),
		GalaStart:        time.Unix(1700400000, 0).UTC(),
		GalaEnd:          time.Unix(1700500000, 0).UTC(),
		ForcePhase:       &forced,
	}
	if err := db.Create(&config).Error; err != nil {
		t.Fatalf("failed to seed config: %v", err)
	}

	categories := []Category{
		{ID: 5, Name: "Mejor Cuenta", Slug: "mejor-cuenta", Mode: ModeUser, DisplayOrder: 1},
		{ID: 7, Name: "Mejor Hilo", Slug: "mejor-hilo", Mode: ModeLink, DisplayOrder: 2},
		{ID: 9, Name: "Momento del Año", Slug: "momento", Mode: ModeLinkOrText, DisplayOrder: 3},
	}
	if err := db.Create(&categories).Error; err != nil {
		t.Fatalf("failed to seed categories: %v", err)
	}

	generator := &sequenceIDGenerator{prefix: "row"}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to construct event service: %v", err)
	}
	return service, db
}

func seedFinalist(t *testing.T, db *gorm.DB, finalist Finalist) Finalist {
	t.Helper()
	if err := db.Create(&finalist).Error; err != nil {
		t.Fatalf("failed to seed finalist: %v", err)
	}
	return finalist
}
