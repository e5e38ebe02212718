package event

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew       = "event.service.new"
	opLoadConfig       = "event.load_config"
	opSubmitNomination = "event.submit_nomination"
	opCastVote         = "event.cast_vote"
	opRevealFinalist   = "event.reveal_finalist"
	opCreateFinalist   = "event.create_finalist"
	opUpdateConfig     = "event.update_config"
	opListRecords      = "event.list_records"
)

// configRowID is the primary key of the singleton configuration row.
const configRowID = 1

// IDProvider issues identifiers for new rows.
type IDProvider interface {
	NewID() (string, error)
}

// RevealPublisher receives finalists the moment their reveal commits.
type RevealPublisher interface {
	PublishReveal(finalist Finalist)
}

// ServiceConfig bundles the dependencies of the event service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	ConfigTTL  time.Duration
	Reveals    RevealPublisher
}

// Service enforces the phase gates and the integrity rules of the event:
// nomination merging, one vote per user per category, and one-way ordered
// reveals. It is the only writer of the aggregate counters.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
	configCache *ConfigCache
	reveals     RevealPublisher
}

// NewService constructs the event service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	service := &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		reveals:    cfg.Reveals,
	}

	cache, err := NewConfigCache(ConfigCacheOptions{
		Loader: service.fetchConfig,
		TTL:    cfg.ConfigTTL,
		Clock:  clock,
	})
	if err != nil {
		return nil, newServiceError(opServiceNew, "config_cache", err)
	}
	service.configCache = cache

	return service, nil
}

func (s *Service) fetchConfig(ctx context.Context) (EventConfig, error) {
	var config EventConfig
	err := s.db.WithContext(ctx).Where("id = ?", configRowID).Take(&config).Error
	if err != nil {
		return EventConfig{}, newServiceError(opLoadConfig, "query_failed", err)
	}
	return config, nil
}

// CurrentConfig returns the event configuration through the TTL cache.
func (s *Service) CurrentConfig(ctx context.Context) (EventConfig, error) {
	return s.configCache.Get(ctx)
}

// InvalidateConfig drops the cached configuration after an external write.
func (s *Service) InvalidateConfig() {
	s.configCache.Invalidate()
}

// CurrentPhaseInfo resolves the current phase and its display metadata.
func (s *Service) CurrentPhaseInfo(ctx context.Context) (PhaseInfo, error) {
	config, err := s.CurrentConfig(ctx)
	if err != nil {
		return PhaseInfo{}, err
	}
	return ComputePhaseInfo(config, s.clock()), nil
}

// NominationRequest is the raw submission supplied by a signed-in user.
type NominationRequest struct {
	CategoryID       int
	SubmitterID      UserID
	NominatedUser    string
	NominatedLink    string
	NominatedText    string
	IsDeletedContent bool
}

// SubmitNomination accepts a submission during the nominations phase,
// normalizing the target for the category mode. Same-category submissions of
// one handle fold into a single row whose count increments; exactly one of
// {increment, insert} happens per accepted call.
func (s *Service) SubmitNomination(ctx context.Context, req NominationRequest) (Nomination, error) {
	config, err := s.CurrentConfig(ctx)
	if err != nil {
		s.logError(opSubmitNomination, "config_load_failed", err)
		return Nomination{}, err
	}
	if phase := ComputePhase(config, s.clock()); !CanNominate(phase) {
		return Nomination{}, newRejection(KindPhaseClosed, "las nominaciones están cerradas")
	}

	var category Category
	err = s.db.WithContext(ctx).Where("id = ?", req.CategoryID).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Nomination{}, newRejection(KindInvalidTarget, "categoría desconocida")
	}
	if err != nil {
		s.logError(opSubmitNomination, "category_select_failed", err, zap.Int("category_id", req.CategoryID))
		return Nomination{}, newServiceError(opSubmitNomination, "category_select_failed", err)
	}

	target, err := normalizeTarget(category.Mode, req)
	if err != nil {
		return Nomination{}, err
	}

	var result Nomination
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key := target.MergeKey(); key != "" {
			var existing Nomination
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("category_id = ? AND lower(nominated_user) = ?", req.CategoryID, key).
				Take(&existing).Error
			if err == nil {
				if err := tx.Model(&Nomination{}).
					Where("id = ?", existing.ID).
					UpdateColumn("nomination_count", gorm.Expr("nomination_count + 1")).Error; err != nil {
					s.logError(opSubmitNomination, "count_update_failed", err, zap.String("nomination_id", existing.ID))
					return newServiceError(opSubmitNomination, "count_update_failed", err)
				}
				existing.NominationCount++
				result = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logError(opSubmitNomination, "merge_select_failed", err, zap.Int("category_id", req.CategoryID))
				return newServiceError(opSubmitNomination, "merge_select_failed", err)
			}
		}

		nominationID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opSubmitNomination, "id_generation_failed", err)
			return newServiceError(opSubmitNomination, "id_generation_failed", err)
		}
		result = Nomination{
			ID:               nominationID,
			CategoryID:       req.CategoryID,
			SubmitterID:      req.SubmitterID.String(),
			NominatedUser:    target.User,
			NominatedLink:    target.Link,
			NominatedText:    target.Text,
			IsDeletedContent: target.IsDeletedContent,
			NominationCount:  1,
		}
		if err := tx.Create(&result).Error; err != nil {
			s.logError(opSubmitNomination, "insert_failed", err, zap.Int("category_id", req.CategoryID))
			return newServiceError(opSubmitNomination, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Nomination{}, txErr
	}

	return result, nil
}

// VoteRequest identifies one vote cast by a signed-in user.
type VoteRequest struct {
	VoterID    UserID
	CategoryID int
	FinalistID FinalistID
}

// CastVote records exactly one vote per (user, category) during the voting
// phase and bumps the finalist counter in the same transaction. The unique
// index on votes is the final arbiter under concurrent casts; its violation
// surfaces as a duplicate-vote rejection, never a raw storage error.
func (s *Service) CastVote(ctx context.Context, req VoteRequest) (Vote, error) {
	config, err := s.CurrentConfig(ctx)
	if err != nil {
		s.logError(opCastVote, "config_load_failed", err)
		return Vote{}, err
	}
	if phase := ComputePhase(config, s.clock()); !CanVote(phase) {
		return Vote{}, newRejection(KindPhaseClosed, "la votación no está abierta")
	}

	var result Vote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var finalist Finalist
		err := tx.Where("id = ?", req.FinalistID.String()).Take(&finalist).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newRejection(KindInvalidFinalist, "finalista no válido")
		}
		if err != nil {
			s.logError(opCastVote, "finalist_select_failed", err, zap.String("finalist_id", req.FinalistID.String()))
			return newServiceError(opCastVote, "finalist_select_failed", err)
		}
		if finalist.CategoryID != req.CategoryID {
			return newRejection(KindInvalidFinalist, "finalista no válido")
		}

		var existing Vote
		err = tx.Where("user_id = ? AND category_id = ?", req.VoterID.String(), req.CategoryID).
			Take(&existing).Error
		if err == nil {
			return newRejection(KindDuplicateVote, "ya has votado en esta categoría")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opCastVote, "vote_select_failed", err, zap.String("user_id", req.VoterID.String()))
			return newServiceError(opCastVote, "vote_select_failed", err)
		}

		voteID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCastVote, "id_generation_failed", err)
			return newServiceError(opCastVote, "id_generation_failed", err)
		}
		result = Vote{
			ID:         voteID,
			UserID:     req.VoterID.String(),
			CategoryID: req.CategoryID,
			FinalistID: req.FinalistID.String(),
		}
		if err := tx.Create(&result).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newRejection(KindDuplicateVote, "ya has votado en esta categoría")
			}
			s.logError(opCastVote, "insert_failed", err, zap.String("user_id", req.VoterID.String()))
			return newServiceError(opCastVote, "insert_failed", err)
		}

		if err := tx.Model(&Finalist{}).
			Where("id = ?", req.FinalistID.String()).
			UpdateColumn("vote_count", gorm.Expr("vote_count + 1")).Error; err != nil {
			s.logError(opCastVote, "count_update_failed", err, zap.String("finalist_id", req.FinalistID.String()))
			return newServiceError(opCastVote, "count_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Vote{}, txErr
	}

	return result, nil
}

// RevealFinalist performs the one-way Hidden to Revealed transition, pinning
// the finalist to an unoccupied position within its category. Temporal order
// across positions is an operator convention, not enforced here; reveals are
// accepted even while the gala is not flagged live. The partial unique index
// on (category_id, final_position) is the final arbiter under concurrent
// reveals of the same position.
func (s *Service) RevealFinalist(ctx context.Context, finalistID FinalistID, position int) (Finalist, error) {
	if position < 1 {
		return Finalist{}, newServiceError(opRevealFinalist, "invalid_position", errors.New("position must be at least 1"))
	}

	var result Finalist
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var finalist Finalist
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", finalistID.String()).
			Take(&finalist).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newRejection(KindInvalidFinalist, "finalista no válido")
		}
		if err != nil {
			s.logError(opRevealFinalist, "finalist_select_failed", err, zap.String("finalist_id", finalistID.String()))
			return newServiceError(opRevealFinalist, "finalist_select_failed", err)
		}
		if finalist.IsRevealed {
			return newRejection(KindAlreadyRevealed, "el finalista ya está revelado")
		}

		var occupant Finalist
		err = tx.Where("category_id = ? AND final_position = ? AND id <> ?",
			finalist.CategoryID, position, finalist.ID).
			Take(&occupant).Error
		if err == nil {
			return newRejection(KindPositionTaken, "la posición ya está ocupada")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opRevealFinalist, "position_select_failed", err, zap.Int("position", position))
			return newServiceError(opRevealFinalist, "position_select_failed", err)
		}

		revealedAt := s.clock().UTC()
		updates := map[string]interface{}{
			"is_revealed":    true,
			"revealed_at":    revealedAt,
			"final_position": position,
		}
		if err := tx.Model(&Finalist{}).Where("id = ?", finalist.ID).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newRejection(KindPositionTaken, "la posición ya está ocupada")
			}
			s.logError(opRevealFinalist, "update_failed", err, zap.String("finalist_id", finalist.ID))
			return newServiceError(opRevealFinalist, "update_failed", err)
		}

		finalist.IsRevealed = true
		finalist.RevealedAt = &revealedAt
		finalist.FinalPosition = &position
		result = finalist
		return nil
	})
	if txErr != nil {
		return Finalist{}, txErr
	}

	if s.reveals != nil {
		s.reveals.PublishReveal(result)
	}
	return result, nil
}

// FinalistDraft carries the display metadata for a curated finalist.
type FinalistDraft struct {
	CategoryID         int
	DisplayName        string
	DisplayHandle      string
	DisplayImage       string
	DisplayDescription string
	OriginalLink       string
}

// CreateFinalist promotes a curated nominee into the voting pool.
func (s *Service) CreateFinalist(ctx context.Context, draft FinalistDraft) (Finalist, error) {
	if draft.DisplayName == "" {
		return Finalist{}, newRejection(KindInvalidTarget, "el finalista necesita un nombre")
	}

	var category Category
	err := s.db.WithContext(ctx).Where("id = ?", draft.CategoryID).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Finalist{}, newRejection(KindInvalidTarget, "categoría desconocida")
	}
	if err != nil {
		s.logError(opCreateFinalist, "category_select_failed", err, zap.Int("category_id", draft.CategoryID))
		return Finalist{}, newServiceError(opCreateFinalist, "category_select_failed", err)
	}

	finalistID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateFinalist, "id_generation_failed", err)
		return Finalist{}, newServiceError(opCreateFinalist, "id_generation_failed", err)
	}
	finalist := Finalist{
		ID:                 finalistID,
		CategoryID:         draft.CategoryID,
		DisplayName:        draft.DisplayName,
		DisplayHandle:      NormalizeHandle(draft.DisplayHandle),
		DisplayImage:       draft.DisplayImage,
		DisplayDescription: draft.DisplayDescription,
		OriginalLink:       draft.OriginalLink,
	}
	if err := s.db.WithContext(ctx).Create(&finalist).Error; err != nil {
		s.logError(opCreateFinalist, "insert_failed", err, zap.Int("category_id", draft.CategoryID))
		return Finalist{}, newServiceError(opCreateFinalist, "insert_failed", err)
	}
	return finalist, nil
}

// Schedule carries the six ordered boundary timestamps of the event. Ordering
// is the admin console's responsibility; the phase ladder stays deterministic
// either way.
type Schedule struct {
	NominationsStart time.Time
	NominationsEnd   time.Time
	CurationEnd      time.Time
	VotingEnd        time.Time
	GalaStart        time.Time
	GalaEnd          time.Time
}

// UpdateSchedule replaces the configured boundary timestamps.
func (s *Service) UpdateSchedule(ctx context.Context, schedule Schedule) (EventConfig, error) {
	updates := map[string]interface{}{
		"nominations_start": schedule.NominationsStart,
		"nominations_end":   schedule.NominationsEnd,
		"curation_end":      schedule.CurationEnd,
		"voting_end":        schedule.VotingEnd,
		"gala_start":        schedule.GalaStart,
		"gala_end":          schedule.GalaEnd,
	}
	return s.updateConfig(ctx, updates)
}

// SetForcePhase pins or clears the manual phase override.
func (s *Service) SetForcePhase(ctx context.Context, phase *Phase) (EventConfig, error) {
	var value interface{}
	if phase != nil {
		value = phase.String()
	}
	return s.updateConfig(ctx, map[string]interface{}{"force_phase": value})
}

// SetGalaActive flips the idempotent ceremony-live flag.
func (s *Service) SetGalaActive(ctx context.Context, active bool) (EventConfig, error) {
	return s.updateConfig(ctx, map[string]interface{}{"gala_active": active})
}

// SetResultsPublic publishes or retracts the final standings. While true it
// outranks every other phase source.
func (s *Service) SetResultsPublic(ctx context.Context, public bool) (EventConfig, error) {
	return s.updateConfig(ctx, map[string]interface{}{"results_public": public})
}

// SetSpecialCategory stores the crowd-proposed special category title and
// whether the crew has locked it in.
func (s *Service) SetSpecialCategory(ctx context.Context, title string, decided bool) (EventConfig, error) {
	return s.updateConfig(ctx, map[string]interface{}{
		"special_category_title":   title,
		"special_category_decided": decided,
	})
}

func (s *Service) updateConfig(ctx context.Context, updates map[string]interface{}) (EventConfig, error) {
	if err := s.db.WithContext(ctx).Model(&EventConfig{}).
		Where("id = ?", configRowID).
		Updates(updates).Error; err != nil {
		s.logError(opUpdateConfig, "update_failed", err)
		return EventConfig{}, newServiceError(opUpdateConfig, "update_failed", err)
	}
	s.configCache.Invalidate()
	return s.fetchConfig(ctx)
}

// ListCategories returns every category in display order.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.db.WithContext(ctx).Order("display_order ASC").Find(&categories).Error; err != nil {
		s.logError(opListRecords, "categories_query_failed", err)
		return nil, newServiceError(opListRecords, "categories_query_failed", err)
	}
	return categories, nil
}

// ListNominations returns nominations for curation, most nominated first.
// A zero categoryID returns every category.
func (s *Service) ListNominations(ctx context.Context, categoryID int) ([]Nomination, error) {
	query := s.db.WithContext(ctx).Order("nomination_count DESC")
	if categoryID != 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	var nominations []Nomination
	if err := query.Find(&nominations).Error; err != nil {
		s.logError(opListRecords, "nominations_query_failed", err, zap.Int("category_id", categoryID))
		return nil, newServiceError(opListRecords, "nominations_query_failed", err)
	}
	return nominations, nil
}

// ListFinalists returns finalists ordered by category. A zero categoryID
// returns every category.
func (s *Service) ListFinalists(ctx context.Context, categoryID int) ([]Finalist, error) {
	query := s.db.WithContext(ctx).Order("category_id ASC, vote_count DESC")
	if categoryID != 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	var finalists []Finalist
	if err := query.Find(&finalists).Error; err != nil {
		s.logError(opListRecords, "finalists_query_failed", err, zap.Int("category_id", categoryID))
		return nil, newServiceError(opListRecords, "finalists_query_failed", err)
	}
	return finalists, nil
}

// RevealedFinalists returns revealed finalists, newest reveal first.
func (s *Service) RevealedFinalists(ctx context.Context) ([]Finalist, error) {
	var finalists []Finalist
	if err := s.db.WithContext(ctx).
		Where("is_revealed = ?", true).
		Order("revealed_at DESC").
		Find(&finalists).Error; err != nil {
		s.logError(opListRecords, "revealed_query_failed", err)
		return nil, newServiceError(opListRecords, "revealed_query_failed", err)
	}
	return finalists, nil
}

// UserVotes returns the votes cast by one user.
func (s *Service) UserVotes(ctx context.Context, userID UserID) ([]Vote, error) {
	var votes []Vote
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Find(&votes).Error; err != nil {
		s.logError(opListRecords, "votes_query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListRecords, "votes_query_failed", err)
	}
	return votes, nil
}

// UserNominations returns the nominations submitted by one user.
func (s *Service) UserNominations(ctx context.Context, userID UserID) ([]Nomination, error) {
	var nominations []Nomination
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("category_id ASC").
		Find(&nominations).Error; err != nil {
		s.logError(opListRecords, "nominations_query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListRecords, "nominations_query_failed", err)
	}
	return nominations, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("event service error", attrs...)
}
