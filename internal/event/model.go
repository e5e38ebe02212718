package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NominationMode determines what kind of target a category accepts.
type NominationMode string

const (
	// ModeUser nominates an account by handle or profile URL.
	ModeUser NominationMode = "user"
	// ModeLink nominates a piece of content by URL.
	ModeLink NominationMode = "link"
	// ModeText nominates with a free-text description.
	ModeText NominationMode = "text"
	// ModeLinkOrText accepts either a URL or a description.
	ModeLinkOrText NominationMode = "link_or_text"
)

// ErrInvalidMode indicates a nomination mode outside the closed set.
var ErrInvalidMode = errors.New("event: invalid nomination mode")

// ParseNominationMode validates raw input and returns a NominationMode.
func ParseNominationMode(rawInput string) (NominationMode, error) {
	switch mode := NominationMode(strings.ToLower(strings.TrimSpace(rawInput))); mode {
	case ModeUser, ModeLink, ModeText, ModeLinkOrText:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, rawInput)
	}
}

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("event: invalid user id")
	// ErrInvalidFinalistID indicates that a finalist identifier is empty or exceeds storage bounds.
	ErrInvalidFinalistID = errors.New("event: invalid finalist id")
)

// UserID represents a validated voter identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// FinalistID represents a validated finalist identifier.
type FinalistID string

// NewFinalistID validates raw input and returns a FinalistID.
func NewFinalistID(rawInput string) (FinalistID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidFinalistID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidFinalistID, maxIdentifierLength)
	}
	return FinalistID(trimmed), nil
}

// String returns the underlying string identifier.
func (id FinalistID) String() string {
	return string(id)
}

// EventConfig is the singleton row holding the event schedule and the
// administrative overrides. Mutated only through the admin operations.
type EventConfig struct {
	ID                     int        `gorm:"column:id;primaryKey" json:"id"`
	NominationsStart       time.Time  `gorm:"column:nominations_start;not null" json:"nominations_start"`
	NominationsEnd         time.Time  `gorm:"column:nominations_end;not null" json:"nominations_end"`
	CurationEnd            time.Time  `gorm:"column:curation_end;not null" json:"curation_end"`
	VotingEnd              time.Time  `gorm:"column:voting_end;not null" json:"voting_end"`
	GalaStart              time.Time  `gorm:"column:gala_start;not null" json:"gala_start"`
	GalaEnd                time.Time  `gorm:"column:gala_end;not null" json:"gala_end"`
	ForcePhase             *Phase     `gorm:"column:force_phase;size:32" json:"force_phase"`
	GalaActive             bool       `gorm:"column:gala_active;not null;default:false" json:"gala_active"`
	ResultsPublic          bool       `gorm:"column:results_public;not null;default:false" json:"results_public"`
	SpecialCategoryTitle   string     `gorm:"column:special_category_title;size:320" json:"special_category_title"`
	SpecialCategoryDecided bool       `gorm:"column:special_category_decided;not null;default:false" json:"special_category_decided"`
	UpdatedAt              time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (EventConfig) TableName() string {
	return "event_config"
}

// Category is a static reference entity describing one award.
type Category struct {
	ID           int            `gorm:"column:id;primaryKey" json:"id"`
	Name         string         `gorm:"column:name;size:320;not null" json:"name"`
	Slug         string         `gorm:"column:slug;size:190;not null;uniqueIndex" json:"slug"`
	Description  string         `gorm:"column:description;type:text" json:"description"`
	Mode         NominationMode `gorm:"column:mode;size:32;not null" json:"mode"`
	DisplayOrder int            `gorm:"column:display_order;not null;default:0" json:"display_order"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// Nomination is a raw submission. Same-category submissions for the same
// normalized user handle merge into one row via NominationCount.
type Nomination struct {
	ID               string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	CategoryID       int       `gorm:"column:category_id;not null;index:idx_nominations_category" json:"category_id"`
	SubmitterID      string    `gorm:"column:user_id;size:190;not null;index" json:"user_id"`
	NominatedUser    string    `gorm:"column:nominated_user;size:320" json:"nominated_user"`
	NominatedLink    string    `gorm:"column:nominated_link;size:512" json:"nominated_link"`
	NominatedText    string    `gorm:"column:nominated_text;type:text" json:"nominated_text"`
	IsDeletedContent bool      `gorm:"column:is_deleted_content;not null;default:false" json:"is_deleted_content"`
	NominationCount  int       `gorm:"column:nomination_count;not null;default:1" json:"nomination_count"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Nomination) TableName() string {
	return "nominations"
}

// Finalist is a curated nominee eligible to receive votes and be revealed.
// VoteCount is only ever incremented by accepted votes; IsRevealed is a
// one-way transition and FinalPosition is immutable once set.
type Finalist struct {
	ID                 string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	CategoryID         int        `gorm:"column:category_id;not null;index:idx_finalists_category" json:"category_id"`
	DisplayName        string     `gorm:"column:display_name;size:320;not null" json:"display_name"`
	DisplayHandle      string     `gorm:"column:display_handle;size:320" json:"display_handle"`
	DisplayImage       string     `gorm:"column:display_image;size:512" json:"display_image"`
	DisplayDescription string     `gorm:"column:display_description;type:text" json:"display_description"`
	OriginalLink       string     `gorm:"column:original_link;size:512" json:"original_link"`
	VoteCount          int        `gorm:"column:vote_count;not null;default:0" json:"vote_count"`
	FinalPosition      *int       `gorm:"column:final_position" json:"final_position"`
	IsRevealed         bool       `gorm:"column:is_revealed;not null;default:false" json:"is_revealed"`
	RevealedAt         *time.Time `gorm:"column:revealed_at" json:"revealed_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Finalist) TableName() string {
	return "finalists"
}

// Vote is one immutable record per (user, category) pair, backed by a unique
// index that acts as the final arbiter under concurrent casts.
type Vote struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID     string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_votes_user_category,priority:1" json:"user_id"`
	CategoryID int       `gorm:"column:category_id;not null;uniqueIndex:idx_votes_user_category,priority:2" json:"category_id"`
	FinalistID string    `gorm:"column:finalist_id;size:190;not null;index" json:"finalist_id"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}
