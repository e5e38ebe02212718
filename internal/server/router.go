package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/morotw/awards/backend/internal/auth"
	"github.com/morotw/awards/backend/internal/event"
	"github.com/morotw/awards/backend/internal/users"
	"go.uber.org/zap"
)

const profileContextKey = "awards_profile"

var (
	errMissingSessionManager = errors.New("session manager dependency required")
	errMissingProfileService = errors.New("profile service dependency required")
	errMissingEventService   = errors.New("event service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	Sessions *auth.SessionManager
	Profiles *users.Service
	Events   *event.Service
	Realtime *RealtimeDispatcher
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the awards API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.Profiles == nil {
		return nil, errMissingProfileService
	}
	if deps.Events == nil {
		return nil, errMissingEventService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions: deps.Sessions,
		profiles: deps.Profiles,
		events:   deps.Events,
		realtime: deps.Realtime,
		logger:   logger,
	}

	router.POST("/auth/session", handler.handleSessionExchange)
	router.GET("/config", handler.handleGetConfig)
	router.GET("/categories", handler.handleListCategories)
	router.GET("/finalists", handler.handleListFinalists)
	router.GET("/results", handler.handleResults)
	router.GET("/gala/stream", handler.handleGalaStream)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/nominations", handler.handleSubmitNomination)
	protected.GET("/nominations", handler.handleOwnNominations)
	protected.POST("/votes", handler.handleCastVote)
	protected.GET("/votes", handler.handleOwnVotes)

	admin := protected.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.PUT("/config", handler.handleUpdateConfig)
	admin.POST("/gala", handler.handleGalaAction)
	admin.PUT("/gala", handler.handleGalaFlags)
	admin.POST("/finalists", handler.handleCreateFinalist)
	admin.GET("/nominations", handler.handleCurationNominations)

	return router, nil
}

type httpHandler struct {
	sessions *auth.SessionManager
	profiles *users.Service
	events   *event.Service
	realtime *RealtimeDispatcher
	logger   *zap.Logger
}

type sessionRequestPayload struct {
	Token string `json:"token"`
}

type sessionResponsePayload struct {
	AccessToken string        `json:"access_token"`
	ExpiresIn   int64         `json:"expires_in"`
	TokenType   string        `json:"token_type"`
	Profile     users.Profile `json:"profile"`
}

// handleSessionExchange validates a gateway-minted session token, resolves
// the profile, and hands back a fresh backend token.
func (h *httpHandler) handleSessionExchange(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.sessions.ValidateToken(request.Token)
	if err != nil {
		h.logger.Warn("session token validation failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	profile, err := h.profiles.ResolveProfile(claims)
	if err != nil {
		h.logger.Error("failed to resolve profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_resolution_failed"})
		return
	}

	token, expiresIn, err := h.sessions.IssueSessionToken(
		c.Request.Context(), profile.UserID, profile.Username, profile.AvatarURL, claims.Roles)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Profile:     profile,
	})
}

type configResponsePayload struct {
	Phase                  event.Phase  `json:"phase"`
	Label                  string       `json:"label"`
	Description            string       `json:"description"`
	CountdownTarget        *time.Time   `json:"countdown_target"`
	IsLive                 bool         `json:"is_live"`
	GalaActive             bool         `json:"gala_active"`
	ResultsPublic          bool         `json:"results_public"`
	SpecialCategoryTitle   string       `json:"special_category_title"`
	SpecialCategoryDecided bool         `json:"special_category_decided"`
	Schedule               scheduleBody `json:"schedule"`
}

type scheduleBody struct {
	NominationsStart time.Time `json:"nominations_start"`
	NominationsEnd   time.Time `json:"nominations_end"`
	CurationEnd      time.Time `json:"curation_end"`
	VotingEnd        time.Time `json:"voting_end"`
	GalaStart        time.Time `json:"gala_start"`
	GalaEnd          time.Time `json:"gala_end"`
}

func (h *httpHandler) handleGetConfig(c *gin.Context) {
	config, err := h.events.CurrentConfig(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	info, err := h.events.CurrentPhaseInfo(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configResponsePayload{
		Phase:                  info.Phase,
		Label:                  info.Label,
		Description:            info.Description,
		CountdownTarget:        info.CountdownTarget,
		IsLive:                 info.IsLive,
		GalaActive:             config.GalaActive,
		ResultsPublic:          config.ResultsPublic,
		SpecialCategoryTitle:   config.SpecialCategoryTitle,
		SpecialCategoryDecided: config.SpecialCategoryDecided,
		Schedule: scheduleBody{
			NominationsStart: config.NominationsStart,
			NominationsEnd:   config.NominationsEnd,
			CurationEnd:      config.CurationEnd,
			VotingEnd:        config.VotingEnd,
			GalaStart:        config.GalaStart,
			GalaEnd:          config.GalaEnd,
		},
	})
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	categories, err := h.events.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *httpHandler) handleListFinalists(c *gin.Context) {
	categoryID, ok := optionalCategoryID(c)
	if !ok {
		return
	}
	finalists, err := h.events.ListFinalists(c.Request.Context(), categoryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if c.Query("revealed") == "true" {
		revealed := finalists[:0]
		for _, finalist := range finalists {
			if finalist.IsRevealed {
				revealed = append(revealed, finalist)
			}
		}
		finalists = revealed
	}
	c.JSON(http.StatusOK, finalists)
}

func (h *httpHandler) handleResults(c *gin.Context) {
	finalists, err := h.events.RevealedFinalists(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, finalists)
}

// handleGalaStream serves the reveal broadcast as server-sent events.
func (h *httpHandler) handleGalaStream(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream_unavailable"})
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(realtimeEventReveal, message)
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type nominationRequestPayload struct {
	CategoryID       int    `json:"category_id"`
	NominatedUser    string `json:"nominated_user"`
	NominatedLink    string `json:"nominated_link"`
	NominatedText    string `json:"nominated_text"`
	IsDeletedContent bool   `json:"is_deleted_content"`
}

func (h *httpHandler) handleSubmitNomination(c *gin.Context) {
	profile, ok := requestProfile(c)
	if !ok {
		return
	}

	var request nominationRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	submitterID, err := event.NewUserID(profile.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}

	nomination, err := h.events.SubmitNomination(c.Request.Context(), event.NominationRequest{
		CategoryID:       request.CategoryID,
		SubmitterID:      submitterID,
		NominatedUser:    request.NominatedUser,
		NominatedLink:    request.NominatedLink,
		NominatedText:    request.NominatedText,
		IsDeletedContent: request.IsDeletedContent,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, nomination)
}

func (h *httpHandler) handleOwnNominations(c *gin.Context) {
	profile, ok := requestProfile(c)
	if !ok {
		return
	}
	userID, err := event.NewUserID(profile.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	nominations, err := h.events.UserNominations(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nominations)
}

type voteRequestPayload struct {
	CategoryID int    `json:"category_id"`
	FinalistID string `json:"finalist_id"`
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	profile, ok := requestProfile(c)
	if !ok {
		return
	}

	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	voterID, err := event.NewUserID(profile.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	finalistID, err := event.NewFinalistID(request.FinalistID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_finalist_id"})
		return
	}

	vote, err := h.events.CastVote(c.Request.Context(), event.VoteRequest{
		VoterID:    voterID,
		CategoryID: request.CategoryID,
		FinalistID: finalistID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vote)
}

func (h *httpHandler) handleOwnVotes(c *gin.Context) {
	profile, ok := requestProfile(c)
	if !ok {
		return
	}
	userID, err := event.NewUserID(profile.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	votes, err := h.events.UserVotes(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

type updateConfigPayload struct {
	NominationsStart       time.Time `json:"nominations_start"`
	NominationsEnd         time.Time `json:"nominations_end"`
	CurationEnd            time.Time `json:"curation_end"`
	VotingEnd              time.Time `json:"voting_end"`
	GalaStart              time.Time `json:"gala_start"`
	GalaEnd                time.Time `json:"gala_end"`
	ForcePhase             *string   `json:"force_phase"`
	SpecialCategoryTitle   *string   `json:"special_category_title"`
	SpecialCategoryDecided *bool     `json:"special_category_decided"`
}

func (h *httpHandler) handleUpdateConfig(c *gin.Context) {
	var request updateConfigPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	config, err := h.events.UpdateSchedule(c.Request.Context(), event.Schedule{
		NominationsStart: request.NominationsStart,
		NominationsEnd:   request.NominationsEnd,
		CurationEnd:      request.CurationEnd,
		VotingEnd:        request.VotingEnd,
		GalaStart:        request.GalaStart,
		GalaEnd:          request.GalaEnd,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if request.ForcePhase != nil {
		config, err = h.applyForcePhase(c, *request.ForcePhase)
		if err != nil {
			return
		}
	}

	if request.SpecialCategoryTitle != nil || request.SpecialCategoryDecided != nil {
		title := config.SpecialCategoryTitle
		if request.SpecialCategoryTitle != nil {
			title = *request.SpecialCategoryTitle
		}
		decided := config.SpecialCategoryDecided
		if request.SpecialCategoryDecided != nil {
			decided = *request.SpecialCategoryDecided
		}
		config, err = h.events.SetSpecialCategory(c.Request.Context(), title, decided)
		if err != nil {
			h.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, config)
}

type galaActionPayload struct {
	FinalistID string `json:"finalist_id"`
	Action     string `json:"action"`
	Position   int    `json:"position"`
}

func (h *httpHandler) handleGalaAction(c *gin.Context) {
	var request galaActionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Action != "reveal" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
		return
	}
	finalistID, err := event.NewFinalistID(request.FinalistID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_finalist_id"})
		return
	}

	finalist, err := h.events.RevealFinalist(c.Request.Context(), finalistID, request.Position)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, finalist)
}

type galaFlagsPayload struct {
	GalaActive    *bool   `json:"gala_active"`
	ResultsPublic *bool   `json:"results_public"`
	ForcePhase    *string `json:"force_phase"`
}

func (h *httpHandler) handleGalaFlags(c *gin.Context) {
	var request galaFlagsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var config event.EventConfig
	var err error
	applied := false

	if request.GalaActive != nil {
		if config, err = h.events.SetGalaActive(c.Request.Context(), *request.GalaActive); err != nil {
			h.respondError(c, err)
			return
		}
		applied = true
	}
	if request.ResultsPublic != nil {
		if config, err = h.events.SetResultsPublic(c.Request.Context(), *request.ResultsPublic); err != nil {
			h.respondError(c, err)
			return
		}
		applied = true
	}
	if request.ForcePhase != nil {
		if config, err = h.applyForcePhase(c, *request.ForcePhase); err != nil {
			return
		}
		applied = true
	}

	if !applied {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_flags_supplied"})
		return
	}
	c.JSON(http.StatusOK, config)
}

// applyForcePhase parses and stores the override; an empty string clears it.
// On failure the response has already been written.
func (h *httpHandler) applyForcePhase(c *gin.Context, raw string) (event.EventConfig, error) {
	if strings.TrimSpace(raw) == "" {
		config, err := h.events.SetForcePhase(c.Request.Context(), nil)
		if err != nil {
			h.respondError(c, err)
		}
		return config, err
	}
	phase, err := event.ParsePhase(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_phase"})
		return event.EventConfig{}, err
	}
	config, err := h.events.SetForcePhase(c.Request.Context(), &phase)
	if err != nil {
		h.respondError(c, err)
	}
	return config, err
}

type createFinalistPayload struct {
	CategoryID         int    `json:"category_id"`
	DisplayName        string `json:"display_name"`
	DisplayHandle      string `json:"display_handle"`
	DisplayImage       string `json:"display_image"`
	DisplayDescription string `json:"display_description"`
	OriginalLink       string `json:"original_link"`
}

func (h *httpHandler) handleCreateFinalist(c *gin.Context) {
	var request createFinalistPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	finalist, err := h.events.CreateFinalist(c.Request.Context(), event.FinalistDraft{
		CategoryID:         request.CategoryID,
		DisplayName:        request.DisplayName,
		DisplayHandle:      request.DisplayHandle,
		DisplayImage:       request.DisplayImage,
		DisplayDescription: request.DisplayDescription,
		OriginalLink:       request.OriginalLink,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, finalist)
}

func (h *httpHandler) handleCurationNominations(c *gin.Context) {
	categoryID, ok := optionalCategoryID(c)
	if !ok {
		return
	}
	nominations, err := h.events.ListNominations(c.Request.Context(), categoryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nominations)
}

// authorizeRequest validates the bearer token and loads the caller's profile.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		h.logger.Warn("request missing bearer token", zap.Error(errInvalidAuthorization))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	claims, err := h.sessions.ValidateToken(token)
	if err != nil {
		h.logger.Warn("session token rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	profile, err := h.profiles.ResolveProfile(claims)
	if err != nil {
		h.logger.Error("failed to resolve profile", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile_resolution_failed"})
		return
	}

	c.Set(profileContextKey, profile)
	c.Next()
}

// requireAdmin gates the admin surface on the stored profile flag.
func (h *httpHandler) requireAdmin(c *gin.Context) {
	profile, ok := requestProfile(c)
	if !ok {
		return
	}
	if !profile.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func requestProfile(c *gin.Context) (users.Profile, bool) {
	value, exists := c.Get(profileContextKey)
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return users.Profile{}, false
	}
	profile, ok := value.(users.Profile)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "invalid_profile_context"})
		return users.Profile{}, false
	}
	return profile, true
}

func optionalCategoryID(c *gin.Context) (int, bool) {
	raw := c.Query("categoryId")
	if raw == "" {
		return 0, true
	}
	categoryID, err := strconv.Atoi(raw)
	if err != nil || categoryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_category_id"})
		return 0, false
	}
	return categoryID, true
}

// respondError maps typed rejections onto stable HTTP statuses; anything else
// is an internal failure reported with its operation code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	if kind, ok := event.RejectionKindOf(err); ok {
		status := http.StatusBadRequest
		switch kind {
		case event.KindPhaseClosed:
			status = http.StatusForbidden
		case event.KindDuplicateVote, event.KindPositionTaken, event.KindAlreadyRevealed:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": string(kind)})
		return
	}

	var serviceErr *event.ServiceError
	if errors.As(err, &serviceErr) {
		h.logger.Error("event service failure", zap.String("code", serviceErr.Code()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErr.Code()})
		return
	}

	h.logger.Error("unhandled failure", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
