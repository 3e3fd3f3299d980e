package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/database"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/matching"
	"github.com/ZanzyTHEbar/blind-match/internal/questions"
)

const version = "1.0.0"

// CompatibilityRequest scores one pair.
type CompatibilityRequest struct {
	EventID int            `json:"event_id" example:"3"`
	A       int            `json:"participant_a" example:"12"`
	B       int            `json:"participant_b" example:"31"`
	Mode    analysis.Mode  `json:"mode" example:"standard"`
	Model   analysis.Model `json:"model" example:"pair"`
	AI      bool           `json:"ai"`
}

// CompatibilityResponse wraps a scored pair.
type CompatibilityResponse struct {
	Result   analysis.PairResult `json:"result"`
	CacheHit bool                `json:"cache_hit"`
}

// GroupRequest scores a group of three or four.
type GroupRequest struct {
	EventID int            `json:"event_id" example:"3"`
	Members []int          `json:"members" example:"4,9,17"`
	Mode    analysis.Mode  `json:"mode"`
	Model   analysis.Model `json:"model"`
	AI      bool           `json:"ai"`
}

// QuestionsRequest asks for the conversation starters of a match.
type QuestionsRequest struct {
	MatchID string `json:"match_id" example:"3-1-12-31"`
	Round   int    `json:"round" example:"1"`
	A       int    `json:"participant_a" example:"12"`
	B       int    `json:"participant_b" example:"31"`
}

// QuestionsResponse is an exact set of five questions.
type QuestionsResponse struct {
	Questions []string         `json:"questions"`
	Source    questions.Source `json:"source"`
	Cached    bool             `json:"cached"`
}

// LoginRequest carries the admin password.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is a signed admin session.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(errors.NewValidationError("invalid request body", map[string]any{"error": err.Error()}))
		return false
	}
	return true
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		_ = c.Error(errors.NewValidationError(name+" must be an integer", map[string]any{name: c.Param(name)}))
		return 0, false
	}
	return n, true
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		_ = c.Error(errors.NewValidationError(name+" must be an integer", map[string]any{name: raw}))
		return 0, false
	}
	return n, true
}

// candidate loads a participant and its traits.
func (a *application) candidate(ctx context.Context, number int) (matching.Candidate, error) {
	traits, p, err := a.participants.Traits(ctx, number)
	if err != nil {
		return matching.Candidate{}, err
	}
	return matching.Candidate{Participant: *p, Traits: traits}, nil
}

// handleHealth godoc
// @Summary      Service health
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      503  {object}  map[string]any
// @Router       /health [get]
func (a *application) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	services := gin.H{"database": "ok"}

	if err := a.db.HealthCheck(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		services["database"] = err.Error()
	}
	if a.redis.IsEnabled() {
		services["redis"] = "ok"
		if err := a.redis.HealthCheck(ctx); err != nil {
			services["redis"] = err.Error()
			status = "degraded"
		}
	}
	services["llm"] = a.llm.Health()

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
		"uptime":    time.Since(a.started).Round(time.Second).String(),
		"services":  services,
	})
}

// handleMetrics godoc
// @Summary      Request, scoring and cache counters
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /metrics [get]
func (a *application) handleMetrics(c *gin.Context) {
	stats := a.metrics.GetStats()
	if a.compress != nil {
		stats["compression"] = a.compress.Stats()
	}
	c.JSON(http.StatusOK, stats)
}

// handleCacheStats godoc
// @Summary      Pair-score cache statistics
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /cache/stats [get]
func (a *application) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.pairs.Stats())
}

func (a *application) handleDatabasePool(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pool": "database", "stats": a.db.GetPoolStats()})
}

func (a *application) handleRedisPool(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pool": "redis", "stats": a.redis.GetPoolStats()})
}

// handleCompatibility godoc
// @Summary      Score one pair
// @Description  Scores two registered participants of an event. Scores are symmetric and cached per survey version.
// @Tags         compatibility
// @Accept       json
// @Produce      json
// @Param        request  body      CompatibilityRequest  true  "Pair to score"
// @Success      200      {object}  CompatibilityResponse
// @Failure      400      {object}  map[string]any
// @Failure      404      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Failure      429      {object}  map[string]any
// @Router       /api/compatibility [post]
func (a *application) handleCompatibility(c *gin.Context) {
	var req CompatibilityRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.EventID <= 0 {
		_ = c.Error(errors.NewValidationError("event_id must be positive", map[string]any{"event_id": req.EventID}))
		return
	}
	if err := analysis.ValidatePair(req.A, req.B); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error(), nil))
		return
	}
	opts := analysis.Options{Mode: req.Mode, Model: req.Model, AI: req.AI}
	if err := opts.Validate(); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error(), nil))
		return
	}

	ctx := c.Request.Context()
	ca, err := a.candidate(ctx, req.A)
	if err != nil {
		_ = c.Error(err)
		return
	}
	cb, err := a.candidate(ctx, req.B)
	if err != nil {
		_ = c.Error(err)
		return
	}

	start := time.Now()
	res, hit, err := a.runner.ScorePair(ctx, req.EventID, ca, cb, opts)
	if err != nil {
		_ = c.Error(err)
		return
	}
	a.logger.ScoringLogger(req.EventID, res.ParticipantA, res.ParticipantB, res.Score, opts.AI, hit, time.Since(start))

	c.JSON(http.StatusOK, CompatibilityResponse{Result: res, CacheHit: hit})
}

// handlePreview godoc
// @Summary      Score an event's candidate matrix
// @Description  Builds the eligible pool and scores every candidate pair. A newer run for the same event cancels this one.
// @Tags         compatibility
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      matching.Request  true  "Run options"
// @Success      200      {object}  matching.Result
// @Failure      400      {object}  map[string]any
// @Failure      409      {object}  map[string]any
// @Router       /api/compatibility/preview [post]
func (a *application) handlePreview(c *gin.Context) {
	var req matching.Request
	if !bindJSON(c, &req) {
		return
	}

	result, err := a.runner.Run(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGroup godoc
// @Summary      Score a group
// @Description  Scores every pair inside a group of three or four participants.
// @Tags         compatibility
// @Accept       json
// @Produce      json
// @Param        request  body      GroupRequest  true  "Group members"
// @Success      200      {object}  matching.GroupResult
// @Failure      400      {object}  map[string]any
// @Router       /api/compatibility/group [post]
func (a *application) handleGroup(c *gin.Context) {
	var req GroupRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.EventID <= 0 {
		_ = c.Error(errors.NewValidationError("event_id must be positive", map[string]any{"event_id": req.EventID}))
		return
	}
	if len(req.Members) < matching.MinGroupSize || len(req.Members) > matching.MaxGroupSize {
		_ = c.Error(errors.NewValidationError("groups have 3 to 4 members", map[string]any{"members": len(req.Members)}))
		return
	}

	ctx := c.Request.Context()
	seen := make(map[int]bool, len(req.Members))
	members := make([]matching.Candidate, 0, len(req.Members))
	for _, n := range req.Members {
		if seen[n] {
			_ = c.Error(errors.NewValidationError("duplicate group member", map[string]any{"member": n}))
			return
		}
		seen[n] = true
		cand, err := a.candidate(ctx, n)
		if err != nil {
			_ = c.Error(err)
			return
		}
		members = append(members, cand)
	}

	result, err := a.runner.ScoreGroup(ctx, req.EventID, members, analysis.Options{Mode: req.Mode, Model: req.Model, AI: req.AI})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleQuestions godoc
// @Summary      Conversation questions for a match
// @Description  Returns exactly five Arabic open questions. Generated once per match, round and pair.
// @Tags         questions
// @Accept       json
// @Produce      json
// @Param        request  body      QuestionsRequest  true  "Match"
// @Success      200      {object}  QuestionsResponse
// @Failure      400      {object}  map[string]any
// @Failure      429      {object}  map[string]any
// @Router       /api/questions [post]
func (a *application) handleQuestions(c *gin.Context) {
	var req QuestionsRequest
	if !bindJSON(c, &req) {
		return
	}
	matchID, err := a.security.CleanText("match_id", req.MatchID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	key := questions.NewKey(matchID, req.Round, req.A, req.B)
	if err := key.Validate(); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error(), nil))
		return
	}

	ctx := c.Request.Context()
	ca, err := a.candidate(ctx, key.A)
	if err != nil {
		_ = c.Error(err)
		return
	}
	cb, err := a.candidate(ctx, key.B)
	if err != nil {
		_ = c.Error(err)
		return
	}

	set, cached, err := a.questions.Generate(ctx, key, ca.Traits, cb.Traits)
	if err != nil {
		_ = c.Error(errors.NewValidationError(err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, QuestionsResponse{Questions: set.Questions, Source: set.Source, Cached: cached})
}

// handleLogin godoc
// @Summary      Admin login
// @Description  Exchanges the admin password for a bearer token. Repeated failures lock the caller's IP out.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Credentials"
// @Success      200      {object}  LoginResponse
// @Failure      401      {object}  map[string]any
// @Failure      429      {object}  map[string]any
// @Router       /api/admin/login [post]
func (a *application) handleLogin(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	token, expires, err := a.auth.Login(c.Request.Context(), c.ClientIP(), req.Password)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) && appErr.Category == errors.CategoryRateLimit {
			a.metrics.RecordRateLimitBlock("admin_login")
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires})
}

// storeError maps repository failures to API errors.
func storeError(err error, entity string, id any) error {
	if stderrors.Is(err, database.ErrNotFound) {
		return errors.NewNotFoundError(entity, id)
	}
	return errors.NewInternalError(entity+" operation failed", err)
}
