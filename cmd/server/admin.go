package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/database"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/privacy"
	"github.com/ZanzyTHEbar/blind-match/internal/security"
)

// ParticipantRequest registers or updates a participant.
type ParticipantRequest struct {
	AssignedNumber      int             `json:"assigned_number" example:"12"`
	Name                string          `json:"name"`
	Gender              string          `json:"gender" example:"female"`
	Age                 int             `json:"age" example:"29"`
	Nationality         string          `json:"nationality"`
	PhoneNumber         string          `json:"phone_number"`
	SurveyData          json.RawMessage `json:"survey_data" swaggertype:"object"`
	EventID             int             `json:"event_id" example:"3"`
	SignupForNextEvent  bool            `json:"signup_for_next_event"`
	AutoSignupNextEvent bool            `json:"auto_signup_next_event"`
	Paid                bool            `json:"paid"`
	PaidDone            bool            `json:"paid_done"`
}

// LockRequest pins a pair for a round.
type LockRequest struct {
	EventID int `json:"event_id"`
	Round   int `json:"round"`
	A       int `json:"participant1_number"`
	B       int `json:"participant2_number"`
	Score   int `json:"original_compatibility_score"`
}

// PairExclusionRequest forbids a pair.
type PairExclusionRequest struct {
	A      int    `json:"participant1_number"`
	B      int    `json:"participant2_number"`
	Reason string `json:"reason"`
}

// ParticipantExclusionRequest removes a participant from matching.
type ParticipantExclusionRequest struct {
	Number int    `json:"participant_number"`
	Reason string `json:"reason"`
	Banned bool   `json:"banned"`
}

// InvalidateRequest drops the cached scores of a participant.
type InvalidateRequest struct {
	EventID int `json:"event_id"`
	Number  int `json:"assigned_number"`
}

// participantView hides the phone number and self-service token.
type participantView struct {
	database.Participant
	PhoneNumber string `json:"phone_number"`
	HasSurvey   bool   `json:"has_survey"`
}

func viewParticipant(p *database.Participant) participantView {
	return participantView{Participant: *p, PhoneNumber: privacy.MaskPhone(p.PhoneNumber), HasSurvey: p.HasSurvey()}
}

func (a *application) auditLog(c *gin.Context, action string, details map[string]any) {
	subject, _ := security.AdminSubject(c)
	if details == nil {
		details = map[string]any{}
	}
	details["admin"] = subject
	a.logger.SecurityLogger("admin_"+action, c.ClientIP(), c.GetHeader("User-Agent"), details)
}

// handleSaveParticipant godoc
// @Summary      Register or update a participant
// @Description  A changed survey invalidates every cached score involving the participant.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      ParticipantRequest  true  "Participant"
// @Success      200      {object}  database.SaveResult
// @Failure      400      {object}  map[string]any
// @Failure      401      {object}  map[string]any
// @Router       /api/admin/participants [put]
func (a *application) handleSaveParticipant(c *gin.Context) {
	var req ParticipantRequest
	if !bindJSON(c, &req) {
		return
	}
	invalid := map[string]string{}
	name, err := a.security.CleanText("name", req.Name)
	if err != nil {
		invalid["name"] = err.Error()
	}
	nationality, err := a.security.CleanText("nationality", req.Nationality)
	if err != nil {
		invalid["nationality"] = err.Error()
	}
	if raw := bytes.TrimSpace(req.SurveyData); len(raw) > 0 && string(raw) != "null" && raw[0] != '{' {
		invalid["survey_data"] = "survey_data must be a JSON object"
	}
	if len(invalid) > 0 {
		_ = c.Error(errors.NewValidationErrorWithMap(invalid))
		return
	}

	p := &database.Participant{
		AssignedNumber:      req.AssignedNumber,
		Name:                name,
		Gender:              req.Gender,
		Age:                 req.Age,
		Nationality:         nationality,
		PhoneNumber:         req.PhoneNumber,
		SurveyData:          datatypes.JSON(req.SurveyData),
		EventID:             req.EventID,
		SignupForNextEvent:  req.SignupForNextEvent,
		AutoSignupNextEvent: req.AutoSignupNextEvent,
		Paid:                req.Paid,
		PaidDone:            req.PaidDone,
	}
	res, err := a.participants.Save(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	a.auditLog(c, "participant_saved", map[string]any{
		"assigned_number": p.AssignedNumber,
		"survey_changed":  res.SurveyChanged,
	})

	view := viewParticipant(res.Participant)
	c.JSON(http.StatusOK, gin.H{
		"participant":         view,
		"survey_changed":      res.SurveyChanged,
		"invalidated_entries": res.InvalidatedEntries,
	})
}

// handleGetParticipant godoc
// @Summary      Get a participant
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        number  path      int  true  "Assigned number"
// @Success      200     {object}  map[string]any
// @Failure      404     {object}  map[string]any
// @Router       /api/admin/participants/{number} [get]
func (a *application) handleGetParticipant(c *gin.Context) {
	number, ok := intParam(c, "number")
	if !ok {
		return
	}
	p, err := a.participants.Get(c.Request.Context(), number)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, viewParticipant(p))
}

func (a *application) handleListEventParticipants(c *gin.Context) {
	eventID, ok := intParam(c, "event")
	if !ok {
		return
	}
	list, err := a.repo.ListEventParticipants(c.Request.Context(), eventID)
	if err != nil {
		_ = c.Error(storeError(err, "participants", eventID))
		return
	}
	views := make([]participantView, 0, len(list))
	for i := range list {
		views = append(views, viewParticipant(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "participants": views, "count": len(views)})
}

func (a *application) handleAdvanceEvent(c *gin.Context) {
	eventID, ok := intParam(c, "event")
	if !ok {
		return
	}
	moved, err := a.participants.AdvanceEvent(c.Request.Context(), eventID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	a.auditLog(c, "event_advanced", map[string]any{"event_id": eventID, "moved": moved})
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "moved": moved})
}

func (a *application) handleListResults(c *gin.Context) {
	eventID, ok := intParam(c, "event")
	if !ok {
		return
	}
	round, ok := intQuery(c, "round", 0)
	if !ok {
		return
	}
	results, err := a.repo.ListMatchResults(c.Request.Context(), eventID, round)
	if err != nil {
		_ = c.Error(storeError(err, "match results", eventID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "round": round, "results": results})
}

// handleCancelRun stops the live matrix run of an event.
func (a *application) handleCancelRun(c *gin.Context) {
	eventID, ok := intParam(c, "event")
	if !ok {
		return
	}
	cancelled := a.runner.Cancel(eventID)
	a.auditLog(c, "run_cancelled", map[string]any{"event_id": eventID, "cancelled": cancelled})
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "cancelled": cancelled})
}

func (a *application) handleCreateLock(c *gin.Context) {
	var req LockRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.EventID <= 0 || req.Round < 0 {
		_ = c.Error(errors.NewValidationError("event_id must be positive and round non-negative", nil))
		return
	}
	if err := analysis.ValidatePair(req.A, req.B); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error(), nil))
		return
	}

	lock := &database.LockedMatch{
		EventID:                    req.EventID,
		Round:                      req.Round,
		Participant1Number:         req.A,
		Participant2Number:         req.B,
		OriginalCompatibilityScore: req.Score,
	}
	if err := a.repo.CreateLock(c.Request.Context(), lock); err != nil {
		_ = c.Error(storeError(err, "lock", 0))
		return
	}
	a.auditLog(c, "lock_created", map[string]any{"lock_id": lock.ID, "a": lock.Participant1Number, "b": lock.Participant2Number})
	c.JSON(http.StatusCreated, lock)
}

func (a *application) handleDeleteLock(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if id <= 0 {
		_ = c.Error(errors.NewValidationError("id must be positive", nil))
		return
	}
	if err := a.repo.DeleteLock(c.Request.Context(), uint(id)); err != nil {
		_ = c.Error(storeError(err, "lock", id))
		return
	}
	a.auditLog(c, "lock_deleted", map[string]any{"lock_id": id})
	c.Status(http.StatusNoContent)
}

func (a *application) handleListLocks(c *gin.Context) {
	eventID, ok := intQuery(c, "event_id", 0)
	if !ok {
		return
	}
	round, ok := intQuery(c, "round", 0)
	if !ok {
		return
	}
	locks, err := a.repo.ListLocks(c.Request.Context(), eventID, round)
	if err != nil {
		_ = c.Error(storeError(err, "locks", eventID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "round": round, "locks": locks})
}

func (a *application) handleExcludePair(c *gin.Context) {
	var req PairExclusionRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := analysis.ValidatePair(req.A, req.B); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error(), nil))
		return
	}
	reason, err := a.security.CleanText("reason", req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := a.repo.ExcludePair(c.Request.Context(), req.A, req.B, reason); err != nil {
		_ = c.Error(storeError(err, "excluded pair", 0))
		return
	}
	a.auditLog(c, "pair_excluded", map[string]any{"a": req.A, "b": req.B})
	c.JSON(http.StatusCreated, gin.H{"participant1_number": min(req.A, req.B), "participant2_number": max(req.A, req.B)})
}

func (a *application) handleRemovePairExclusion(c *gin.Context) {
	pa, ok := intQuery(c, "a", 0)
	if !ok {
		return
	}
	pb, ok := intQuery(c, "b", 0)
	if !ok {
		return
	}
	if err := analysis.ValidatePair(pa, pb); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error(), nil))
		return
	}
	if err := a.repo.RemoveExcludedPair(c.Request.Context(), pa, pb); err != nil {
		_ = c.Error(storeError(err, "excluded pair", 0))
		return
	}
	a.auditLog(c, "pair_exclusion_removed", map[string]any{"a": pa, "b": pb})
	c.Status(http.StatusNoContent)
}

func (a *application) handleExcludeParticipant(c *gin.Context) {
	var req ParticipantExclusionRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Number <= 0 {
		_ = c.Error(errors.NewValidationError("participant_number must be positive", nil))
		return
	}
	reason, err := a.security.CleanText("reason", req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := a.repo.ExcludeParticipant(c.Request.Context(), req.Number, reason, req.Banned); err != nil {
		_ = c.Error(storeError(err, "excluded participant", req.Number))
		return
	}
	a.auditLog(c, "participant_excluded", map[string]any{"number": req.Number, "banned": req.Banned})
	c.JSON(http.StatusCreated, gin.H{"participant_number": req.Number, "banned": req.Banned})
}

func (a *application) handleRemoveParticipantExclusion(c *gin.Context) {
	number, ok := intParam(c, "number")
	if !ok {
		return
	}
	if err := a.repo.RemoveExcludedParticipant(c.Request.Context(), number); err != nil {
		_ = c.Error(storeError(err, "excluded participant", number))
		return
	}
	a.auditLog(c, "participant_exclusion_removed", map[string]any{"number": number})
	c.Status(http.StatusNoContent)
}

func (a *application) handleListExclusions(c *gin.Context) {
	ctx := c.Request.Context()
	pairs, err := a.repo.ListExcludedPairs(ctx)
	if err != nil {
		_ = c.Error(storeError(err, "excluded pairs", 0))
		return
	}
	people, err := a.repo.ListExcludedParticipants(ctx)
	if err != nil {
		_ = c.Error(storeError(err, "excluded participants", 0))
		return
	}
	c.JSON(http.StatusOK, gin.H{"pairs": pairs, "participants": people})
}

func (a *application) handleClearTemporaryExclusions(c *gin.Context) {
	removed, err := a.repo.ClearTemporaryExclusions(c.Request.Context())
	if err != nil {
		_ = c.Error(storeError(err, "excluded participants", 0))
		return
	}
	a.auditLog(c, "temporary_exclusions_cleared", map[string]any{"removed": removed})
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (a *application) handleListSessions(c *gin.Context) {
	eventID, ok := intQuery(c, "event_id", 0)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}
	sessions, err := a.repo.ListSessions(c.Request.Context(), eventID, limit)
	if err != nil {
		_ = c.Error(storeError(err, "sessions", eventID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "sessions": sessions, "running": a.runner.Running(eventID)})
}

// handleInvalidateCache drops every cached score involving a participant.
func (a *application) handleInvalidateCache(c *gin.Context) {
	var req InvalidateRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.EventID <= 0 || req.Number <= 0 {
		_ = c.Error(errors.NewValidationError("event_id and assigned_number must be positive", nil))
		return
	}
	removed := a.pairs.InvalidateParticipant(c.Request.Context(), req.EventID, req.Number)
	a.logger.CacheLogger("invalidate_participant", "", false, removed)
	a.auditLog(c, "cache_invalidated", map[string]any{"event_id": req.EventID, "number": req.Number, "removed": removed})
	c.JSON(http.StatusOK, gin.H{"removed": removed, "timestamp": time.Now().Format(time.RFC3339)})
}

// handleResetLLM godoc
// @Summary      Clear the model endpoint's breaker and degradation state
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /api/admin/llm/reset [post]
func (a *application) handleResetLLM(c *gin.Context) {
	a.llm.Reset()
	a.auditLog(c, "llm_reset", nil)
	c.JSON(http.StatusOK, gin.H{"llm": a.llm.Health(), "timestamp": time.Now().Format(time.RFC3339)})
}

func (a *application) handlePolicy(c *gin.Context) {
	c.JSON(http.StatusOK, a.scorer.Policy())
}

// handlePrivacy godoc
// @Summary      Describe participant data retention
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /api/admin/privacy [get]
func (a *application) handlePrivacy(c *gin.Context) {
	c.JSON(http.StatusOK, a.privacy.GetDataRetentionInfo())
}
