package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/services"
)

// StageHandler exposes each pipeline stage as an idempotent POST endpoint.
// Stages return their structured result; recoverable missing-data conditions
// come back with ok=false and a reason code rather than an error status.
type StageHandler struct {
	ingest     *services.IngestService
	league     *services.LeagueSyncService
	features   *services.FeatureService
	trainer    *services.TrainerService
	inference  *services.InferenceService
	validation *services.ValidationService
	registry   services.RegistryStore
	preds      services.PredictionStore
	logger     *logrus.Logger

	defaultLearner string
}

func NewStageHandler(
	ingest *services.IngestService,
	league *services.LeagueSyncService,
	features *services.FeatureService,
	trainer *services.TrainerService,
	inference *services.InferenceService,
	validation *services.ValidationService,
	registry services.RegistryStore,
	preds services.PredictionStore,
	logger *logrus.Logger,
	defaultLearner string,
) *StageHandler {
	return &StageHandler{
		ingest:         ingest,
		league:         league,
		features:       features,
		trainer:        trainer,
		inference:      inference,
		validation:     validation,
		registry:       registry,
		preds:          preds,
		logger:         logger,
		defaultLearner: defaultLearner,
	}
}

type seasonRangeRequest struct {
	StartSeason int `json:"start_season" binding:"required"`
	EndSeason   int `json:"end_season" binding:"required"`
}

type seasonWeekRequest struct {
	Season int `json:"season" binding:"required"`
	Week   int `json:"week" binding:"required"`
}

type trainRequest struct {
	StartSeason int    `json:"start_season" binding:"required"`
	EndSeason   int    `json:"end_season" binding:"required"`
	Learner     string `json:"learner"`
}

type leagueRequest struct {
	LeagueID string `json:"league_id" binding:"required"`
}

type leagueWeekRequest struct {
	LeagueID string `json:"league_id" binding:"required"`
	Season   int    `json:"season" binding:"required"`
	Week     int    `json:"week" binding:"required"`
}

func (h *StageHandler) respond(c *gin.Context, result *services.StageResult, err error) {
	if err != nil {
		h.logger.WithError(err).Error("Stage invocation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Backfill ingests a range of seasons.
func (h *StageHandler) Backfill(c *gin.Context) {
	var req seasonRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StartSeason > req.EndSeason {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_season must not exceed end_season"})
		return
	}
	result, err := h.ingest.Backfill(c.Request.Context(), req.StartSeason, req.EndSeason)
	h.respond(c, result, err)
}

// Ingest refreshes a single season.
func (h *StageHandler) Ingest(c *gin.Context) {
	var req struct {
		Season int `json:"season" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.ingest.Backfill(c.Request.Context(), req.Season, req.Season)
	h.respond(c, result, err)
}

// BuildDefenseVsPos recomputes the opponent-strength dimension for one week.
func (h *StageHandler) BuildDefenseVsPos(c *gin.Context) {
	var req seasonWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.ingest.BuildDefenseVsPos(req.Season, req.Week)
	h.respond(c, result, err)
}

// IngestOdds accepts betting lines pushed by the caller.
func (h *StageHandler) IngestOdds(c *gin.Context) {
	var rows []models.OddsLine
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.ingest.IngestOdds(rows)
	h.respond(c, result, err)
}

// SyncPlayers links platform player ids onto the players dimension.
func (h *StageHandler) SyncPlayers(c *gin.Context) {
	result, err := h.league.SyncPlayers(c.Request.Context())
	h.respond(c, result, err)
}

// SyncLeague mirrors a league's season-level documents.
func (h *StageHandler) SyncLeague(c *gin.Context) {
	var req leagueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.league.SyncLeagueIndex(c.Request.Context(), req.LeagueID)
	h.respond(c, result, err)
}

// SyncLeagueWeek mirrors one week of a league.
func (h *StageHandler) SyncLeagueWeek(c *gin.Context) {
	var req leagueWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.league.SyncLeagueWeek(c.Request.Context(), req.LeagueID, req.Season, req.Week)
	h.respond(c, result, err)
}

// BuildFeatures materializes the feature table for one week.
func (h *StageHandler) BuildFeatures(c *gin.Context) {
	var req seasonWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.features.BuildFeatures(req.Season, req.Week)
	h.respond(c, result, err)
}

// Train fits and registers a new model over a season range.
func (h *StageHandler) Train(c *gin.Context) {
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	learner := req.Learner
	if learner == "" {
		learner = h.defaultLearner
	}
	result, err := h.trainer.Train(req.StartSeason, req.EndSeason, learner)
	h.respond(c, result, err)
}

// Infer scores one week with the active model.
func (h *StageHandler) Infer(c *gin.Context) {
	var req seasonWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.inference.InferBatch(c.Request.Context(), req.Season, req.Week)
	h.respond(c, result, err)
}

// Validate scores a completed week and applies the promotion policy.
func (h *StageHandler) Validate(c *gin.Context) {
	var req seasonWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.validation.ValidatePromote(req.Season, req.Week)
	h.respond(c, result, err)
}

// GetPredictions reads the cached predictions for one week.
func (h *StageHandler) GetPredictions(c *gin.Context) {
	season, err := strconv.Atoi(c.Query("season"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "season query parameter is required"})
		return
	}
	week, err := strconv.Atoi(c.Query("week"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week query parameter is required"})
		return
	}
	preds, err := h.preds.PredictionsFor(season, week)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"season": season, "week": week, "predictions": preds})
}

// GetProductionModel reports which model currently serves inference.
func (h *StageHandler) GetProductionModel(c *gin.Context) {
	rec, err := h.registry.Production()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no production model"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetLatestModel reports the most recently registered model.
func (h *StageHandler) GetLatestModel(c *gin.Context) {
	rec, err := h.registry.Latest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "registry is empty"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
