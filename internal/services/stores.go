package services

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gridironlabs/ffpipeline/internal/models"
)

// PredictionStore is the prediction cache: keyed upserts, filtered reads.
type PredictionStore interface {
	UpsertPredictions(preds []models.Prediction) error
	PredictionsFor(season, week int) ([]models.Prediction, error)
}

// RunStore is the append-only validation log.
type RunStore interface {
	AppendRun(run *models.ModelRun) error
}

// DimStore wraps the relational dimension tables: chunked idempotent upserts
// keyed by each table's primary key, plus the filtered reads the feature
// builder needs.
type DimStore struct {
	db        *gorm.DB
	chunkSize int
}

func NewDimStore(db *gorm.DB, chunkSize int) *DimStore {
	if chunkSize < 1 {
		chunkSize = 500
	}
	return &DimStore{db: db, chunkSize: chunkSize}
}

// upsert writes rows in chunks, updating on primary-key conflicts. Chunking
// respects payload-size limits, not throughput.
func (s *DimStore) upsert(rows interface{}) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, s.chunkSize).Error
}

func (s *DimStore) UpsertPlayers(rows []models.Player) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert players: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertSchedule(rows []models.ScheduleEntry) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertDefenseVsPos(rows []models.DefenseVsPos) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert defense_vs_pos: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertOdds(rows []models.OddsLine) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert odds: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertLeague(row *models.League) error {
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return fmt.Errorf("failed to upsert league: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertLeagueUsers(rows []models.LeagueUser) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert league users: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertLeagueRosters(rows []models.LeagueRoster) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert league rosters: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertMatchups(rows []models.Matchup) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert matchups: %w", err)
	}
	return nil
}

func (s *DimStore) UpsertTransactions(rows []models.LeagueTransaction) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(rows); err != nil {
		return fmt.Errorf("failed to upsert transactions: %w", err)
	}
	return nil
}

func (s *DimStore) ScheduleWeek(season, week int) ([]models.ScheduleEntry, error) {
	var rows []models.ScheduleEntry
	err := s.db.Where("season = ? AND week = ?", season, week).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	return rows, nil
}

func (s *DimStore) DefenseVsPosWeek(season, week int) ([]models.DefenseVsPos, error) {
	var rows []models.DefenseVsPos
	err := s.db.Where("season = ? AND week = ?", season, week).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query defense_vs_pos: %w", err)
	}
	return rows, nil
}

func (s *DimStore) AllPlayers() ([]models.Player, error) {
	var rows []models.Player
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	return rows, nil
}

// SetSleeperID links one dimension player to its platform id.
func (s *DimStore) SetSleeperID(playerID, sleeperID string) error {
	err := s.db.Model(&models.Player{}).
		Where("player_id = ?", playerID).
		Update("sleeper_id", sleeperID).Error
	if err != nil {
		return fmt.Errorf("failed to set sleeper id for %s: %w", playerID, err)
	}
	return nil
}

// CountRows returns an approximate row count for a table; used only for
// post-upsert diagnostics.
func (s *DimStore) CountRows(model interface{}) (int64, error) {
	var count int64
	if err := s.db.Model(model).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GormPredictionStore implements PredictionStore.
type GormPredictionStore struct {
	db        *gorm.DB
	chunkSize int
}

func NewGormPredictionStore(db *gorm.DB, chunkSize int) *GormPredictionStore {
	if chunkSize < 1 {
		chunkSize = 1000
	}
	return &GormPredictionStore{db: db, chunkSize: chunkSize}
}

func (s *GormPredictionStore) UpsertPredictions(preds []models.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(preds, s.chunkSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert predictions: %w", err)
	}
	return nil
}

func (s *GormPredictionStore) PredictionsFor(season, week int) ([]models.Prediction, error) {
	var rows []models.Prediction
	err := s.db.Where("season = ? AND week = ?", season, week).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	return rows, nil
}

// GormRunStore implements RunStore.
type GormRunStore struct {
	db *gorm.DB
}

func NewGormRunStore(db *gorm.DB) *GormRunStore {
	return &GormRunStore{db: db}
}

func (s *GormRunStore) AppendRun(run *models.ModelRun) error {
	if err := s.db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to append model run: %w", err)
	}
	return nil
}
