package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Player is one row of the players dimension. PlayerID is the upstream stat
// provider's id; SleeperID is attached later by the identity-linking stage.
type Player struct {
	PlayerID  string    `gorm:"primaryKey" json:"player_id"`
	Name      string    `gorm:"not null;index:idx_players_name_pos" json:"name"`
	Position  string    `gorm:"not null;index:idx_players_name_pos" json:"position"`
	Team      string    `json:"team"`
	SleeperID *string   `gorm:"index" json:"sleeper_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Player) TableName() string {
	return "players"
}

// ScheduleEntry is one team-perspective row of the expanded game schedule.
// Exactly one entry exists per (season, week, team).
type ScheduleEntry struct {
	Season    int       `gorm:"primaryKey;autoIncrement:false" json:"season"`
	Week      int       `gorm:"primaryKey;autoIncrement:false" json:"week"`
	Team      string    `gorm:"primaryKey" json:"team"`
	Opponent  string    `gorm:"column:opp;not null" json:"opp"`
	Home      bool      `gorm:"not null" json:"home"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ScheduleEntry) TableName() string {
	return "schedule"
}

// DefenseVsPos is the opponent-strength dimension: how a defense has performed
// against a position through a given week. Missing keys are treated as
// neutral downstream, never as errors.
type DefenseVsPos struct {
	Season    int       `gorm:"primaryKey;autoIncrement:false" json:"season"`
	Week      int       `gorm:"primaryKey;autoIncrement:false" json:"week"`
	Team      string    `gorm:"primaryKey" json:"team"`
	Position  string    `gorm:"primaryKey" json:"position"`
	DVP       float64   `gorm:"column:dvp;not null" json:"dvp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DefenseVsPos) TableName() string {
	return "defense_vs_pos"
}

// OddsLine is one team-perspective betting line for a game.
type OddsLine struct {
	Season    int       `gorm:"primaryKey;autoIncrement:false" json:"season"`
	Week      int       `gorm:"primaryKey;autoIncrement:false" json:"week"`
	GameID    string    `gorm:"primaryKey" json:"game_id"`
	Team      string    `gorm:"primaryKey" json:"team"`
	Opponent  string    `gorm:"column:opp" json:"opp"`
	Spread    float64   `json:"spread"`
	Moneyline float64   `json:"moneyline"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OddsLine) TableName() string {
	return "odds"
}

// League is one fantasy league for one season.
type League struct {
	Platform        string    `gorm:"primaryKey" json:"platform"`
	LeagueID        string    `gorm:"primaryKey" json:"league_id"`
	Season          int       `gorm:"primaryKey;autoIncrement:false" json:"season"`
	Name            string    `json:"name"`
	ScoringSettings string    `gorm:"type:jsonb" json:"scoring_settings"`
	RosterSettings  string    `gorm:"type:jsonb" json:"roster_settings"`
	Metadata        string    `gorm:"type:jsonb" json:"metadata"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (League) TableName() string {
	return "leagues"
}

// LeagueUser is one manager in a league.
type LeagueUser struct {
	Platform    string    `gorm:"primaryKey" json:"platform"`
	LeagueID    string    `gorm:"primaryKey" json:"league_id"`
	UserID      string    `gorm:"primaryKey" json:"user_id"`
	DisplayName string    `json:"display_name"`
	Metadata    string    `gorm:"type:jsonb" json:"metadata"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (LeagueUser) TableName() string {
	return "league_users"
}

// LeagueRoster is one roster in a league season.
type LeagueRoster struct {
	Platform  string         `gorm:"primaryKey" json:"platform"`
	LeagueID  string         `gorm:"primaryKey" json:"league_id"`
	Season    int            `gorm:"primaryKey;autoIncrement:false" json:"season"`
	RosterID  int            `gorm:"primaryKey;autoIncrement:false" json:"roster_id"`
	OwnerID   string         `json:"owner_id"`
	Players   pq.StringArray `gorm:"type:text[]" json:"players"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (LeagueRoster) TableName() string {
	return "league_rosters"
}

// Matchup is one roster's side of a weekly head-to-head matchup.
type Matchup struct {
	Platform  string         `gorm:"primaryKey" json:"platform"`
	LeagueID  string         `gorm:"primaryKey" json:"league_id"`
	Season    int            `gorm:"primaryKey;autoIncrement:false" json:"season"`
	Week      int            `gorm:"primaryKey;autoIncrement:false" json:"week"`
	MatchupID int            `gorm:"primaryKey;autoIncrement:false" json:"matchup_id"`
	RosterID  int            `gorm:"primaryKey;autoIncrement:false" json:"roster_id"`
	Points    float64        `json:"points"`
	Starters  pq.StringArray `gorm:"type:text[]" json:"starters"`
	Players   pq.StringArray `gorm:"type:text[]" json:"players"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Matchup) TableName() string {
	return "matchups"
}

// LeagueTransaction is one league transaction (trade, waiver, free agent move).
type LeagueTransaction struct {
	LeagueID  string    `gorm:"primaryKey" json:"league_id"`
	TxID      string    `gorm:"primaryKey" json:"tx_id"`
	Timestamp int64     `gorm:"index" json:"ts"` // ms epoch from the platform
	Type      string    `json:"type"`
	Payload   string    `gorm:"type:jsonb" json:"payload"`
	Season    int       `json:"season"`
	Week      int       `json:"week"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LeagueTransaction) TableName() string {
	return "league_transactions"
}

// Prediction is one cached prediction for (season, week, player). Re-running
// inference for the same key overwrites the row.
type Prediction struct {
	Season     int       `gorm:"primaryKey;autoIncrement:false" json:"season"`
	Week       int       `gorm:"primaryKey;autoIncrement:false" json:"week"`
	PlayerID   string    `gorm:"primaryKey" json:"player_id"`
	Point      float64   `gorm:"column:p50;not null" json:"p50"`
	Lower      float64   `gorm:"column:lo;not null" json:"lo"`
	Upper      float64   `gorm:"column:hi;not null" json:"hi"`
	ModelID    string    `gorm:"index" json:"model_id"`
	ValidUntil time.Time `gorm:"not null" json:"valid_until"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Prediction) TableName() string {
	return "pred_cache"
}

// ModelRecord is one registered model bundle. Bundles are immutable; the
// production designation lives in ProductionPointer, not here.
type ModelRecord struct {
	ModelID   string    `gorm:"primaryKey" json:"model_id"`
	Label     string    `json:"label"`
	Learner   string    `json:"learner"`
	QAlpha    float64   `gorm:"column:q_alpha" json:"q_alpha"`
	Metrics   string    `gorm:"type:jsonb" json:"metrics"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ModelRecord) TableName() string {
	return "model_registry"
}

// ProductionPointer is the single-row record naming the current production
// model. Only the promotion policy writes it.
type ProductionPointer struct {
	ID         int       `gorm:"primaryKey;autoIncrement:false" json:"id"` // always 1
	ModelID    string    `gorm:"not null" json:"model_id"`
	ProdSeason int       `json:"prod_season"`
	ProdWeek   int       `json:"prod_week"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ProductionPointer) TableName() string {
	return "production_pointer"
}

// ModelRun is one appended validation record for a pipeline run.
type ModelRun struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Season    int       `gorm:"index:idx_model_runs_week" json:"season"`
	Week      int       `gorm:"index:idx_model_runs_week" json:"week"`
	Stage     string    `json:"stage"`
	Metrics   string    `gorm:"type:jsonb" json:"metrics"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (ModelRun) TableName() string {
	return "model_runs"
}
