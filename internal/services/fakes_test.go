package services

import (
	"sort"

	"github.com/gridironlabs/ffpipeline/internal/dataset"
	"github.com/gridironlabs/ffpipeline/internal/models"
)

// fakeRegistry is an in-memory RegistryStore.
type fakeRegistry struct {
	records    []*models.ModelRecord
	production string
	promotions []string
}

func (r *fakeRegistry) Register(rec *models.ModelRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRegistry) Latest() (*models.ModelRecord, error) {
	if len(r.records) == 0 {
		return nil, nil
	}
	latest := r.records[0]
	for _, rec := range r.records[1:] {
		if rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	return latest, nil
}

func (r *fakeRegistry) Production() (*models.ModelRecord, error) {
	if r.production == "" {
		return nil, nil
	}
	for _, rec := range r.records {
		if rec.ModelID == r.production {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeRegistry) Promote(modelID string, season, week int) error {
	r.production = modelID
	r.promotions = append(r.promotions, modelID)
	return nil
}

// fakePredictionStore is an in-memory PredictionStore keyed like the table.
type fakePredictionStore struct {
	rows map[[2]int]map[string]models.Prediction
}

func newFakePredictionStore() *fakePredictionStore {
	return &fakePredictionStore{rows: make(map[[2]int]map[string]models.Prediction)}
}

func (s *fakePredictionStore) UpsertPredictions(preds []models.Prediction) error {
	for _, p := range preds {
		key := [2]int{p.Season, p.Week}
		if s.rows[key] == nil {
			s.rows[key] = make(map[string]models.Prediction)
		}
		s.rows[key][p.PlayerID] = p
	}
	return nil
}

func (s *fakePredictionStore) PredictionsFor(season, week int) ([]models.Prediction, error) {
	byPlayer := s.rows[[2]int{season, week}]
	ids := make([]string, 0, len(byPlayer))
	for id := range byPlayer {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.Prediction, 0, len(ids))
	for _, id := range ids {
		out = append(out, byPlayer[id])
	}
	return out, nil
}

// fakeRunStore records appended runs.
type fakeRunStore struct {
	runs []*models.ModelRun
}

func (s *fakeRunStore) AppendRun(run *models.ModelRun) error {
	s.runs = append(s.runs, run)
	return nil
}

// fakeDims is an in-memory DimReader.
type fakeDims struct {
	schedule []models.ScheduleEntry
	dvp      []models.DefenseVsPos
}

func (d *fakeDims) ScheduleWeek(season, week int) ([]models.ScheduleEntry, error) {
	var out []models.ScheduleEntry
	for _, e := range d.schedule {
		if e.Season == season && e.Week == week {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *fakeDims) DefenseVsPosWeek(season, week int) ([]models.DefenseVsPos, error) {
	var out []models.DefenseVsPos
	for _, e := range d.dvp {
		if e.Season == season && e.Week == week {
			out = append(out, e)
		}
	}
	return out, nil
}

// weeklyRow is one synthetic stat line for test frames.
type weeklyRow struct {
	season   int
	week     int
	playerID string
	team     string
	position string
	targets  float64
	fp       float64
	fpNull   bool
}

// weeklyFrame assembles rows into the columnar shape the ingest stage writes.
func weeklyFrame(rows []weeklyRow) *dataset.Frame {
	n := len(rows)
	seasons := make([]float64, n)
	weeks := make([]float64, n)
	ids := make([]string, n)
	teams := make([]string, n)
	positions := make([]string, n)
	targets := make([]float64, n)
	fps := make([]float64, n)
	fpNull := make([]bool, n)
	for i, r := range rows {
		seasons[i] = float64(r.season)
		weeks[i] = float64(r.week)
		ids[i] = r.playerID
		teams[i] = r.team
		positions[i] = r.position
		targets[i] = r.targets
		fps[i] = r.fp
		fpNull[i] = r.fpNull
	}
	f := dataset.NewFrame()
	must(f.AddFloats("season", seasons, nil))
	must(f.AddFloats("week", weeks, nil))
	must(f.AddStrings("player_id", ids, nil))
	must(f.AddStrings("team", teams, nil))
	must(f.AddStrings("position", positions, nil))
	must(f.AddFloats("targets", targets, nil))
	must(f.AddFloats(TargetColumn, fps, fpNull))
	return f
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
