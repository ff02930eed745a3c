package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/snow-ghost/readiness/core"
)

// SQLiteStore implements core.Store on SQLite. Records are stored as JSON
// documents keyed by model identifiers.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps in-memory databases consistent across calls
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// createTables creates the schema if missing
func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS combo_scores (
		main_model TEXT NOT NULL,
		executor_model TEXT NOT NULL,
		overall_score INTEGER NOT NULL,
		main_excluded INTEGER NOT NULL,
		payload TEXT NOT NULL,
		tested_at DATETIME NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (main_model, executor_model)
	);

	CREATE TABLE IF NOT EXISTS prosthetics (
		model_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		level INTEGER NOT NULL,
		verified INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (model_id, capability)
	);

	CREATE TABLE IF NOT EXISTS prosthetic_configs (
		model_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		model_id TEXT PRIMARY KEY,
		overall_score INTEGER NOT NULL,
		certified INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_combo_scores_main ON combo_scores(main_model);
	CREATE INDEX IF NOT EXISTS idx_prosthetics_model ON prosthetics(model_id);
	`
	_, err := s.db.Exec(query)
	return err
}

// SaveComboScore upserts the score of a pair
func (s *SQLiteStore) SaveComboScore(ctx context.Context, score core.ComboScore) error {
	if score.TestedAt.IsZero() {
		score.TestedAt = time.Now()
	}
	payload, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode combo score: %w", err)
	}
	query := `
	INSERT INTO combo_scores (main_model, executor_model, overall_score, main_excluded, payload, tested_at, seq)
	VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM combo_scores))
	ON CONFLICT(main_model, executor_model) DO UPDATE SET
		overall_score = excluded.overall_score,
		main_excluded = excluded.main_excluded,
		payload = excluded.payload,
		tested_at = excluded.tested_at
	`
	_, err = s.db.ExecContext(ctx, query,
		score.MainModel,
		score.ExecutorModel,
		score.OverallScore,
		score.MainExcluded,
		string(payload),
		score.TestedAt,
	)
	return err
}

// ListComboScores returns stored scores in first-insert order
func (s *SQLiteStore) ListComboScores(ctx context.Context, mainModel string) ([]core.ComboScore, error) {
	query := `SELECT payload FROM combo_scores`
	var args []interface{}
	if mainModel != "" {
		query += ` WHERE main_model = ?`
		args = append(args, mainModel)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []core.ComboScore
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var score core.ComboScore
		if err := json.Unmarshal([]byte(payload), &score); err != nil {
			return nil, fmt.Errorf("decode combo score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// SaveProsthetic upserts a model capability entry
func (s *SQLiteStore) SaveProsthetic(ctx context.Context, entry core.ProstheticEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode prosthetic: %w", err)
	}
	query := `
	INSERT INTO prosthetics (model_id, capability, level, verified, payload, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(model_id, capability) DO UPDATE SET
		level = excluded.level,
		verified = excluded.verified,
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ModelID, entry.Capability, entry.Level, entry.Verified, string(payload), entry.UpdatedAt)
	return err
}

// GetProsthetic returns the entry for a model capability
func (s *SQLiteStore) GetProsthetic(ctx context.Context, modelID, capability string) (*core.ProstheticEntry, error) {
	var entry core.ProstheticEntry
	err := s.getJSON(ctx, &entry,
		`SELECT payload FROM prosthetics WHERE model_id = ? AND capability = ?`, modelID, capability)
	if err != nil {
		return nil, fmt.Errorf("prosthetic %s/%s: %w", modelID, capability, err)
	}
	return &entry, nil
}

// SaveProstheticConfig upserts the config of a model, last writer wins
func (s *SQLiteStore) SaveProstheticConfig(ctx context.Context, cfg core.ProstheticConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode prosthetic config: %w", err)
	}
	query := `
	INSERT INTO prosthetic_configs (model_id, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(model_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, cfg.ModelID, string(payload), cfg.UpdatedAt)
	return err
}

// GetProstheticConfig returns the config of a model
func (s *SQLiteStore) GetProstheticConfig(ctx context.Context, modelID string) (*core.ProstheticConfig, error) {
	var cfg core.ProstheticConfig
	if err := s.getJSON(ctx, &cfg, `SELECT payload FROM prosthetic_configs WHERE model_id = ?`, modelID); err != nil {
		return nil, fmt.Errorf("prosthetic config %s: %w", modelID, err)
	}
	return &cfg, nil
}

// GetProfile returns the readiness profile of a model
func (s *SQLiteStore) GetProfile(ctx context.Context, modelID string) (*core.ModelProfile, error) {
	var p core.ModelProfile
	if err := s.getJSON(ctx, &p, `SELECT payload FROM profiles WHERE model_id = ?`, modelID); err != nil {
		return nil, fmt.Errorf("profile %s: %w", modelID, err)
	}
	return &p, nil
}

// SaveProfile upserts a profile
func (s *SQLiteStore) SaveProfile(ctx context.Context, profile core.ModelProfile) error {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now()
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	query := `
	INSERT INTO profiles (model_id, overall_score, certified, payload, updated_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(model_id) DO UPDATE SET
		overall_score = excluded.overall_score,
		certified = excluded.certified,
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		profile.ModelID, profile.OverallScore, profile.Certified, string(payload), profile.UpdatedAt)
	return err
}

// UpdateProbeResults replaces the probe results of a profile, creating it when absent
func (s *SQLiteStore) UpdateProbeResults(ctx context.Context, modelID string, results []core.ProbeResult) error {
	profile, err := s.GetProfile(ctx, modelID)
	switch {
	case errors.Is(err, core.ErrModelNotFound):
		profile = &core.ModelProfile{ModelID: modelID}
	case err != nil:
		return err
	}
	profile.ProbeResults = results
	profile.UpdatedAt = time.Now()
	return s.SaveProfile(ctx, *profile)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) getJSON(ctx context.Context, out interface{}, query string, args ...interface{}) error {
	var payload string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrModelNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), out)
}
