// Package storage provides SQLite-backed persistence for the bot registry,
// watch configurations, market snapshots, and anomalies.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"marketmover/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db           *sql.DB
	maxSnapshots int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/marketmover/data.db.
func New(maxSnapshots int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "marketmover", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxSnapshots: maxSnapshots}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bots (
			user_id        TEXT NOT NULL,
			name           TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'inactive',
			last_activated INTEGER,
			created_at     INTEGER NOT NULL,
			PRIMARY KEY (user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS watch_configs (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			market_id   TEXT NOT NULL,
			market_name TEXT NOT NULL,
			direction   TEXT NOT NULL,
			target_yes  REAL,
			target_no   REAL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_configs_user ON watch_configs(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS market_snapshots (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			yes_price   REAL NOT NULL,
			volume_num  REAL NOT NULL,
			captured_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id          TEXT PRIMARY KEY,
			market_id   TEXT NOT NULL,
			title       TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			change_pct  REAL NOT NULL,
			volume_24hr REAL NOT NULL,
			vol_ratio   REAL NOT NULL,
			note        TEXT NOT NULL,
			detected_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_detected_at ON anomalies(detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureBot inserts an inactive registry row for (userID, name) if none exists.
func (s *Storage) EnsureBot(userID, name string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO bots (user_id, name, status, created_at)
		VALUES (?, ?, ?, ?)`,
		userID, name, models.BotStatusInactive, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure bot: %w", err)
	}
	return nil
}

// GetBot returns the registry row for (userID, name), or nil when absent.
func (s *Storage) GetBot(userID, name string) (*models.Bot, error) {
	row := s.db.QueryRow(`
		SELECT user_id, name, status, last_activated, created_at
		FROM bots WHERE user_id = ? AND name = ?`, userID, name)
	b, err := scanBot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return b, nil
}

// ListBots returns all registry rows for the user, oldest first.
func (s *Storage) ListBots(userID string) ([]models.Bot, error) {
	rows, err := s.db.Query(`
		SELECT user_id, name, status, last_activated, created_at
		FROM bots WHERE user_id = ? ORDER BY created_at, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bots: %w", err)
	}
	defer rows.Close()
	bots := []models.Bot{}
	for rows.Next() {
		b, err := scanBot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot: %w", err)
		}
		bots = append(bots, *b)
	}
	return bots, rows.Err()
}

// SetBotStatus updates the status of an existing registry row. It reports
// whether a row was found.
func (s *Storage) SetBotStatus(userID, name, status string) (bool, error) {
	res, err := s.db.Exec(`UPDATE bots SET status = ? WHERE user_id = ? AND name = ?`,
		status, userID, name)
	if err != nil {
		return false, fmt.Errorf("failed to set bot status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ActivateMarketMover marks the named bot active and appends a new watch
// config in one transaction. Earlier configs are kept; creation order alone
// decides which one the evaluator sees.
func (s *Storage) ActivateMarketMover(botName string, cfg *models.WatchConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid watch config: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO bots (user_id, name, status, created_at)
		VALUES (?, ?, ?, ?)`,
		cfg.UserID, botName, models.BotStatusInactive, now,
	); err != nil {
		return fmt.Errorf("failed to ensure bot: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE bots SET status = ?, last_activated = ?
		WHERE user_id = ? AND name = ?`,
		models.BotStatusActive, now, cfg.UserID, botName,
	); err != nil {
		return fmt.Errorf("failed to activate bot: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO watch_configs
			(id, user_id, market_id, market_name, direction, target_yes, target_no, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		cfg.ID, cfg.UserID, cfg.MarketID, cfg.MarketName, string(cfg.Direction),
		nullFloat(cfg.TargetYes), nullFloat(cfg.TargetNo), cfg.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert watch config: %w", err)
	}
	return tx.Commit()
}

// LatestWatchConfig returns the most recently created config for the user, or
// nil when none exists. Ties on created_at resolve by insertion order so two
// activations in the same instant still pick the newer one.
func (s *Storage) LatestWatchConfig(userID string) (*models.WatchConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, market_id, market_name, direction, target_yes, target_no, created_at
		FROM watch_configs WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID)

	var cfg models.WatchConfig
	var direction string
	var targetYes, targetNo sql.NullFloat64
	var createdAtNano int64
	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.MarketID, &cfg.MarketName,
		&direction, &targetYes, &targetNo, &createdAtNano)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load watch config: %w", err)
	}
	cfg.Direction = models.Direction(direction)
	cfg.TargetYes = floatPtr(targetYes)
	cfg.TargetNo = floatPtr(targetNo)
	cfg.CreatedAt = time.Unix(0, createdAtNano)
	return &cfg, nil
}

// SaveSnapshots upserts market snapshots and trims the table to the newest
// maxSnapshots rows.
func (s *Storage) SaveSnapshots(snapshots []models.MarketSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, snap := range snapshots {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO market_snapshots (id, title, yes_price, volume_num, captured_at)
			VALUES (?,?,?,?,?)`,
			snap.ID, snap.Title, snap.YesPrice, snap.VolumeNum, snap.CapturedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
	}
	if _, err := tx.Exec(`
		DELETE FROM market_snapshots WHERE id NOT IN (
			SELECT id FROM market_snapshots ORDER BY captured_at DESC LIMIT ?
		)`, s.maxSnapshots); err != nil {
		return fmt.Errorf("failed to enforce snapshot cap: %w", err)
	}
	return tx.Commit()
}

// RecentSnapshots returns the newest snapshots, most recent first.
func (s *Storage) RecentSnapshots(limit int) ([]models.MarketSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, title, yes_price, volume_num, captured_at
		FROM market_snapshots ORDER BY captured_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()
	snapshots := []models.MarketSummary{}
	for rows.Next() {
		var snap models.MarketSummary
		var capturedAtNano int64
		if err := rows.Scan(&snap.ID, &snap.Title, &snap.YesPrice, &snap.VolumeNum, &capturedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.CapturedAt = time.Unix(0, capturedAtNano)
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// SaveAnomalies appends detected anomalies.
func (s *Storage) SaveAnomalies(anomalies []models.Anomaly) error {
	for _, a := range anomalies {
		if _, err := s.db.Exec(`
			INSERT INTO anomalies
				(id, market_id, title, category, change_pct, volume_24hr, vol_ratio, note, detected_at)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			a.ID, a.MarketID, a.Title, a.Category, a.ChangePct, a.Volume24hr, a.VolRatio,
			a.Note, a.DetectedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert anomaly: %w", err)
		}
	}
	return nil
}

// RecentAnomalies returns the newest anomalies, most recent first.
func (s *Storage) RecentAnomalies(limit int) ([]models.Anomaly, error) {
	rows, err := s.db.Query(`
		SELECT id, market_id, title, category, change_pct, volume_24hr, vol_ratio, note, detected_at
		FROM anomalies ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()
	anomalies := []models.Anomaly{}
	for rows.Next() {
		var a models.Anomaly
		var detectedAtNano int64
		if err := rows.Scan(&a.ID, &a.MarketID, &a.Title, &a.Category, &a.ChangePct,
			&a.Volume24hr, &a.VolRatio, &a.Note, &detectedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.DetectedAt = time.Unix(0, detectedAtNano)
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

// Stats reports how many snapshots and anomalies are currently stored.
func (s *Storage) Stats() (snapshots, anomalies int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM market_snapshots`).Scan(&snapshots); err != nil {
		return 0, 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM anomalies`).Scan(&anomalies); err != nil {
		return 0, 0, fmt.Errorf("failed to count anomalies: %w", err)
	}
	return snapshots, anomalies, nil
}

func scanBot(scan func(...any) error) (*models.Bot, error) {
	var b models.Bot
	var lastActivated sql.NullInt64
	var createdAtNano int64
	if err := scan(&b.UserID, &b.Name, &b.Status, &lastActivated, &createdAtNano); err != nil {
		return nil, err
	}
	if lastActivated.Valid {
		t := time.Unix(0, lastActivated.Int64)
		b.LastActivated = &t
	}
	b.CreatedAt = time.Unix(0, createdAtNano)
	return &b, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
