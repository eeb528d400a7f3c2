package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"SignalSentinel/internal/model"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id           TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			class        TEXT NOT NULL,
			direction    TEXT NOT NULL,
			tier         TEXT NOT NULL,
			score        REAL,
			entry        REAL,
			stop         REAL,
			targets      TEXT,
			leverage     INTEGER,
			criteria_met INTEGER,
			phase        TEXT,
			correlation  REAL,
			vol_ratio    REAL,
			rsi14        REAL,
			funding_rate REAL,
			confluences  TEXT,
			regime       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp)`,

		`CREATE TABLE IF NOT EXISTS lifecycle_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			signal_id    TEXT NOT NULL,
			symbol       TEXT,
			kind         TEXT NOT NULL,
			target       INTEGER,
			price        REAL,
			targets_hit  INTEGER,
			status       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_signal ON lifecycle_events(signal_id)`,

		`CREATE TABLE IF NOT EXISTS trade_outcomes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			signal_id  TEXT NOT NULL,
			symbol     TEXT,
			class      TEXT,
			tier       TEXT,
			direction  TEXT,
			score      REAL,
			outcome    INTEGER NOT NULL,
			features   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON trade_outcomes(timestamp)`,

		`CREATE TABLE IF NOT EXISTS regime_readings (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			btc         REAL,
			usdt        REAL,
			btc_source  TEXT,
			usdt_source TEXT,
			estimated   INTEGER
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignal(ctx context.Context, sig *model.Signal) error {
	targets, err := json.Marshal(sig.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}
	confluences, err := json.Marshal(sig.Confluences)
	if err != nil {
		return fmt.Errorf("marshal confluences: %w", err)
	}
	var regime []byte
	if sig.Regime != nil {
		if regime, err = json.Marshal(sig.Regime); err != nil {
			return fmt.Errorf("marshal regime: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `INSERT INTO signals
		(id, timestamp, symbol, class, direction, tier, score, entry, stop, targets,
		 leverage, criteria_met, phase, correlation, vol_ratio, rsi14, funding_rate,
		 confluences, regime)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.ID, sig.CreatedAt.Unix(), sig.Symbol, string(sig.Class), string(sig.Direction),
		string(sig.Tier), sig.Score, sig.Entry, sig.Stop, string(targets),
		sig.Leverage, sig.CriteriaMet, string(sig.Phase), sig.Correlation,
		sig.VolRatio, sig.RSI14, sig.FundingRate,
		string(confluences), string(regime),
	)
	return err
}

func (r *SQLiteRecorder) RecordLifecycle(ctx context.Context, evt model.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO lifecycle_events
		(timestamp, signal_id, symbol, kind, target, price, targets_hit, status)
		VALUES (?,?,?,?,?,?,?,?)`,
		evt.At.Unix(), evt.SignalID, evt.Symbol, string(evt.Kind),
		evt.Target, evt.Price, evt.TargetsHit, string(evt.Status),
	)
	return err
}

func (r *SQLiteRecorder) RecordOutcome(ctx context.Context, out model.OutcomeRecord) error {
	features, err := json.Marshal(out.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `INSERT INTO trade_outcomes
		(timestamp, signal_id, symbol, class, tier, direction, score, outcome, features)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		out.ClosedAt.Unix(), out.SignalID, out.Symbol, string(out.Class),
		string(out.Tier), string(out.Direction), out.Score, out.Outcome, string(features),
	)
	return err
}

func (r *SQLiteRecorder) RecordRegime(ctx context.Context, rd model.DominanceReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	estimated := 0
	if rd.Estimated {
		estimated = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO regime_readings
		(timestamp, btc, usdt, btc_source, usdt_source, estimated)
		VALUES (?,?,?,?,?,?)`,
		rd.FetchedAt.Unix(), rd.BTC, rd.USDT, rd.BTCSource, rd.USDTSource, estimated,
	)
	return err
}

func (r *SQLiteRecorder) LoadOutcomes(ctx context.Context, limit int) ([]model.OutcomeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT * FROM (
		SELECT id, timestamp, signal_id, symbol, class, tier, direction, score, outcome, features
		FROM trade_outcomes ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []model.OutcomeRecord
	for rows.Next() {
		var rec model.OutcomeRecord
		var id, ts int64
		var class, tier, direction, featsJSON string
		if err := rows.Scan(&id, &ts, &rec.SignalID, &rec.Symbol, &class, &tier, &direction,
			&rec.Score, &rec.Outcome, &featsJSON); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Class = model.TradeClass(class)
		rec.Tier = model.Tier(tier)
		rec.Direction = model.Direction(direction)
		rec.ClosedAt = time.Unix(ts, 0).UTC()
		if err := json.Unmarshal([]byte(featsJSON), &rec.Features); err != nil {
			return nil, fmt.Errorf("decode features of %s: %w", rec.SignalID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
