package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
)

// PostgresLedger implements Store using PostgreSQL, for deployments where a
// what-if session must survive a restart. Monetary values are stored as
// NUMERIC for exact decimal precision; kind-specific payloads as JSONB.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a PostgreSQL-backed ledger.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS whatif_modifications (
			position        BIGSERIAL PRIMARY KEY,
			id              TEXT UNIQUE NOT NULL,
			kind            TEXT NOT NULL,
			side            TEXT NOT NULL DEFAULT '',
			label           TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL DEFAULT '',
			subcategory     TEXT NOT NULL DEFAULT '',
			currency        TEXT NOT NULL DEFAULT '',
			notional        NUMERIC NOT NULL DEFAULT 0,
			rate            NUMERIC NOT NULL DEFAULT 0,
			spread          NUMERIC NOT NULL DEFAULT 0,
			maturity_years  DOUBLE PRECISION NOT NULL DEFAULT 0,
			start_date      TIMESTAMPTZ,
			maturity_date   TIMESTAMPTZ,
			payment_freq    TEXT NOT NULL DEFAULT '',
			repricing_freq  TEXT NOT NULL DEFAULT '',
			ref_index       TEXT NOT NULL DEFAULT '',
			remove_mode     TEXT NOT NULL DEFAULT '',
			singleton_key   TEXT NOT NULL DEFAULT '',
			contract_ids    JSONB,
			profile         JSONB,
			repricing       JSONB,
			behavioural     JSONB,
			created_at      TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS whatif_ledger_meta (
			singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			version    BIGINT NOT NULL DEFAULT 0
		);
		INSERT INTO whatif_ledger_meta (singleton, version)
		VALUES (TRUE, 0) ON CONFLICT DO NOTHING;
	`)
	return err
}

func bumpVersion(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE whatif_ledger_meta SET version = version + 1`)
	return err
}

func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (l *PostgresLedger) insert(ctx context.Context, tx pgx.Tx, m *model.Modification) error {
	contractIDs, err := marshalJSONB(m.ContractIDs)
	if err != nil {
		return err
	}
	profile, err := marshalJSONB(m.Profile)
	if err != nil {
		return err
	}
	var repricing, behavioural []byte
	if m.Repricing != nil {
		if repricing, err = json.Marshal(m.Repricing); err != nil {
			return err
		}
	}
	if m.Behavioural != nil {
		if behavioural, err = json.Marshal(m.Behavioural); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO whatif_modifications
		 (id, kind, side, label, category, subcategory, currency,
		  notional, rate, spread, maturity_years, start_date, maturity_date,
		  payment_freq, repricing_freq, ref_index, remove_mode, singleton_key,
		  contract_ids, profile, repricing, behavioural, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,
		         $8::NUMERIC,$9::NUMERIC,$10::NUMERIC,$11,$12,$13,
		         $14,$15,$16,$17,$18,
		         $19,$20,$21,$22,$23)
		 ON CONFLICT (id) DO UPDATE SET
		   kind=EXCLUDED.kind, side=EXCLUDED.side, label=EXCLUDED.label,
		   category=EXCLUDED.category, subcategory=EXCLUDED.subcategory,
		   currency=EXCLUDED.currency, notional=EXCLUDED.notional,
		   rate=EXCLUDED.rate, spread=EXCLUDED.spread,
		   maturity_years=EXCLUDED.maturity_years,
		   start_date=EXCLUDED.start_date, maturity_date=EXCLUDED.maturity_date,
		   payment_freq=EXCLUDED.payment_freq,
		   repricing_freq=EXCLUDED.repricing_freq, ref_index=EXCLUDED.ref_index,
		   remove_mode=EXCLUDED.remove_mode, singleton_key=EXCLUDED.singleton_key,
		   contract_ids=EXCLUDED.contract_ids, profile=EXCLUDED.profile,
		   repricing=EXCLUDED.repricing, behavioural=EXCLUDED.behavioural`,
		m.ID, string(m.Kind), string(m.Side), m.Label, m.Category, m.Subcategory, m.Currency,
		m.Notional.String(), m.Rate.String(), m.Spread.String(), m.MaturityYears,
		m.StartDate, m.MaturityDate,
		m.PaymentFreq, m.RepricingFreq, m.RefIndex, string(m.RemoveMode), singletonKey(m),
		contractIDs, profile, repricing, behavioural, m.CreatedAt,
	)
	return err
}

func (l *PostgresLedger) Add(ctx context.Context, mod *model.Modification) (string, error) {
	if mod.Kind == "" {
		return "", ErrMissingKind
	}

	stored := mod.Clone()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if key := singletonKey(&stored); key != "" {
		var existingID string
		var createdAt time.Time
		err := tx.QueryRow(ctx,
			`SELECT id, created_at FROM whatif_modifications WHERE singleton_key = $1`,
			key).Scan(&existingID, &createdAt)
		switch {
		case err == nil:
			stored.ID = existingID
			stored.CreatedAt = createdAt
		case errors.Is(err, pgx.ErrNoRows):
			stored.ID = uuid.New().String()
			stored.CreatedAt = time.Now().UTC()
		default:
			return "", err
		}
	} else {
		stored.ID = uuid.New().String()
		stored.CreatedAt = time.Now().UTC()
	}

	if err := l.insert(ctx, tx, &stored); err != nil {
		return "", err
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (l *PostgresLedger) Update(ctx context.Context, id string, patch Patch) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m, err := scanOne(tx.QueryRow(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	patch.apply(m)

	if err := l.insert(ctx, tx, m); err != nil {
		return err
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PostgresLedger) Remove(ctx context.Context, id string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM whatif_modifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PostgresLedger) Clear(ctx context.Context) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM whatif_modifications`); err != nil {
		return err
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const selectColumns = `
	SELECT id, kind, side, label, category, subcategory, currency,
	       notional::TEXT, rate::TEXT, spread::TEXT, maturity_years,
	       start_date, maturity_date,
	       payment_freq, repricing_freq, ref_index, remove_mode,
	       contract_ids, profile, repricing, behavioural, created_at
	FROM whatif_modifications`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (*model.Modification, error) {
	var m model.Modification
	var kind, side, removeMode string
	var notional, rate, spread string
	var contractIDs, profile, repricing, behavioural []byte

	err := row.Scan(&m.ID, &kind, &side, &m.Label, &m.Category, &m.Subcategory, &m.Currency,
		&notional, &rate, &spread, &m.MaturityYears,
		&m.StartDate, &m.MaturityDate,
		&m.PaymentFreq, &m.RepricingFreq, &m.RefIndex, &removeMode,
		&contractIDs, &profile, &repricing, &behavioural, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Kind = model.Kind(kind)
	m.Side = model.Side(side)
	m.RemoveMode = model.RemoveMode(removeMode)

	if m.Notional, err = decimal.NewFromString(notional); err != nil {
		return nil, fmt.Errorf("ledger: bad notional %q: %w", notional, err)
	}
	if m.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("ledger: bad rate %q: %w", rate, err)
	}
	if m.Spread, err = decimal.NewFromString(spread); err != nil {
		return nil, fmt.Errorf("ledger: bad spread %q: %w", spread, err)
	}

	if contractIDs != nil {
		if err := json.Unmarshal(contractIDs, &m.ContractIDs); err != nil {
			return nil, err
		}
	}
	if profile != nil {
		if err := json.Unmarshal(profile, &m.Profile); err != nil {
			return nil, err
		}
	}
	if repricing != nil {
		m.Repricing = &model.RepricingOverride{}
		if err := json.Unmarshal(repricing, m.Repricing); err != nil {
			return nil, err
		}
	}
	if behavioural != nil {
		m.Behavioural = &model.BehaviouralOverride{}
		if err := json.Unmarshal(behavioural, m.Behavioural); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (l *PostgresLedger) List(ctx context.Context) ([]model.Modification, error) {
	rows, err := l.pool.Query(ctx, selectColumns+` ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []model.Modification
	for rows.Next() {
		m, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, *m)
	}
	return mods, rows.Err()
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (*model.Modification, error) {
	m, err := scanOne(l.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (l *PostgresLedger) CountByKind(ctx context.Context, kind model.Kind) (int, error) {
	var n int
	err := l.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM whatif_modifications WHERE kind = $1`, string(kind)).Scan(&n)
	return n, err
}

func (l *PostgresLedger) Version(ctx context.Context) (uint64, error) {
	var v uint64
	err := l.pool.QueryRow(ctx, `SELECT version FROM whatif_ledger_meta`).Scan(&v)
	return v, err
}
