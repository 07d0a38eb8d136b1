package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/db"
	"github.com/sells-group/activation-core/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot webhook-path operations.
var preparedStatements = map[string]string{
	"get_active_hypothesis":    `SELECT ` + hypothesisColumns + ` FROM hypotheses WHERE page_id = $1 AND status = $2`,
	"get_correlation_by_event": `SELECT ` + correlationColumns + ` FROM correlations WHERE payment_event_id = $1`,
	"insert_correlation":       `INSERT INTO correlations (id, payment_event_id, client_id, outcome_type, payment_method, amount, currency, manual_override, override_reason, conversion_duration_ms, fingerprint, correlated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"journey_start":            `SELECT created_at FROM journey_pages WHERE client_id = $1 ORDER BY created_at ASC, page_order ASC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS journey_pages (
	id         TEXT PRIMARY KEY,
	client_id  BIGINT NOT NULL,
	page_type  TEXT NOT NULL,
	page_order INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (client_id, page_order)
);

CREATE TABLE IF NOT EXISTS hypotheses (
	id                TEXT PRIMARY KEY,
	page_id           TEXT NOT NULL REFERENCES journey_pages(id) ON DELETE CASCADE,
	statement         TEXT NOT NULL,
	change_type       TEXT NOT NULL,
	confidence_level  INTEGER NOT NULL,
	predicted_outcome TEXT,
	actual_outcome    TEXT,
	status            TEXT NOT NULL DEFAULT 'active',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS content_versions (
	id            TEXT PRIMARY KEY,
	page_id       TEXT NOT NULL REFERENCES journey_pages(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	body          TEXT NOT NULL,
	hypothesis_id TEXT REFERENCES hypotheses(id),
	saved_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS correlations (
	id                     TEXT PRIMARY KEY,
	payment_event_id       TEXT NOT NULL UNIQUE,
	client_id              BIGINT NOT NULL,
	outcome_type           TEXT NOT NULL,
	payment_method         TEXT,
	amount                 BIGINT NOT NULL,
	currency               TEXT NOT NULL,
	manual_override        BOOLEAN NOT NULL DEFAULT false,
	override_reason        TEXT,
	conversion_duration_ms BIGINT,
	fingerprint            TEXT NOT NULL,
	correlated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS correlation_audit (
	id             TEXT PRIMARY KEY,
	correlation_id TEXT NOT NULL REFERENCES correlations(id),
	old_outcome    TEXT NOT NULL,
	new_outcome    TEXT NOT NULL,
	reason         TEXT NOT NULL,
	actor_id       TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS correlation_conflicts (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	payload     TEXT NOT NULL,
	detail      TEXT,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outcomes (
	client_id       BIGINT PRIMARY KEY,
	journey_outcome TEXT NOT NULL,
	notes           TEXT,
	revenue_amount  BIGINT,
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_hypotheses_one_active ON hypotheses(page_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_hypotheses_page ON hypotheses(page_id);
CREATE INDEX IF NOT EXISTS idx_versions_page ON content_versions(page_id);
CREATE INDEX IF NOT EXISTS idx_pages_client ON journey_pages(client_id);
CREATE INDEX IF NOT EXISTS idx_correlations_client ON correlations(client_id);
CREATE INDEX IF NOT EXISTS idx_correlations_at ON correlations(correlated_at);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON correlation_audit(correlation_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_event ON correlation_conflicts(event_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateHypothesis(ctx context.Context, h model.Hypothesis) (*model.Hypothesis, error) {
	h.ID = uuid.New().String()
	h.Status = model.HypothesisActive
	h.CreatedAt = time.Now().UTC()

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE hypotheses SET status = $1 WHERE page_id = $2 AND status = $3`,
			string(model.HypothesisCompleted), h.PageID, string(model.HypothesisActive),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: supersede active hypothesis for page %s", h.PageID)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO hypotheses (id, page_id, statement, change_type, confidence_level, predicted_outcome, actual_outcome, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			h.ID, h.PageID, h.Statement, string(h.ChangeType), h.ConfidenceLevel,
			nullString(h.PredictedOutcome), nullString(h.ActualOutcome), string(h.Status), h.CreatedAt,
		)
		return eris.Wrapf(err, "postgres: insert hypothesis for page %s", h.PageID)
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PostgresStore) GetHypothesis(ctx context.Context, id string) (*model.Hypothesis, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+hypothesisColumns+` FROM hypotheses WHERE id = $1`, id,
	)
	h, err := scanHypothesis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(apperr.NewNotFound("hypothesis", id), "postgres: get hypothesis")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get hypothesis %s", id)
	}
	return h, nil
}

func (s *PostgresStore) GetActiveHypothesis(ctx context.Context, pageID string) (*model.Hypothesis, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+hypothesisColumns+` FROM hypotheses WHERE page_id = $1 AND status = $2`,
		pageID, string(model.HypothesisActive),
	)
	h, err := scanHypothesis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get active hypothesis for page %s", pageID)
	}
	return h, nil
}

func (s *PostgresStore) ListHypothesesByPage(ctx context.Context, pageID string) ([]model.Hypothesis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+hypothesisColumns+` FROM hypotheses WHERE page_id = $1 ORDER BY created_at DESC, id DESC`,
		pageID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list hypotheses for page %s", pageID)
	}
	defer rows.Close()

	var out []model.Hypothesis
	for rows.Next() {
		h, err := scanHypothesis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan hypothesis")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list hypotheses iterate")
}

func (s *PostgresStore) SetHypothesisOutcome(ctx context.Context, id, actualOutcome string) (*model.Hypothesis, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE hypotheses SET actual_outcome = $1 WHERE id = $2`,
		actualOutcome, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: set hypothesis outcome %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrap(apperr.NewNotFound("hypothesis", id), "postgres: set hypothesis outcome")
	}
	return s.GetHypothesis(ctx, id)
}

func (s *PostgresStore) SetHypothesisStatus(ctx context.Context, id string, status model.HypothesisStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE hypotheses SET status = $1 WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set hypothesis status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(apperr.NewNotFound("hypothesis", id), "postgres: set hypothesis status")
	}
	return nil
}

func (s *PostgresStore) AppendVersion(ctx context.Context, pageID, title, body, hypothesisID string) (*model.ContentVersion, error) {
	v := &model.ContentVersion{
		ID:           uuid.New().String(),
		PageID:       pageID,
		Title:        title,
		Body:         body,
		HypothesisID: hypothesisID,
		SavedAt:      time.Now().UTC(),
	}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var hPage, hStatus string
		err := tx.QueryRow(ctx,
			`SELECT page_id, status FROM hypotheses WHERE id = $1`, hypothesisID,
		).Scan(&hPage, &hStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrap(apperr.NewPrecondition("hypothesis %s does not exist", hypothesisID), "postgres: append version")
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: check hypothesis %s", hypothesisID)
		}
		if hPage != pageID || hStatus != string(model.HypothesisActive) {
			return eris.Wrap(apperr.NewPrecondition("hypothesis %s is not active for page %s", hypothesisID, pageID), "postgres: append version")
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO content_versions (id, page_id, title, body, hypothesis_id, saved_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			v.ID, v.PageID, v.Title, v.Body, v.HypothesisID, v.SavedAt,
		)
		return eris.Wrapf(err, "postgres: insert version for page %s", pageID)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, pageID string) (*model.ContentVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM content_versions WHERE page_id = $1 ORDER BY saved_at DESC, id DESC LIMIT 1`,
		pageID,
	)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest version for page %s", pageID)
	}
	return v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, pageID string) ([]model.ContentVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM content_versions WHERE page_id = $1 ORDER BY saved_at DESC, id DESC`,
		pageID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list versions for page %s", pageID)
	}
	defer rows.Close()

	var out []model.ContentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list versions iterate")
}

func (s *PostgresStore) SeedJourney(ctx context.Context, clientID int64, pages []model.PageType) ([]model.JourneyPage, error) {
	if len(pages) == 0 {
		pages = model.DefaultJourney
	}

	now := time.Now().UTC()
	out := make([]model.JourneyPage, 0, len(pages))

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i, pt := range pages {
			p := model.JourneyPage{
				ID:        uuid.New().String(),
				ClientID:  clientID,
				PageType:  pt,
				PageOrder: i + 1,
				Status:    model.PagePending,
				CreatedAt: now,
			}
			if i == 0 {
				p.Status = model.PageActive
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO journey_pages (id, client_id, page_type, page_order, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
				p.ID, p.ClientID, string(p.PageType), p.PageOrder, string(p.Status), p.CreatedAt,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: seed journey for client %d", clientID)
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetJourneyPage(ctx context.Context, pageID string) (*model.JourneyPage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pageColumns+` FROM journey_pages WHERE id = $1`, pageID,
	)
	p, err := scanPage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(apperr.NewNotFound("journey page", pageID), "postgres: get page")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get page %s", pageID)
	}
	return p, nil
}

func (s *PostgresStore) ListJourneyPages(ctx context.Context, clientID int64) ([]model.JourneyPage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pageColumns+` FROM journey_pages WHERE client_id = $1 ORDER BY page_order`,
		clientID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pages for client %d", clientID)
	}
	defer rows.Close()

	var out []model.JourneyPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pages iterate")
}

func (s *PostgresStore) AdvanceJourney(ctx context.Context, clientID int64, skip bool) (*model.JourneyPage, error) {
	var next *model.JourneyPage

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+pageColumns+` FROM journey_pages WHERE client_id = $1 AND status = $2 ORDER BY page_order LIMIT 1 FOR UPDATE`,
			clientID, string(model.PageActive),
		)
		current, err := scanPage(row)
		if errors.Is(err, pgx.ErrNoRows) {
			var n int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM journey_pages WHERE client_id = $1`, clientID).Scan(&n); err != nil {
				return eris.Wrapf(err, "postgres: count pages for client %d", clientID)
			}
			if n == 0 {
				return eris.Wrap(apperr.NewNotFound("journey", itoa(clientID)), "postgres: advance journey")
			}
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: active page for client %d", clientID)
		}

		doneStatus := model.PageCompleted
		if skip {
			doneStatus = model.PageSkipped
		}
		if _, err := tx.Exec(ctx,
			`UPDATE journey_pages SET status = $1 WHERE id = $2`,
			string(doneStatus), current.ID,
		); err != nil {
			return eris.Wrapf(err, "postgres: close page %s", current.ID)
		}

		row = tx.QueryRow(ctx,
			`SELECT `+pageColumns+` FROM journey_pages WHERE client_id = $1 AND status = $2 ORDER BY page_order LIMIT 1`,
			clientID, string(model.PagePending),
		)
		candidate, err := scanPage(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: next page for client %d", clientID)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE journey_pages SET status = $1 WHERE id = $2`,
			string(model.PageActive), candidate.ID,
		); err != nil {
			return eris.Wrapf(err, "postgres: activate page %s", candidate.ID)
		}
		candidate.Status = model.PageActive
		next = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *PostgresStore) JourneyStart(ctx context.Context, clientID int64) (time.Time, error) {
	var start time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM journey_pages WHERE client_id = $1 ORDER BY created_at ASC, page_order ASC LIMIT 1`,
		clientID,
	).Scan(&start)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "postgres: journey start for client %d", clientID)
	}
	return start.UTC(), nil
}

func (s *PostgresStore) InsertCorrelation(ctx context.Context, c model.Correlation) (*model.Correlation, error) {
	c.ID = uuid.New().String()
	c.CorrelatedAt = time.Now().UTC()

	var durMS any
	if c.ConversionDuration != nil {
		durMS = c.ConversionDuration.Milliseconds()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO correlations (id, payment_event_id, client_id, outcome_type, payment_method, amount, currency, manual_override, override_reason, conversion_duration_ms, fingerprint, correlated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.PaymentEventID, c.ClientID, string(c.OutcomeType), nullString(c.PaymentMethod),
		c.Amount, c.Currency, c.ManualOverride, nullString(c.OverrideReason), durMS, c.Fingerprint, c.CorrelatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert correlation for event %s", c.PaymentEventID)
	}
	return &c, nil
}

func (s *PostgresStore) GetCorrelation(ctx context.Context, id string) (*model.Correlation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+correlationColumns+` FROM correlations WHERE id = $1`, id,
	)
	c, err := scanCorrelationPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(apperr.NewNotFound("correlation", id), "postgres: get correlation")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get correlation %s", id)
	}
	return c, nil
}

func (s *PostgresStore) GetCorrelationByEvent(ctx context.Context, eventID string) (*model.Correlation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+correlationColumns+` FROM correlations WHERE payment_event_id = $1`, eventID,
	)
	c, err := scanCorrelationPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get correlation by event %s", eventID)
	}
	return c, nil
}

func (s *PostgresStore) ListCorrelations(ctx context.Context, filter CorrelationFilter) ([]model.Correlation, error) {
	query := `SELECT ` + correlationColumns + ` FROM correlations WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.ClientID != nil {
		query += ` AND client_id = ` + arg(*filter.ClientID)
	}
	if !filter.Since.IsZero() {
		query += ` AND correlated_at >= ` + arg(filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += ` AND correlated_at < ` + arg(filter.Until.UTC())
	}
	query += ` ORDER BY correlated_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list correlations")
	}
	defer rows.Close()

	var out []model.Correlation
	for rows.Next() {
		c, err := scanCorrelationPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan correlation")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list correlations iterate")
}

func (s *PostgresStore) OverrideCorrelation(ctx context.Context, id string, newOutcome model.OutcomeType, reason, actorID string) (*model.Correlation, error) {
	var current *model.Correlation

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+correlationColumns+` FROM correlations WHERE id = $1 FOR UPDATE`, id,
		)
		c, err := scanCorrelationPG(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrap(apperr.NewNotFound("correlation", id), "postgres: override")
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: load correlation %s", id)
		}

		now := time.Now().UTC()
		_, err = tx.Exec(ctx,
			`INSERT INTO correlation_audit (id, correlation_id, old_outcome, new_outcome, reason, actor_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), id, string(c.OutcomeType), string(newOutcome), reason, actorID, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert audit for correlation %s", id)
		}

		_, err = tx.Exec(ctx,
			`UPDATE correlations SET outcome_type = $1, manual_override = true, override_reason = $2 WHERE id = $3`,
			string(newOutcome), reason, id,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: apply override to correlation %s", id)
		}

		c.OutcomeType = newOutcome
		c.ManualOverride = true
		c.OverrideReason = reason
		current = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, correlationID string) ([]model.CorrelationAudit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, correlation_id, old_outcome, new_outcome, reason, actor_id, created_at
		 FROM correlation_audit WHERE correlation_id = $1 ORDER BY created_at DESC, id DESC`,
		correlationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audit for correlation %s", correlationID)
	}
	defer rows.Close()

	var out []model.CorrelationAudit
	for rows.Next() {
		var a model.CorrelationAudit
		var oldOutcome, newOutcome string
		if err := rows.Scan(&a.ID, &a.CorrelationID, &oldOutcome, &newOutcome, &a.Reason, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		a.OldOutcome = model.OutcomeType(oldOutcome)
		a.NewOutcome = model.OutcomeType(newOutcome)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

func (s *PostgresStore) InsertConflict(ctx context.Context, rec model.ConflictRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO correlation_conflicts (id, event_id, fingerprint, payload, detail, received_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), rec.EventID, rec.Fingerprint, rec.Payload, nullString(rec.Detail), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert conflict for event %s", rec.EventID)
}

func (s *PostgresStore) ListConflicts(ctx context.Context, limit int) ([]model.ConflictRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, fingerprint, payload, detail, received_at
		 FROM correlation_conflicts ORDER BY received_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conflicts")
	}
	defer rows.Close()

	var out []model.ConflictRecord
	for rows.Next() {
		var rec model.ConflictRecord
		var detail *string
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Fingerprint, &rec.Payload, &detail, &rec.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conflict")
		}
		if detail != nil {
			rec.Detail = *detail
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list conflicts iterate")
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, o model.Outcome) (*model.Outcome, error) {
	o.RecordedAt = time.Now().UTC()
	var revenue any
	if o.RevenueAmount != nil {
		revenue = *o.RevenueAmount
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcomes (client_id, journey_outcome, notes, revenue_amount, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (client_id) DO UPDATE SET
			journey_outcome = EXCLUDED.journey_outcome,
			notes = EXCLUDED.notes,
			revenue_amount = EXCLUDED.revenue_amount,
			recorded_at = EXCLUDED.recorded_at`,
		o.ClientID, string(o.JourneyOutcome), nullString(o.Notes), revenue, o.RecordedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record outcome for client %d", o.ClientID)
	}
	return &o, nil
}

func (s *PostgresStore) GetOutcome(ctx context.Context, clientID int64) (*model.Outcome, error) {
	var o model.Outcome
	var outcome string
	var notes *string
	var revenue *int64
	err := s.pool.QueryRow(ctx,
		`SELECT client_id, journey_outcome, notes, revenue_amount, recorded_at FROM outcomes WHERE client_id = $1`,
		clientID,
	).Scan(&o.ClientID, &outcome, &notes, &revenue, &o.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get outcome for client %d", clientID)
	}
	o.JourneyOutcome = model.JourneyOutcome(outcome)
	if notes != nil {
		o.Notes = *notes
	}
	o.RevenueAmount = revenue
	return &o, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.StoreStats, error) {
	stats := &model.StoreStats{
		OutcomeBreakdown: make(map[model.JourneyOutcome]int),
		CollectedAt:      time.Now().UTC(),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM hypotheses WHERE status = 'active'`, &stats.ActiveHypotheses},
		{`SELECT COUNT(*) FROM hypotheses`, &stats.TotalHypotheses},
		{`SELECT COUNT(*) FROM content_versions`, &stats.ContentVersions},
		{`SELECT COUNT(*) FROM correlations`, &stats.Correlations},
		{`SELECT COUNT(*) FROM correlations WHERE manual_override`, &stats.ManualOverrides},
		{`SELECT COUNT(*) FROM correlation_conflicts`, &stats.ConflictDepth},
	}
	for _, c := range counts {
		if err := s.pool.QueryRow(ctx, c.query).Scan(c.dest); err != nil {
			return nil, eris.Wrap(err, "postgres: stats count")
		}
	}

	rows, err := s.pool.Query(ctx, `SELECT journey_outcome, COUNT(*) FROM outcomes GROUP BY journey_outcome`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats outcomes")
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome count")
		}
		stats.OutcomeBreakdown[model.JourneyOutcome(outcome)] = n
	}
	return stats, eris.Wrap(rows.Err(), "postgres: stats iterate")
}

// scanCorrelationPG scans using pointer destinations for nullable columns,
// which pgx handles natively.
func scanCorrelationPG(row scannable) (*model.Correlation, error) {
	var c model.Correlation
	var outcomeType string
	var method, reason *string
	var durMS *int64

	err := row.Scan(&c.ID, &c.PaymentEventID, &c.ClientID, &outcomeType, &method, &c.Amount, &c.Currency, &c.ManualOverride, &reason, &durMS, &c.Fingerprint, &c.CorrelatedAt)
	if err != nil {
		return nil, err
	}
	c.OutcomeType = model.OutcomeType(outcomeType)
	if method != nil {
		c.PaymentMethod = *method
	}
	if reason != nil {
		c.OverrideReason = *reason
	}
	if durMS != nil {
		d := time.Duration(*durMS) * time.Millisecond
		c.ConversionDuration = &d
	}
	return &c, nil
}
