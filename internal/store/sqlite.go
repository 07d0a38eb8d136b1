package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS journey_pages (
	id         TEXT PRIMARY KEY,
	client_id  INTEGER NOT NULL,
	page_type  TEXT NOT NULL,
	page_order INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
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
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS content_versions (
	id            TEXT PRIMARY KEY,
	page_id       TEXT NOT NULL REFERENCES journey_pages(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	body          TEXT NOT NULL,
	hypothesis_id TEXT REFERENCES hypotheses(id),
	saved_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS correlations (
	id                     TEXT PRIMARY KEY,
	payment_event_id       TEXT NOT NULL UNIQUE,
	client_id              INTEGER NOT NULL,
	outcome_type           TEXT NOT NULL,
	payment_method         TEXT,
	amount                 INTEGER NOT NULL,
	currency               TEXT NOT NULL,
	manual_override        INTEGER NOT NULL DEFAULT 0,
	override_reason        TEXT,
	conversion_duration_ms INTEGER,
	fingerprint            TEXT NOT NULL,
	correlated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS correlation_audit (
	id             TEXT PRIMARY KEY,
	correlation_id TEXT NOT NULL REFERENCES correlations(id),
	old_outcome    TEXT NOT NULL,
	new_outcome    TEXT NOT NULL,
	reason         TEXT NOT NULL,
	actor_id       TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS correlation_conflicts (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	payload     TEXT NOT NULL,
	detail      TEXT,
	received_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outcomes (
	client_id       INTEGER PRIMARY KEY,
	journey_outcome TEXT NOT NULL,
	notes           TEXT,
	revenue_amount  INTEGER,
	recorded_at     DATETIME NOT NULL DEFAULT (datetime('now'))
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateHypothesis completes any currently active hypothesis on the page
// and inserts the new one as active, in one transaction.
func (s *SQLiteStore) CreateHypothesis(ctx context.Context, h model.Hypothesis) (*model.Hypothesis, error) {
	h.ID = uuid.New().String()
	h.Status = model.HypothesisActive
	h.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create hypothesis")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE hypotheses SET status = ? WHERE page_id = ? AND status = ?`,
		string(model.HypothesisCompleted), h.PageID, string(model.HypothesisActive),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: supersede active hypothesis for page %s", h.PageID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO hypotheses (id, page_id, statement, change_type, confidence_level, predicted_outcome, actual_outcome, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.PageID, h.Statement, string(h.ChangeType), h.ConfidenceLevel,
		nullString(h.PredictedOutcome), nullString(h.ActualOutcome), string(h.Status), h.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert hypothesis for page %s", h.PageID)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit create hypothesis")
	}
	return &h, nil
}

const hypothesisColumns = `id, page_id, statement, change_type, confidence_level, predicted_outcome, actual_outcome, status, created_at`

func (s *SQLiteStore) GetHypothesis(ctx context.Context, id string) (*model.Hypothesis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+hypothesisColumns+` FROM hypotheses WHERE id = ?`, id,
	)
	h, err := scanHypothesis(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(apperr.NewNotFound("hypothesis", id), "sqlite: get hypothesis")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get hypothesis %s", id)
	}
	return h, nil
}

func (s *SQLiteStore) GetActiveHypothesis(ctx context.Context, pageID string) (*model.Hypothesis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+hypothesisColumns+` FROM hypotheses WHERE page_id = ? AND status = ?`,
		pageID, string(model.HypothesisActive),
	)
	h, err := scanHypothesis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get active hypothesis for page %s", pageID)
	}
	return h, nil
}

func (s *SQLiteStore) ListHypothesesByPage(ctx context.Context, pageID string) ([]model.Hypothesis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+hypothesisColumns+` FROM hypotheses WHERE page_id = ? ORDER BY created_at DESC, id DESC`,
		pageID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list hypotheses for page %s", pageID)
	}
	defer rows.Close()

	var out []model.Hypothesis
	for rows.Next() {
		h, err := scanHypothesis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hypothesis")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list hypotheses iterate")
}

func (s *SQLiteStore) SetHypothesisOutcome(ctx context.Context, id, actualOutcome string) (*model.Hypothesis, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hypotheses SET actual_outcome = ? WHERE id = ?`,
		actualOutcome, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: set hypothesis outcome %s", id)
	}
	if err := checkRowsAffected(res, "hypothesis", id); err != nil {
		return nil, err
	}
	return s.GetHypothesis(ctx, id)
}

func (s *SQLiteStore) SetHypothesisStatus(ctx context.Context, id string, status model.HypothesisStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hypotheses SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set hypothesis status %s", id)
	}
	return checkRowsAffected(res, "hypothesis", id)
}

// AppendVersion verifies the hypothesis is currently active for the page
// and inserts the version row, in one transaction. Append-only: prior
// versions are never touched.
func (s *SQLiteStore) AppendVersion(ctx context.Context, pageID, title, body, hypothesisID string) (*model.ContentVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin append version")
	}
	defer tx.Rollback()

	var hPage, hStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT page_id, status FROM hypotheses WHERE id = ?`, hypothesisID,
	).Scan(&hPage, &hStatus)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(apperr.NewPrecondition("hypothesis %s does not exist", hypothesisID), "sqlite: append version")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: check hypothesis %s", hypothesisID)
	}
	if hPage != pageID || hStatus != string(model.HypothesisActive) {
		return nil, eris.Wrap(apperr.NewPrecondition("hypothesis %s is not active for page %s", hypothesisID, pageID), "sqlite: append version")
	}

	v := &model.ContentVersion{
		ID:           uuid.New().String(),
		PageID:       pageID,
		Title:        title,
		Body:         body,
		HypothesisID: hypothesisID,
		SavedAt:      time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO content_versions (id, page_id, title, body, hypothesis_id, saved_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.PageID, v.Title, v.Body, v.HypothesisID, v.SavedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert version for page %s", pageID)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit append version")
	}
	return v, nil
}

const versionColumns = `id, page_id, title, body, hypothesis_id, saved_at`

func (s *SQLiteStore) LatestVersion(ctx context.Context, pageID string) (*model.ContentVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM content_versions WHERE page_id = ? ORDER BY saved_at DESC, id DESC LIMIT 1`,
		pageID,
	)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest version for page %s", pageID)
	}
	return v, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, pageID string) ([]model.ContentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM content_versions WHERE page_id = ? ORDER BY saved_at DESC, id DESC`,
		pageID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list versions for page %s", pageID)
	}
	defer rows.Close()

	var out []model.ContentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list versions iterate")
}

// SeedJourney creates the ordered page sequence for a client, first page
// active and the rest pending.
func (s *SQLiteStore) SeedJourney(ctx context.Context, clientID int64, pages []model.PageType) ([]model.JourneyPage, error) {
	if len(pages) == 0 {
		pages = model.DefaultJourney
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin seed journey")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	out := make([]model.JourneyPage, 0, len(pages))
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
		_, err := tx.ExecContext(ctx,
			`INSERT INTO journey_pages (id, client_id, page_type, page_order, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.ClientID, string(p.PageType), p.PageOrder, string(p.Status), p.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: seed journey for client %d", clientID)
		}
		out = append(out, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit seed journey")
	}
	return out, nil
}

const pageColumns = `id, client_id, page_type, page_order, status, created_at`

func (s *SQLiteStore) GetJourneyPage(ctx context.Context, pageID string) (*model.JourneyPage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM journey_pages WHERE id = ?`, pageID,
	)
	p, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(apperr.NewNotFound("journey page", pageID), "sqlite: get page")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get page %s", pageID)
	}
	return p, nil
}

func (s *SQLiteStore) ListJourneyPages(ctx context.Context, clientID int64) ([]model.JourneyPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM journey_pages WHERE client_id = ? ORDER BY page_order`,
		clientID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pages for client %d", clientID)
	}
	defer rows.Close()

	var out []model.JourneyPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pages iterate")
}

// AdvanceJourney completes (or skips) the client's active page and
// activates the next pending one. Returns the newly active page, or nil
// when the journey is complete.
func (s *SQLiteStore) AdvanceJourney(ctx context.Context, clientID int64, skip bool) (*model.JourneyPage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin advance journey")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM journey_pages WHERE client_id = ? AND status = ? ORDER BY page_order LIMIT 1`,
		clientID, string(model.PageActive),
	)
	current, err := scanPage(row)
	if err == sql.ErrNoRows {
		// No active page: either no journey, or already complete.
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM journey_pages WHERE client_id = ?`, clientID).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "sqlite: count pages for client %d", clientID)
		}
		if n == 0 {
			return nil, eris.Wrap(apperr.NewNotFound("journey", itoa(clientID)), "sqlite: advance journey")
		}
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: active page for client %d", clientID)
	}

	doneStatus := model.PageCompleted
	if skip {
		doneStatus = model.PageSkipped
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE journey_pages SET status = ? WHERE id = ?`,
		string(doneStatus), current.ID,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: close page %s", current.ID)
	}

	row = tx.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM journey_pages WHERE client_id = ? AND status = ? ORDER BY page_order LIMIT 1`,
		clientID, string(model.PagePending),
	)
	next, err := scanPage(row)
	if err == sql.ErrNoRows {
		if err := tx.Commit(); err != nil {
			return nil, eris.Wrap(err, "sqlite: commit advance journey")
		}
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: next page for client %d", clientID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE journey_pages SET status = ? WHERE id = ?`,
		string(model.PageActive), next.ID,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: activate page %s", next.ID)
	}
	next.Status = model.PageActive

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit advance journey")
	}
	return next, nil
}

// JourneyStart returns the creation time of the client's earliest page,
// or the zero time when no journey exists.
func (s *SQLiteStore) JourneyStart(ctx context.Context, clientID int64) (time.Time, error) {
	var start time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM journey_pages WHERE client_id = ? ORDER BY created_at ASC, page_order ASC LIMIT 1`,
		clientID,
	).Scan(&start)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: journey start for client %d", clientID)
	}
	return start.UTC(), nil
}

func (s *SQLiteStore) InsertCorrelation(ctx context.Context, c model.Correlation) (*model.Correlation, error) {
	c.ID = uuid.New().String()
	c.CorrelatedAt = time.Now().UTC()

	var durMS any
	if c.ConversionDuration != nil {
		durMS = c.ConversionDuration.Milliseconds()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO correlations (id, payment_event_id, client_id, outcome_type, payment_method, amount, currency, manual_override, override_reason, conversion_duration_ms, fingerprint, correlated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PaymentEventID, c.ClientID, string(c.OutcomeType), nullString(c.PaymentMethod),
		c.Amount, c.Currency, boolToInt(c.ManualOverride), nullString(c.OverrideReason), durMS, c.Fingerprint, c.CorrelatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert correlation for event %s", c.PaymentEventID)
	}
	return &c, nil
}

const correlationColumns = `id, payment_event_id, client_id, outcome_type, payment_method, amount, currency, manual_override, override_reason, conversion_duration_ms, fingerprint, correlated_at`

func (s *SQLiteStore) GetCorrelation(ctx context.Context, id string) (*model.Correlation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+correlationColumns+` FROM correlations WHERE id = ?`, id,
	)
	c, err := scanCorrelation(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(apperr.NewNotFound("correlation", id), "sqlite: get correlation")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get correlation %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) GetCorrelationByEvent(ctx context.Context, eventID string) (*model.Correlation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+correlationColumns+` FROM correlations WHERE payment_event_id = ?`, eventID,
	)
	c, err := scanCorrelation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get correlation by event %s", eventID)
	}
	return c, nil
}

func (s *SQLiteStore) ListCorrelations(ctx context.Context, filter CorrelationFilter) ([]model.Correlation, error) {
	query := `SELECT ` + correlationColumns + ` FROM correlations WHERE 1=1`
	var args []any

	if filter.ClientID != nil {
		query += ` AND client_id = ?`
		args = append(args, *filter.ClientID)
	}
	if !filter.Since.IsZero() {
		query += ` AND correlated_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += ` AND correlated_at < ?`
		args = append(args, filter.Until.UTC())
	}
	query += ` ORDER BY correlated_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list correlations")
	}
	defer rows.Close()

	var out []model.Correlation
	for rows.Next() {
		c, err := scanCorrelation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correlation")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list correlations iterate")
}

// OverrideCorrelation writes the audit row and rewrites the visible fields
// in one transaction, so no override is ever half-applied.
func (s *SQLiteStore) OverrideCorrelation(ctx context.Context, id string, newOutcome model.OutcomeType, reason, actorID string) (*model.Correlation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin override")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+correlationColumns+` FROM correlations WHERE id = ?`, id,
	)
	current, err := scanCorrelation(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(apperr.NewNotFound("correlation", id), "sqlite: override")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load correlation %s", id)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO correlation_audit (id, correlation_id, old_outcome, new_outcome, reason, actor_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), id, string(current.OutcomeType), string(newOutcome), reason, actorID, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert audit for correlation %s", id)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE correlations SET outcome_type = ?, manual_override = 1, override_reason = ? WHERE id = ?`,
		string(newOutcome), reason, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: apply override to correlation %s", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit override")
	}

	current.OutcomeType = newOutcome
	current.ManualOverride = true
	current.OverrideReason = reason
	return current, nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, correlationID string) ([]model.CorrelationAudit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, correlation_id, old_outcome, new_outcome, reason, actor_id, created_at
		 FROM correlation_audit WHERE correlation_id = ? ORDER BY created_at DESC, id DESC`,
		correlationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audit for correlation %s", correlationID)
	}
	defer rows.Close()

	var out []model.CorrelationAudit
	for rows.Next() {
		var a model.CorrelationAudit
		var oldOutcome, newOutcome string
		if err := rows.Scan(&a.ID, &a.CorrelationID, &oldOutcome, &newOutcome, &a.Reason, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		a.OldOutcome = model.OutcomeType(oldOutcome)
		a.NewOutcome = model.OutcomeType(newOutcome)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

func (s *SQLiteStore) InsertConflict(ctx context.Context, rec model.ConflictRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO correlation_conflicts (id, event_id, fingerprint, payload, detail, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.EventID, rec.Fingerprint, rec.Payload, nullString(rec.Detail), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert conflict for event %s", rec.EventID)
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, limit int) ([]model.ConflictRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, fingerprint, payload, detail, received_at
		 FROM correlation_conflicts ORDER BY received_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conflicts")
	}
	defer rows.Close()

	var out []model.ConflictRecord
	for rows.Next() {
		var rec model.ConflictRecord
		var detail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Fingerprint, &rec.Payload, &detail, &rec.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conflict")
		}
		rec.Detail = detail.String
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list conflicts iterate")
}

// RecordOutcome replaces the client's current outcome row.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, o model.Outcome) (*model.Outcome, error) {
	o.RecordedAt = time.Now().UTC()
	var revenue any
	if o.RevenueAmount != nil {
		revenue = *o.RevenueAmount
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (client_id, journey_outcome, notes, revenue_amount, recorded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (client_id) DO UPDATE SET
			journey_outcome = excluded.journey_outcome,
			notes = excluded.notes,
			revenue_amount = excluded.revenue_amount,
			recorded_at = excluded.recorded_at`,
		o.ClientID, string(o.JourneyOutcome), nullString(o.Notes), revenue, o.RecordedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record outcome for client %d", o.ClientID)
	}
	return &o, nil
}

func (s *SQLiteStore) GetOutcome(ctx context.Context, clientID int64) (*model.Outcome, error) {
	var o model.Outcome
	var outcome string
	var notes sql.NullString
	var revenue sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT client_id, journey_outcome, notes, revenue_amount, recorded_at FROM outcomes WHERE client_id = ?`,
		clientID,
	).Scan(&o.ClientID, &outcome, &notes, &revenue, &o.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get outcome for client %d", clientID)
	}
	o.JourneyOutcome = model.JourneyOutcome(outcome)
	o.Notes = notes.String
	if revenue.Valid {
		v := revenue.Int64
		o.RevenueAmount = &v
	}
	return &o, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.StoreStats, error) {
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
		{`SELECT COUNT(*) FROM correlations WHERE manual_override = 1`, &stats.ManualOverrides},
		{`SELECT COUNT(*) FROM correlation_conflicts`, &stats.ConflictDepth},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, eris.Wrap(err, "sqlite: stats count")
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT journey_outcome, COUNT(*) FROM outcomes GROUP BY journey_outcome`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats outcomes")
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome count")
		}
		stats.OutcomeBreakdown[model.JourneyOutcome(outcome)] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(apperr.NewNotFound(entity, id), "sqlite: update %s", entity)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanHypothesis(row scannable) (*model.Hypothesis, error) {
	var h model.Hypothesis
	var changeType, status string
	var predicted, actual sql.NullString

	err := row.Scan(&h.ID, &h.PageID, &h.Statement, &changeType, &h.ConfidenceLevel, &predicted, &actual, &status, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	h.ChangeType = model.ChangeType(changeType)
	h.Status = model.HypothesisStatus(status)
	h.PredictedOutcome = predicted.String
	h.ActualOutcome = actual.String
	return &h, nil
}

func scanVersion(row scannable) (*model.ContentVersion, error) {
	var v model.ContentVersion
	var hypothesisID sql.NullString

	err := row.Scan(&v.ID, &v.PageID, &v.Title, &v.Body, &hypothesisID, &v.SavedAt)
	if err != nil {
		return nil, err
	}
	v.HypothesisID = hypothesisID.String
	return &v, nil
}

func scanPage(row scannable) (*model.JourneyPage, error) {
	var p model.JourneyPage
	var pageType, status string

	err := row.Scan(&p.ID, &p.ClientID, &pageType, &p.PageOrder, &status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.PageType = model.PageType(pageType)
	p.Status = model.PageStatus(status)
	return &p, nil
}

func scanCorrelation(row scannable) (*model.Correlation, error) {
	var c model.Correlation
	var outcomeType string
	var method, reason sql.NullString
	var override int
	var durMS sql.NullInt64

	err := row.Scan(&c.ID, &c.PaymentEventID, &c.ClientID, &outcomeType, &method, &c.Amount, &c.Currency, &override, &reason, &durMS, &c.Fingerprint, &c.CorrelatedAt)
	if err != nil {
		return nil, err
	}
	c.OutcomeType = model.OutcomeType(outcomeType)
	c.PaymentMethod = method.String
	c.ManualOverride = override != 0
	c.OverrideReason = reason.String
	if durMS.Valid {
		d := time.Duration(durMS.Int64) * time.Millisecond
		c.ConversionDuration = &d
	}
	return &c, nil
}
