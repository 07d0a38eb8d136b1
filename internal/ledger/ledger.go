// Package ledger is the append-only record of saved page content.
// Every version saved after the edit gate went live references the
// hypothesis that was active when it was saved; versions are never
// updated or deleted, only superseded.
package ledger

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

// Ledger records content versions against their hypotheses.
type Ledger struct {
	store store.Store
}

// New creates a content version ledger.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Append records a new version for the page. The hypothesis must be
// currently active for that page; otherwise the append fails with a
// precondition error and nothing is written.
func (l *Ledger) Append(ctx context.Context, pageID, title, body, hypothesisID string) (*model.ContentVersion, error) {
	if hypothesisID == "" {
		return nil, apperr.NewPrecondition("save without a bound hypothesis for page %s", pageID)
	}
	v, err := l.store.AppendVersion(ctx, pageID, title, body, hypothesisID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("content version saved",
		zap.String("page_id", pageID),
		zap.String("version_id", v.ID),
		zap.String("hypothesis_id", hypothesisID),
	)
	return v, nil
}

// Latest returns the page's current version, or nil when none exists.
func (l *Ledger) Latest(ctx context.Context, pageID string) (*model.ContentVersion, error) {
	return l.store.LatestVersion(ctx, pageID)
}

// History returns the page's versions newest-first as a restartable
// sequence: each range over it re-reads the store, so there is no hidden
// pagination state to carry between calls.
func (l *Ledger) History(ctx context.Context, pageID string) iter.Seq2[model.ContentVersion, error] {
	return func(yield func(model.ContentVersion, error) bool) {
		versions, err := l.store.ListVersions(ctx, pageID)
		if err != nil {
			yield(model.ContentVersion{}, err)
			return
		}
		for _, v := range versions {
			if !yield(v, nil) {
				return
			}
		}
	}
}
