// Package gate enforces "no mutation without an active hypothesis" for one
// editing session on one journey page. The session is a small state machine
// wrapping the hypothesis store and the content ledger; it is the only path
// through which the surrounding UI may save content.
//
// Gate state is not persisted. A new session starts UNLOCKED only when an
// active hypothesis already exists for the page; otherwise it starts LOCKED.
// One editor drives one session; sessions are not safe for concurrent use.
package gate

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/hypothesis"
	"github.com/sells-group/activation-core/internal/ledger"
	"github.com/sells-group/activation-core/internal/model"
)

// State is the edit gate's position for the current session.
type State string

const (
	// Locked blocks all content mutation; any field interaction opens
	// hypothesis capture instead of applying the edit.
	Locked State = "locked"
	// Capturing means the hypothesis dialog is open; edits stay blocked.
	Capturing State = "capturing"
	// Unlocked permits saves, all bound to the session's hypothesis.
	Unlocked State = "unlocked"
)

// Session is one editor's gate for one page.
type Session struct {
	pageID     string
	state      State
	boundID    string
	hypotheses *hypothesis.Service
	ledger     *ledger.Ledger
}

// NewSession opens a gate session for the page. If the page already has an
// active hypothesis the session starts unlocked and bound to it.
func NewSession(ctx context.Context, pageID string, hyp *hypothesis.Service, led *ledger.Ledger) (*Session, error) {
	s := &Session{
		pageID:     pageID,
		state:      Locked,
		hypotheses: hyp,
		ledger:     led,
	}

	active, err := hyp.Active(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		s.state = Unlocked
		s.boundID = active.ID
	}
	return s, nil
}

// State returns the session's current gate state.
func (s *Session) State() State {
	return s.state
}

// PageID returns the page this session edits.
func (s *Session) PageID() string {
	return s.pageID
}

// BoundHypothesisID returns the hypothesis id saves are bound to, or ""
// while the gate is not unlocked.
func (s *Session) BoundHypothesisID() string {
	return s.boundID
}

// FieldInteraction handles the editor touching a title or body field.
// While locked it opens hypothesis capture; the attempted keystroke is
// discarded by the caller, never queued. In any other state it is a no-op.
func (s *Session) FieldInteraction() State {
	if s.state == Locked {
		s.state = Capturing
		zap.L().Debug("edit gate capture opened", zap.String("page_id", s.pageID))
	}
	return s.state
}

// SubmitHypothesis validates and creates the hypothesis, binding it to the
// session and unlocking the gate. On a validation error the state stays
// Capturing so the dialog can be corrected and resubmitted.
func (s *Session) SubmitHypothesis(ctx context.Context, in hypothesis.Input) (*model.Hypothesis, error) {
	if s.state != Capturing {
		return nil, apperr.NewPrecondition("hypothesis capture is not open (gate is %s)", s.state)
	}

	h, err := s.hypotheses.Create(ctx, s.pageID, in)
	if err != nil {
		return nil, err
	}
	s.boundID = h.ID
	s.state = Unlocked
	return h, nil
}

// CancelCapture abandons the hypothesis dialog. No hypothesis record was
// created, so nothing is left behind; attempted edits are discarded by the
// caller, which reverts fields to the last saved values.
func (s *Session) CancelCapture() State {
	if s.state == Capturing {
		s.state = Locked
		zap.L().Debug("edit gate capture cancelled", zap.String("page_id", s.pageID))
	}
	return s.state
}

// Save appends a content version under the bound hypothesis. The gate stays
// unlocked afterwards so the editor can iterate under one hypothesis; each
// save is its own immutable version.
func (s *Session) Save(ctx context.Context, title, body string) (*model.ContentVersion, error) {
	if s.state != Unlocked || s.boundID == "" {
		return nil, apperr.NewPrecondition("save requires an unlocked gate (gate is %s)", s.state)
	}
	return s.ledger.Append(ctx, s.pageID, title, body, s.boundID)
}

// End closes the session. Gate state is per-session; the next session
// re-derives its starting state from the page's active hypothesis.
func (s *Session) End() {
	s.state = Locked
	s.boundID = ""
}
