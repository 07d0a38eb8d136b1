// Package intake normalizes inbound payment notifications into the
// canonical event shape the correlation engine consumes. Webhook signature
// verification happens upstream; by the time a payload reaches Normalize it
// is trusted but not yet validated.
package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
)

// providerPayload is the provider's wire shape for one payment notification.
type providerPayload struct {
	EventID       string    `json:"event_id"`
	ClientID      int64     `json:"client_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Normalize parses and validates a raw provider payload into a canonical
// payment event. Unknown provider statuses are rejected here so the engine
// never has to guess a mapping.
func Normalize(raw []byte) (*model.PaymentEvent, error) {
	var p providerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrap(err, "intake: decode payload")
	}
	return normalize(p)
}

func normalize(p providerPayload) (*model.PaymentEvent, error) {
	if strings.TrimSpace(p.EventID) == "" {
		return nil, apperr.NewValidation("event_id", "must not be blank")
	}
	if p.ClientID <= 0 {
		return nil, apperr.NewValidation("client_id", "must be positive, got %d", p.ClientID)
	}
	if p.Amount < 0 {
		return nil, apperr.NewValidation("amount", "must not be negative, got %d", p.Amount)
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if len(currency) != 3 {
		return nil, apperr.NewValidation("currency", "expected a 3-letter code, got %q", p.Currency)
	}
	status := model.ProviderStatus(strings.TrimSpace(p.Status))
	if _, ok := model.MapProviderStatus(status); !ok {
		return nil, apperr.NewValidation("status", "unknown provider status %q", p.Status)
	}
	if p.OccurredAt.IsZero() {
		return nil, apperr.NewValidation("occurred_at", "must be set")
	}

	return &model.PaymentEvent{
		EventID:       strings.TrimSpace(p.EventID),
		ClientID:      p.ClientID,
		Amount:        p.Amount,
		Currency:      currency,
		Status:        status,
		PaymentMethod: strings.TrimSpace(p.PaymentMethod),
		OccurredAt:    p.OccurredAt.UTC(),
	}, nil
}

// Fingerprint hashes the materially significant fields of an event. Two
// deliveries of the same event_id with equal fingerprints are duplicates;
// unequal fingerprints indicate a provider bug and become a conflict.
func Fingerprint(ev model.PaymentEvent) string {
	canonical := fmt.Sprintf("%s|%d|%d|%s|%s|%s|%d",
		ev.EventID, ev.ClientID, ev.Amount, ev.Currency, ev.Status, ev.PaymentMethod, ev.OccurredAt.UTC().Unix(),
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
