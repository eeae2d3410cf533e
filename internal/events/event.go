package events

import (
	"fmt"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// Event types, also used as routing keys
	EventTypeCatalogCreated = "catalog.created"
	EventTypeCatalogUpdated = "catalog.updated"
	EventTypeCatalogDeleted = "catalog.deleted"
	EventTypeLoanOverdue    = "loan.overdue"

	eventVersion = "1.0.0"
)

// Event represents a domain event
type Event struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	EventVersion  string                 `json:"event_version"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

// CatalogChange describes books that were created, updated or deleted so
// downstream caches can drop them.
type CatalogChange struct {
	EventType string
	LibraryID uuid.UUID
	BookIDs   []uuid.UUID
}

func catalogEvent(change CatalogChange, now time.Time) Event {
	ids := make([]string, len(change.BookIDs))
	for i, id := range change.BookIDs {
		ids[i] = id.String()
	}

	return Event{
		EventID:      uuid.NewString(),
		EventType:    change.EventType,
		EventVersion: eventVersion,
		Timestamp:    now.UTC().Format(time.RFC3339),
		Payload: map[string]interface{}{
			"library_id": change.LibraryID.String(),
			"book_ids":   ids,
		},
	}
}

// overdueEvent is keyed by the loan so a redelivered or re-sent event keeps
// the same message id.
func overdueEvent(loan db.Loan, now time.Time) Event {
	payload := map[string]interface{}{
		"loan_id":    loan.ID.String(),
		"book_id":    loan.BookID.String(),
		"user_id":    loan.UserID.String(),
		"library_id": loan.LibraryID.String(),
	}
	if loan.DueDate != nil {
		payload["due_date"] = loan.DueDate.UTC().Format(time.RFC3339)
	}

	return Event{
		EventID:      EventTypeLoanOverdue + ":" + loan.ID.String(),
		EventType:    EventTypeLoanOverdue,
		EventVersion: eventVersion,
		Timestamp:    now.UTC().Format(time.RFC3339),
		Payload:      payload,
	}
}

type overduePayload struct {
	LoanID    uuid.UUID `json:"loan_id"`
	BookID    uuid.UUID `json:"book_id"`
	UserID    uuid.UUID `json:"user_id"`
	LibraryID uuid.UUID `json:"library_id"`
	DueDate   string    `json:"due_date"`
}

type overdueMessage struct {
	EventType string         `json:"event_type"`
	Payload   overduePayload `json:"payload"`
}

// decodeOverdue turns a loan.overdue message body back into the loan it
// describes.
func decodeOverdue(body []byte) (db.Loan, error) {
	var msg overdueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return db.Loan{}, fmt.Errorf("invalid event body: %w", err)
	}
	if msg.EventType != EventTypeLoanOverdue {
		return db.Loan{}, fmt.Errorf("unexpected event type %q", msg.EventType)
	}
	if msg.Payload.LoanID == uuid.Nil || msg.Payload.UserID == uuid.Nil {
		return db.Loan{}, fmt.Errorf("event is missing loan or user id")
	}

	loan := db.Loan{
		ID:        msg.Payload.LoanID,
		BookID:    msg.Payload.BookID,
		UserID:    msg.Payload.UserID,
		LibraryID: msg.Payload.LibraryID,
		Status:    db.LoanOverdue,
	}
	if msg.Payload.DueDate != "" {
		due, err := time.Parse(time.RFC3339, msg.Payload.DueDate)
		if err != nil {
			return db.Loan{}, fmt.Errorf("invalid due_date: %w", err)
		}
		loan.DueDate = &due
	}
	return loan, nil
}
