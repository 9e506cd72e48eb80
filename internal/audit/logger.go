package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	EntryID   string    `json:"entry_id,omitempty"`
	MemberID  string    `json:"member_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger emits a JSON line for every financial mutation: entry recorded,
// entry deleted, batch generated or reversed, approval decisions.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogEntry(eventType, entryID, memberID string, amount int64) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		EntryID:   entryID,
		MemberID:  memberID,
		Amount:    amount,
		Status:    "SUCCESS",
	})
}

func (a *Logger) LogBatch(eventType, label string, entries int, amount int64) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]any{
			"batch_label": label,
			"entries":     entries,
		},
	})
}

func (a *Logger) LogError(eventType, entryID, memberID string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		EntryID:   entryID,
		MemberID:  memberID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
