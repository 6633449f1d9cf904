package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalysisSavedMessage announces a stored analysis that should be exported.
// It carries only identifiers; the worker loads the row from the database.
type AnalysisSavedMessage struct {
	MessageID string    `json:"message_id"`
	ID        int64     `json:"id"`
	Ref       string    `json:"ref"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAnalysisSavedMessage(id int64, ref string) *AnalysisSavedMessage {
	return &AnalysisSavedMessage{
		MessageID: uuid.NewString(),
		ID:        id,
		Ref:       ref,
		Timestamp: time.Now().UTC(),
	}
}

func (m *AnalysisSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AnalysisSavedMessageFromJSON decodes a message and rejects ones without an id.
func AnalysisSavedMessageFromJSON(data []byte) (*AnalysisSavedMessage, error) {
	var msg AnalysisSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("analysis message without id")
	}
	return &msg, nil
}
