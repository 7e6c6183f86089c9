package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"insights/internal/datasets"
)

// DatasetLoadedMessage announces a committed upload. It carries only the
// reference; consumers read the rows from the shared store.
type DatasetLoadedMessage struct {
	DatasetID    string    `json:"dataset_id"`
	SessionID    string    `json:"session_id"`
	FileName     string    `json:"file_name"`
	Transactions int       `json:"transactions"`
	Skipped      int       `json:"skipped"`
	LoadedAt     time.Time `json:"loaded_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewDatasetLoadedMessage builds the event for ref.
func NewDatasetLoadedMessage(ref datasets.Ref) *DatasetLoadedMessage {
	return &DatasetLoadedMessage{
		DatasetID:    ref.ID,
		SessionID:    ref.SessionID,
		FileName:     ref.FileName,
		Transactions: ref.Transactions,
		Skipped:      ref.Skipped,
		LoadedAt:     ref.LoadedAt,
		Timestamp:    time.Now(),
	}
}

// Ref converts the message back into a dataset reference.
func (m *DatasetLoadedMessage) Ref() datasets.Ref {
	return datasets.Ref{
		ID:           m.DatasetID,
		SessionID:    m.SessionID,
		FileName:     m.FileName,
		LoadedAt:     m.LoadedAt,
		Transactions: m.Transactions,
		Skipped:      m.Skipped,
	}
}

// Validate checks the fields a consumer relies on.
func (m *DatasetLoadedMessage) Validate() error {
	if m.DatasetID == "" {
		return errors.New("dataset_id is required")
	}
	if m.SessionID == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *DatasetLoadedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetLoadedMessageFromJSON decodes and validates a message.
func DatasetLoadedMessageFromJSON(data []byte) (*DatasetLoadedMessage, error) {
	var msg DatasetLoadedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
