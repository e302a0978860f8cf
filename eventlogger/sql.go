package eventlogger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS events (
	id             UUID PRIMARY KEY,
	event_type     TEXT NOT NULL,
	event_data     JSONB,
	event_metadata JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS events_event_type_idx ON events (event_type);
`

type SQLEventLogger struct {
	db *sql.DB
}

func NewSQLEventLogger(db *sql.DB) *SQLEventLogger {
	return &SQLEventLogger{
		db: db,
	}
}

func (el *SQLEventLogger) Migrate(ctx context.Context) error {
	if _, err := el.db.ExecContext(ctx, eventsSchema); err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}
	return nil
}

func (el *SQLEventLogger) Save(ctx context.Context, e Event) error {
	jsonData, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}
	jsonMetadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding event metadata: %w", err)
	}
	statement := `INSERT INTO events (id, event_type, event_data, event_metadata, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = el.db.ExecContext(ctx, statement, e.ID, e.Type, jsonData, jsonMetadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

func (el *SQLEventLogger) GetByType(ctx context.Context, eventType string) ([]StoredEvent, error) {
	query := `SELECT id, event_type, event_data, event_metadata, created_at FROM events WHERE event_type = $1 ORDER BY created_at`
	result, err := el.db.QueryContext(ctx, query, eventType)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	events := make([]StoredEvent, 0)
	for result.Next() {
		var event StoredEvent
		var jsonData, jsonMetadata []byte
		if err := result.Scan(&event.ID, &event.Type, &jsonData, &jsonMetadata, &event.CreatedAt); err != nil {
			return events, err
		}
		event.Data = json.RawMessage(jsonData)
		if len(jsonMetadata) > 0 {
			if err := json.Unmarshal(jsonMetadata, &event.Metadata); err != nil {
				return events, fmt.Errorf("decoding event metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	return events, result.Err()
}
