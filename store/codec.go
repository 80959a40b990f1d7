package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSchemaVersion is returned when a stored blob carries an unknown schema
// version. The adapter rejects such records instead of returning
// partially-typed data.
var ErrSchemaVersion = errors.New("unsupported_schema_version")

func decodeRecord(data []byte, out any, want int) error {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("malformed record: %w", err)
	}
	if probe.SchemaVersion != want {
		return fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, probe.SchemaVersion, want)
	}
	return json.Unmarshal(data, out)
}
