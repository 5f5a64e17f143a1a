package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

//
// JSONB helpers
//

// JSONB is a helper for Postgres jsonb columns.
// Backed by map[string]any and works with sqlx / database/sql.
type JSONB map[string]any

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (j *JSONB) Scan(value any) error {
	b, err := jsonbBytes("JSONB", value)
	if err != nil || b == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(b, j)
}

// jsonbBytes normalizes the driver representations of a jsonb column. A nil slice
// with a nil error means SQL NULL or an empty document.
func jsonbBytes(typeName string, value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%s: expected []byte, got %T", typeName, value)
	}
}
