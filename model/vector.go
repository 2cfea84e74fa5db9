package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/siherrmann/docsearch/helper"
)

// JSONVector is an embedding vector stored as a JSON array in a JSONB column.
// It is the storage representation used when the pgvector extension is not
// available.
type JSONVector []float32

// Value implements the driver.Valuer interface for database storage.
// The value is rendered as a string because lib/pq transmits []byte in bytea
// hex form, which does not cast to jsonb.
func (v JSONVector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
func (v *JSONVector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
		}
	}

	return json.Unmarshal(b, v)
}
