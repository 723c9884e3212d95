package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgo/saga/presence/internal/database"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

var errUnexpectedFormat = errors.New("unexpected result format")

// unwrapRecord navigates a QueryOne result down to a single record map
func unwrapRecord(result interface{}) (map[string]interface{}, error) {
	if result == nil {
		return nil, database.ErrNotFound
	}

	// Navigate through SurrealDB response structure
	if resp, ok := result.(map[string]interface{}); ok {
		if status, ok := resp["status"].(string); ok && status == "OK" {
			if resultData, ok := resp["result"].([]interface{}); ok {
				if len(resultData) == 0 {
					return nil, database.ErrNotFound
				}
				result = resultData[0]
			}
		}
	}

	// Handle array wrapper
	if arr, ok := result.([]interface{}); ok {
		if len(arr) == 0 {
			return nil, database.ErrNotFound
		}
		result = arr[0]
	}

	data, ok := result.(map[string]interface{})
	if !ok {
		return nil, errUnexpectedFormat
	}
	return data, nil
}

// statementRecords returns the records produced by one statement of a Query result
func statementRecords(statement interface{}) []map[string]interface{} {
	var rows []interface{}
	if resp, ok := statement.(map[string]interface{}); ok {
		if resultData, ok := resp["result"].([]interface{}); ok {
			rows = resultData
		} else if single, ok := resp["result"].(map[string]interface{}); ok {
			rows = []interface{}{single}
		}
	} else if arr, ok := statement.([]interface{}); ok {
		rows = arr
	}

	records := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if data, ok := row.(map[string]interface{}); ok {
			records = append(records, data)
		}
	}
	return records
}

// lastStatementRecord returns the first record of the final statement in a batch
func lastStatementRecord(results []interface{}) (map[string]interface{}, error) {
	if len(results) == 0 {
		return nil, errors.New("no result returned")
	}
	records := statementRecords(results[len(results)-1])
	if len(records) == 0 {
		return nil, database.ErrNotFound
	}
	return records[0], nil
}

// convertSurrealID converts a SurrealDB ID (which may be a complex object) to a string
func convertSurrealID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case models.RecordID:
		return fmt.Sprintf("%s:%v", v.Table, v.ID)
	case *models.RecordID:
		if v != nil {
			return fmt.Sprintf("%s:%v", v.Table, v.ID)
		}
	case map[string]interface{}:
		// Handle {"tb": "layer", "id": "xxx"} format
		tb, _ := v["tb"].(string)
		if tb == "" {
			tb, _ = v["Table"].(string)
		}
		idPart := ""
		if s, ok := v["id"].(string); ok {
			idPart = s
		} else if s, ok := v["ID"].(string); ok {
			idPart = s
		}
		if tb != "" && idPart != "" {
			return tb + ":" + idPart
		}
		if idPart != "" {
			return idPart
		}
	}
	return fmt.Sprintf("%v", id)
}

// sameTable reports whether a record id belongs to table
func sameTable(id, table string) bool {
	return strings.HasPrefix(id, table+":")
}

// getString extracts a string value from a map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getStringPtr extracts an optional string value from a map
func getStringPtr(m map[string]interface{}, key string) *string {
	if v, ok := m[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

// getInt extracts an int value from a map
func getInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case float32:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	}
	return 0
}

// getBool extracts a bool value from a map
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// getTime extracts a time value from a map, returning the zero time if absent
func getTime(m map[string]interface{}, key string) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case models.CustomDateTime:
		return v.Time
	case *models.CustomDateTime:
		if v != nil {
			return v.Time
		}
	}
	return time.Time{}
}
