package utils

import (
	"encoding/json"
)

// Marshal generic struct to JSON
func MarshalToJSON[T any](input T) (string, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

// Unmarshal JSON to generic struct
func UnmarshalFromJSON[T any](data []byte, output *T) error {
	return json.Unmarshal(data, output)
}

// MustMarshal marshals or returns nil; for audit/debug payloads where a
// marshal failure must not fail the write.
func MustMarshal(input any) []byte {
	b, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	return b
}
