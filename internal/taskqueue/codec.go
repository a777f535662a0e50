package taskqueue

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// EncodeTask gob-encodes a Task. The concrete Payload type must be
// registered with gob.Register.
func EncodeTask(t Task) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&t); err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTask gob-decodes a Task.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}
