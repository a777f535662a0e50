package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/sagaflow/pkg/api"
)

// Container types the engine itself produces: parallel group outputs,
// picked bindings and decoded JSON payloads.
func init() {
	gob.Register([]any{})
	gob.Register(map[string]any{})
	gob.Register(api.Data{})
}

// EncodeValue serializes an arbitrary Go value using encoding/gob.
// The value is encoded as an interface so that it decodes back into any;
// concrete payload types must be registered with gob.Register.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// Snapshot is the storable form of a WorkflowRun. Every backend persists
// a Snapshot; the indexed columns (ID, WorkflowID, Status) are duplicated
// next to it where the backend supports queries.
type Snapshot struct {
	ID          string
	WorkflowID  string
	Status      string
	Input       []byte
	Output      []byte
	Error       string
	EventErrors []string
	Entries     []EntrySnapshot
	StartedAt   time.Time
	EndedAt     time.Time
}

// EntrySnapshot is the storable form of an api.RecordEntry.
type EntrySnapshot struct {
	StepName        string
	Kind            string
	Status          string
	Result          []byte
	CompensateInput []byte
	Error           string
	StartedAt       time.Time
	EndedAt         time.Time
	Attempts        int
	Group           string
	Children        []EntrySnapshot
}

// NewSnapshot converts run into its storable form.
func NewSnapshot(run *api.WorkflowRun) (*Snapshot, error) {
	input, err := EncodeValue(run.Input)
	if err != nil {
		return nil, err
	}
	output, err := EncodeValue(run.Output)
	if err != nil {
		return nil, err
	}
	entries, err := snapshotEntries(run.Record)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Status:     string(run.Status),
		Input:      input,
		Output:     output,
		Error:      errString(run.Err),
		Entries:    entries,
		StartedAt:  run.StartedAt,
		EndedAt:    run.EndedAt,
	}
	for _, e := range run.EventErrors {
		s.EventErrors = append(s.EventErrors, errString(e))
	}
	return s, nil
}

func snapshotEntries(rec *api.ExecutionRecord) ([]EntrySnapshot, error) {
	entries := rec.Entries()
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]EntrySnapshot, 0, len(entries))
	for _, e := range entries {
		result, err := EncodeValue(e.Result)
		if err != nil {
			return nil, fmt.Errorf("step %q result: %w", e.StepName, err)
		}
		compIn, err := EncodeValue(e.CompensateInput)
		if err != nil {
			return nil, fmt.Errorf("step %q compensation input: %w", e.StepName, err)
		}
		children, err := snapshotEntries(e.Children)
		if err != nil {
			return nil, err
		}
		out = append(out, EntrySnapshot{
			StepName:        e.StepName,
			Kind:            string(e.Kind),
			Status:          string(e.Status),
			Result:          result,
			CompensateInput: compIn,
			Error:           errString(e.Error),
			StartedAt:       e.StartedAt,
			EndedAt:         e.EndedAt,
			Attempts:        e.Attempts,
			Group:           e.Group,
			Children:        children,
		})
	}
	return out, nil
}

// Run converts the snapshot back into a WorkflowRun. Restored errors carry
// only the original message.
func (s *Snapshot) Run() (*api.WorkflowRun, error) {
	input, err := DecodeValue(s.Input)
	if err != nil {
		return nil, err
	}
	output, err := DecodeValue(s.Output)
	if err != nil {
		return nil, err
	}

	rec := api.NewExecutionRecord(s.ID, s.WorkflowID)
	if err := restoreEntries(rec, s.Entries); err != nil {
		return nil, err
	}

	run := &api.WorkflowRun{
		ID:         s.ID,
		WorkflowID: s.WorkflowID,
		Status:     api.Status(s.Status),
		Input:      input,
		Output:     output,
		Err:        stringErr(s.Error),
		Record:     rec,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
	}
	for _, msg := range s.EventErrors {
		run.EventErrors = append(run.EventErrors, stringErr(msg))
	}
	return run, nil
}

func restoreEntries(rec *api.ExecutionRecord, entries []EntrySnapshot) error {
	for _, es := range entries {
		result, err := DecodeValue(es.Result)
		if err != nil {
			return fmt.Errorf("step %q result: %w", es.StepName, err)
		}
		compIn, err := DecodeValue(es.CompensateInput)
		if err != nil {
			return fmt.Errorf("step %q compensation input: %w", es.StepName, err)
		}
		e := &api.RecordEntry{
			StepName:        es.StepName,
			Kind:            api.NodeKind(es.Kind),
			Status:          api.EntryStatus(es.Status),
			Result:          result,
			CompensateInput: compIn,
			Error:           stringErr(es.Error),
			StartedAt:       es.StartedAt,
			EndedAt:         es.EndedAt,
			Attempts:        es.Attempts,
			Group:           es.Group,
		}
		if len(es.Children) > 0 {
			e.Children = api.NewExecutionRecord(rec.RunID, es.StepName)
			if err := restoreEntries(e.Children, es.Children); err != nil {
				return err
			}
		}
		rec.Append(e)
	}
	return nil
}

// EncodeSnapshot gob-encodes s.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode run %s: %w", s.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot gob-decodes a Snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &s, nil
}

// EncodeRun is shorthand for NewSnapshot followed by EncodeSnapshot.
func EncodeRun(run *api.WorkflowRun) ([]byte, error) {
	s, err := NewSnapshot(run)
	if err != nil {
		return nil, err
	}
	return EncodeSnapshot(s)
}

// DecodeRun is shorthand for DecodeSnapshot followed by Snapshot.Run.
func DecodeRun(data []byte) (*api.WorkflowRun, error) {
	s, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	return s.Run()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func stringErr(s string) error {
	if s == "" {
		return nil
	}
	return errors.New(s)
}
