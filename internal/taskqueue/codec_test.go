package taskqueue

import (
	"encoding/gob"
	"reflect"
	"testing"
	"time"
)

type testPayload struct {
	A string
	B int
}

func init() {
	gob.Register(testPayload{})
}

func TestEncodeDecodeTask_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	cases := []struct {
		name    string
		payload any
	}{
		{name: "nil payload", payload: nil},
		{name: "string payload", payload: "hello"},
		{name: "struct payload", payload: testPayload{A: "x", B: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := Task{
				ID:         "task-1",
				Type:       TaskTypeStartRun,
				WorkflowID: "wf",
				Payload:    tc.payload,
				EnqueuedAt: now,
				NotBefore:  now.Add(time.Minute),
				Attempts:   1,
			}

			data, err := EncodeTask(in)
			if err != nil {
				t.Fatalf("EncodeTask failed: %v", err)
			}
			out, err := DecodeTask(data)
			if err != nil {
				t.Fatalf("DecodeTask failed: %v", err)
			}

			if !out.EnqueuedAt.Equal(in.EnqueuedAt) || !out.NotBefore.Equal(in.NotBefore) {
				t.Fatalf("timestamps differ: %+v vs %+v", out, in)
			}
			out.EnqueuedAt, out.NotBefore = in.EnqueuedAt, in.NotBefore
			if !reflect.DeepEqual(*out, in) {
				t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", *out, in)
			}
		})
	}
}

func TestDecodeTask_Garbage(t *testing.T) {
	if _, err := DecodeTask([]byte("not gob")); err == nil {
		t.Fatalf("expected decode error")
	}
}
