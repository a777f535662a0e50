package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SAGAFLOW_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDemoDelivery(t *testing.T) {
	out, err := execute(t, "demo", "delivery")
	require.NoError(t, err)

	assert.Contains(t, out, "SUCCEEDED")
	assert.Contains(t, out, "event delivery.created map[id:ful_01]")
	assert.Contains(t, out, `"order_id": "order_01"`)
	assert.Contains(t, out, `"id": "item_giftset"`)
}

func TestDemoDeliveryRejectsCanceledFulfillment(t *testing.T) {
	out, err := execute(t, "demo", "delivery", "--fulfillment", "ful_03")
	require.Error(t, err)
	assert.Contains(t, out, "COMPENSATED")
	assert.NotContains(t, out, "delivery.created")
}

func TestDemoCompensation(t *testing.T) {
	out, err := execute(t, "demo", "compensation")
	require.NoError(t, err)

	assert.Contains(t, out, "COMPENSATED (failed at create-order)")
	assert.Contains(t, out, "payment session payses_01 canceled, cancellations 1")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sagaflow dev\n", out)
}

func TestInvalidStoreFlag(t *testing.T) {
	_, err := execute(t, "--store", "cassandra", "version")
	require.Error(t, err)
}

func TestParseDeliveries(t *testing.T) {
	in, err := parseDeliveries([]string{"order_01:ful_01"})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "order_01", in[0].OrderID)
	assert.Equal(t, "ful_01", in[0].FulfillmentID)

	_, err = parseDeliveries([]string{"order_01"})
	require.Error(t, err)
}

func TestEnqueueFailureStopsPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	stopped := make(chan struct{})
	g.Go(func() error {
		defer close(stopped)
		<-gctx.Done()
		return nil
	})

	queueDown := errors.New("queue down")
	inputs, err := parseDeliveries([]string{"order_01:ful_01", "order_01:ful_02"})
	require.NoError(t, err)

	calls := 0
	err = enqueueDeliveries(gctx, func(ctx context.Context, workflowID string, input any) error {
		calls++
		return queueDown
	}, inputs)
	require.ErrorIs(t, err, queueDown)
	assert.Equal(t, 1, calls)

	err = stopPool(cancel, g, err)
	require.ErrorIs(t, err, queueDown)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("pool goroutine still running")
	}
}
