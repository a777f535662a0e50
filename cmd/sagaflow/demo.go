package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/api"
	eventmem "github.com/petrijr/sagaflow/pkg/eventbus/memory"
	"github.com/petrijr/sagaflow/pkg/flows/fulfillment"
	"github.com/petrijr/sagaflow/pkg/flows/order"
	"github.com/petrijr/sagaflow/pkg/flows/payment"
	querymem "github.com/petrijr/sagaflow/pkg/query/memory"
)

//go:embed fixtures/commerce.json
var commerceFixtures []byte

func loadFixtures() (*querymem.Store, error) {
	return querymem.Load(bytes.NewReader(commerceFixtures))
}

func newDemoCmd(a *app) *cobra.Command {
	demo := &cobra.Command{
		Use:   "demo",
		Short: "Run a sample workflow in memory",
	}

	var orderID, fulfillmentID string
	delivery := &cobra.Command{
		Use:   "delivery",
		Short: "Mark an order fulfillment as delivered",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliveryDemo(cmd.Context(), cmd.OutOrStdout(), a.logger, orderID, fulfillmentID)
		},
	}
	delivery.Flags().StringVar(&orderID, "order", "order_01", "order ID")
	delivery.Flags().StringVar(&fulfillmentID, "fulfillment", "ful_01", "fulfillment ID")

	compensation := &cobra.Command{
		Use:   "compensation",
		Short: "Authorize a payment, fail the next step and watch the rollback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompensationDemo(cmd.Context(), cmd.OutOrStdout(), a.logger)
		},
	}

	demo.AddCommand(delivery, compensation)
	return demo
}

func runDeliveryDemo(ctx context.Context, out io.Writer, logger *zap.Logger, orderID, fulfillmentID string) error {
	store, err := loadFixtures()
	if err != nil {
		return err
	}

	bus := eventmem.New(logger)
	bus.Subscribe(eventmem.Wildcard, func(ctx context.Context, msg api.EventMessage) error {
		fmt.Fprintf(out, "event %s %v\n", msg.Name, msg.Data)
		return nil
	})

	eng := sagaflow.NewEngine(sagaflow.EngineConfig{
		Logger:   logger,
		Observer: sagaflow.NewLoggingObserver(logger),
		Query:    store,
		Events:   bus,
	})
	err = eng.RegisterWorkflow(order.MarkOrderFulfillmentAsDeliveredWorkflow(order.Deps{
		Orders:       order.NewMemoryService(store),
		Fulfillments: fulfillment.NewMemoryService(store),
	}))
	if err != nil {
		return err
	}

	run, err := eng.Run(ctx, order.MarkOrderFulfillmentAsDeliveredWorkflowID, order.MarkOrderFulfillmentAsDeliveredInput{
		OrderID:       orderID,
		FulfillmentID: fulfillmentID,
	})
	if err != nil {
		if run != nil {
			fmt.Fprintf(out, "run %s %s\n", run.ID, run.Status)
		}
		return err
	}

	data, err := json.MarshalIndent(run.Output, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run %s %s\n%s\n", run.ID, run.Status, data)
	return nil
}

var errOrderCreation = errors.New("inventory reservation failed")

func runCompensationDemo(ctx context.Context, out io.Writer, logger *zap.Logger) error {
	payments := payment.NewMemoryService()
	payments.AddSession("payses_01", decimal.NewFromInt(4200))

	eng := sagaflow.NewEngine(sagaflow.EngineConfig{
		Logger:   logger,
		Observer: sagaflow.NewLoggingObserver(logger),
	})
	err := sagaflow.New("complete-cart").
		Step(payment.AuthorizePaymentSessionStep(payments), sagaflow.WithInput(sagaflow.Input())).
		Step(sagaflow.NewStep("create-order", func(ctx context.Context, ec *sagaflow.ExecutionContext, input any) (any, error) {
			return nil, errOrderCreation
		}, nil), sagaflow.WithInput(sagaflow.Ref(payment.AuthorizePaymentSessionStepID))).
		Register(eng)
	if err != nil {
		return err
	}

	run, err := eng.Run(ctx, "complete-cart", payment.AuthorizePaymentSessionInput{ID: "payses_01"})
	if run == nil {
		return err
	}
	step, _ := sagaflow.FailedStep(err)
	fmt.Fprintf(out, "run %s %s (failed at %s)\n", run.ID, run.Status, step)

	session, serr := payments.RetrievePaymentSession(ctx, "payses_01")
	if serr != nil {
		return serr
	}
	fmt.Fprintf(out, "payment session %s %s, cancellations %d\n",
		session.ID, session.Status, payments.Cancellations("pay_payses_01"))

	if run.Status != sagaflow.StatusCompensated {
		return err
	}
	return nil
}
