// Package payment contains the payment session authorization step.
package payment

import (
	"context"
	"encoding/gob"
	"errors"

	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/pkg/api"
	"github.com/petrijr/sagaflow/pkg/flows/dto"
)

func init() {
	gob.Register(AuthorizePaymentSessionInput{})
}

// AuthorizePaymentSessionStepID is the name of the authorization step.
const AuthorizePaymentSessionStepID = "authorize-payment-session-step"

var (
	// ErrPaymentRequiresMore is returned when the provider needs further
	// action from the customer before the session can be authorized.
	ErrPaymentRequiresMore = errors.New("more information is required for payment")

	// ErrPaymentAuthorization is returned when the session could not be
	// authorized.
	ErrPaymentAuthorization = errors.New("payment authorization failed")
)

// Service is the payment module the step talks to.
type Service interface {
	AuthorizePaymentSession(ctx context.Context, id string, data map[string]any) (*dto.PaymentDTO, error)
	RetrievePaymentSession(ctx context.Context, id string) (dto.PaymentSessionDTO, error)
	CancelPayment(ctx context.Context, paymentID string) error
}

// AuthorizePaymentSessionInput selects the session to authorize. Context
// is handed to the payment provider.
type AuthorizePaymentSessionInput struct {
	ID      string         `json:"id"`
	Context map[string]any `json:"context,omitempty"`
}

// AuthorizePaymentSessionStep authorizes a payment session and outputs the
// resulting *dto.PaymentDTO, or nil when the input has no session ID. The
// compensation receives the payment by value.
//
// Provider errors are logged; the outcome is read back from the session.
// The compensation cancels the payment unless the session still requires
// more information. A failed cancellation is logged and does not fail the
// rollback.
func AuthorizePaymentSessionStep(svc Service) api.Step {
	step := api.TypedStep(AuthorizePaymentSessionStepID,
		func(ctx context.Context, ec *api.ExecutionContext, in AuthorizePaymentSessionInput) (api.StepResponse, error) {
			if in.ID == "" {
				return api.StepResponse{}, nil
			}
			logger := stepLogger(ec)

			data := in.Context
			if data == nil {
				data = map[string]any{}
			}
			payment, err := svc.AuthorizePaymentSession(ctx, in.ID, data)
			if err != nil {
				logger.Error("authorize payment session", zap.String("payment_session_id", in.ID), zap.Error(err))
			}

			session, err := svc.RetrievePaymentSession(ctx, in.ID)
			if err != nil {
				return api.StepResponse{}, err
			}

			if session.Status == dto.PaymentSessionStatusRequiresMore {
				return api.StepResponse{}, ErrPaymentRequiresMore
			}
			if session.Status != dto.PaymentSessionStatusAuthorized || payment == nil {
				return api.StepResponse{}, ErrPaymentAuthorization
			}

			out := session.Payment
			if out == nil {
				out = payment
			}
			if out.PaymentSession == nil {
				s := session
				s.Payment = nil
				out.PaymentSession = &s
			}
			return api.NewStepResponseWithCompensation(out, *out), nil
		})

	return step.WithCompensation(api.TypedCompensation(
		func(ctx context.Context, ec *api.ExecutionContext, payment dto.PaymentDTO) error {
			if payment.ID == "" {
				return nil
			}
			if payment.PaymentSession != nil && payment.PaymentSession.Status == dto.PaymentSessionStatusRequiresMore {
				return nil
			}
			if err := svc.CancelPayment(ctx, payment.ID); err != nil {
				stepLogger(ec).Error("cancel payment", zap.String("payment_id", payment.ID), zap.Error(err))
			}
			return nil
		}))
}

func stepLogger(ec *api.ExecutionContext) *zap.Logger {
	if ec == nil || ec.Logger == nil {
		return zap.NewNop()
	}
	return ec.Logger
}
