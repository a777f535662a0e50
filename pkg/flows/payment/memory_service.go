package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrijr/sagaflow/pkg/flows/dto"
)

// Outcome scripts how the in-memory provider answers an authorization.
type Outcome struct {
	// Status is the session status after authorizing. Empty means
	// authorized.
	Status string

	// Err is returned by AuthorizePaymentSession after the status is set.
	Err error
}

// MemoryService is an in-memory payment provider.
type MemoryService struct {
	mu        sync.Mutex
	sessions  map[string]*dto.PaymentSessionDTO
	outcomes  map[string]Outcome
	cancels   map[string]int
	cancelErr error
}

var _ Service = (*MemoryService)(nil)

// NewMemoryService returns an empty provider.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		sessions: make(map[string]*dto.PaymentSessionDTO),
		outcomes: make(map[string]Outcome),
		cancels:  make(map[string]int),
	}
}

// AddSession creates a pending session.
func (s *MemoryService) AddSession(id string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &dto.PaymentSessionDTO{ID: id, Status: dto.PaymentSessionStatusPending, Amount: amount}
}

// SetOutcome scripts the authorization of session id.
func (s *MemoryService) SetOutcome(id string, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[id] = o
}

// FailCancellations makes CancelPayment return err.
func (s *MemoryService) FailCancellations(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelErr = err
}

// Cancellations reports how often paymentID was canceled.
func (s *MemoryService) Cancellations(paymentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[paymentID]
}

func (s *MemoryService) AuthorizePaymentSession(ctx context.Context, id string, data map[string]any) (*dto.PaymentDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("payment session %s not found", id)
	}

	o := s.outcomes[id]
	status := o.Status
	if status == "" {
		status = dto.PaymentSessionStatusAuthorized
	}
	session.Status = status

	if status == dto.PaymentSessionStatusAuthorized && session.Payment == nil {
		session.Payment = &dto.PaymentDTO{ID: "pay_" + id, Amount: session.Amount}
	}
	if o.Err != nil {
		return nil, o.Err
	}
	if session.Payment == nil {
		return nil, nil
	}
	p := *session.Payment
	return &p, nil
}

func (s *MemoryService) RetrievePaymentSession(ctx context.Context, id string) (dto.PaymentSessionDTO, error) {
	if err := ctx.Err(); err != nil {
		return dto.PaymentSessionDTO{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return dto.PaymentSessionDTO{}, fmt.Errorf("payment session %s not found", id)
	}
	out := *session
	if session.Payment != nil {
		p := *session.Payment
		out.Payment = &p
	}
	return out, nil
}

func (s *MemoryService) CancelPayment(ctx context.Context, paymentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancels[paymentID]++
	if s.cancelErr != nil {
		return s.cancelErr
	}
	for _, session := range s.sessions {
		if session.Payment != nil && session.Payment.ID == paymentID {
			now := time.Now().UTC()
			session.Payment.CanceledAt = &now
			session.Status = dto.PaymentSessionStatusCanceled
		}
	}
	return nil
}
