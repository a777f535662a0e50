package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/petrijr/sagaflow/pkg/flows/dto"
	"github.com/petrijr/sagaflow/pkg/query/memory"
)

// MemoryService implements Service on the "order" records of a fixture
// store. Every delivery bumps the order "version" and appends to its
// "deliveries"; the replaced record is kept so the version can be
// reverted.
type MemoryService struct {
	store *memory.Store

	mu      sync.Mutex
	history map[string][]map[string]any
	last    map[string]dto.RegisterOrderDeliveryDTO
}

var _ Service = (*MemoryService)(nil)

// NewMemoryService returns a Service writing to store.
func NewMemoryService(store *memory.Store) *MemoryService {
	return &MemoryService{
		store:   store,
		history: make(map[string][]map[string]any),
		last:    make(map[string]dto.RegisterOrderDeliveryDTO),
	}
}

func (s *MemoryService) RegisterDelivery(ctx context.Context, data dto.RegisterOrderDeliveryDTO) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev map[string]any
	err := s.store.Update("order", data.OrderID, func(r map[string]any) error {
		prev = copyRecord(r)

		version, _ := r["version"].(float64)
		r["version"] = version + 1

		deliveries, _ := r["deliveries"].([]any)
		r["deliveries"] = append(deliveries, data)
		return nil
	})
	if err != nil {
		return err
	}
	s.history[data.OrderID] = append(s.history[data.OrderID], prev)
	s.last[data.OrderID] = data
	return nil
}

func (s *MemoryService) RevertLastVersion(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.history[orderID]
	if len(versions) == 0 {
		return fmt.Errorf("order %s has no version to revert", orderID)
	}
	prev := versions[len(versions)-1]

	err := s.store.Update("order", orderID, func(r map[string]any) error {
		for k := range r {
			delete(r, k)
		}
		for k, v := range prev {
			r[k] = v
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.history[orderID] = versions[:len(versions)-1]
	return nil
}

// LastDelivery returns the latest delivery registered on an order.
func (s *MemoryService) LastDelivery(orderID string) (dto.RegisterOrderDeliveryDTO, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.last[orderID]
	return d, ok
}

// Deliveries returns the number of deliveries registered on an order.
func (s *MemoryService) Deliveries(orderID string) int {
	r, ok := s.store.Get("order", orderID)
	if !ok {
		return 0
	}
	deliveries, _ := r["deliveries"].([]any)
	return len(deliveries)
}

func copyRecord(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
