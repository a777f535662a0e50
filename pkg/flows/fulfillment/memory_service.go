package fulfillment

import (
	"context"

	"github.com/petrijr/sagaflow/pkg/flows/common"
	"github.com/petrijr/sagaflow/pkg/flows/dto"
	"github.com/petrijr/sagaflow/pkg/query/memory"
)

// MemoryService implements Service on the "fulfillment" records of a
// fixture store, so that queries observe its writes.
type MemoryService struct {
	store *memory.Store
}

var _ Service = (*MemoryService)(nil)

// NewMemoryService returns a Service writing to store.
func NewMemoryService(store *memory.Store) *MemoryService {
	return &MemoryService{store: store}
}

func (s *MemoryService) UpdateFulfillment(ctx context.Context, data dto.UpdateFulfillmentDTO) (dto.FulfillmentDTO, error) {
	if err := ctx.Err(); err != nil {
		return dto.FulfillmentDTO{}, err
	}
	err := s.store.Update("fulfillment", data.ID, func(r map[string]any) error {
		if data.DeliveredAt == nil {
			r["delivered_at"] = nil
		} else {
			r["delivered_at"] = *data.DeliveredAt
		}
		return nil
	})
	if err != nil {
		return dto.FulfillmentDTO{}, err
	}

	r, _ := s.store.Get("fulfillment", data.ID)
	return common.Decode[dto.FulfillmentDTO](r)
}
