package tax

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/petrijr/sagaflow/pkg/flows/dto"
)

// MemoryService keeps tax regions in memory.
type MemoryService struct {
	mu      sync.Mutex
	regions map[string]dto.TaxRegionDTO
}

var _ Service = (*MemoryService)(nil)

// NewMemoryService returns a service holding regions.
func NewMemoryService(regions ...dto.TaxRegionDTO) *MemoryService {
	s := &MemoryService{regions: make(map[string]dto.TaxRegionDTO, len(regions))}
	for _, r := range regions {
		s.regions[r.ID] = clone(r)
	}
	return s
}

// ListTaxRegions returns the regions with the given IDs, sorted by ID.
// Unknown IDs are skipped.
func (s *MemoryService) ListTaxRegions(ctx context.Context, ids []string) ([]dto.TaxRegionDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]dto.TaxRegionDTO, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.regions[id]; ok {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateTaxRegions applies every update or none. Metadata replaces the
// stored metadata when non-nil.
func (s *MemoryService) UpdateTaxRegions(ctx context.Context, data []dto.UpdateTaxRegionDTO) ([]dto.TaxRegionDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range data {
		if _, ok := s.regions[d.ID]; !ok {
			return nil, fmt.Errorf("tax region %s not found", d.ID)
		}
	}

	out := make([]dto.TaxRegionDTO, 0, len(data))
	for _, d := range data {
		r := s.regions[d.ID]
		if d.ProvinceCode != nil {
			r.ProvinceCode = *d.ProvinceCode
		}
		if d.ProviderID != nil {
			r.ProviderID = *d.ProviderID
		}
		if d.Metadata != nil {
			r.Metadata = maps.Clone(d.Metadata)
		}
		s.regions[d.ID] = r
		out = append(out, clone(r))
	}
	return out, nil
}

// Get returns the region with id.
func (s *MemoryService) Get(id string) (dto.TaxRegionDTO, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[id]
	return clone(r), ok
}

func clone(r dto.TaxRegionDTO) dto.TaxRegionDTO {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}
