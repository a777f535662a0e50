// Package tax contains the tax region update step.
package tax

import (
	"context"

	"github.com/petrijr/sagaflow/pkg/api"
	"github.com/petrijr/sagaflow/pkg/flows/dto"
)

// UpdateTaxRegionsStepID is the name of the update step.
const UpdateTaxRegionsStepID = "update-tax-regions"

// Service is the tax module the step writes through.
type Service interface {
	ListTaxRegions(ctx context.Context, ids []string) ([]dto.TaxRegionDTO, error)
	UpdateTaxRegions(ctx context.Context, data []dto.UpdateTaxRegionDTO) ([]dto.TaxRegionDTO, error)
}

// UpdateTaxRegionsStep applies the input updates and outputs the updated
// regions. The regions as they were before are kept for the compensation,
// which writes back their province code and replaces their metadata,
// clearing metadata the update added. The provider is left as updated.
func UpdateTaxRegionsStep(svc Service) api.Step {
	step := api.TypedStep(UpdateTaxRegionsStepID,
		func(ctx context.Context, ec *api.ExecutionContext, data []dto.UpdateTaxRegionDTO) (api.StepResponse, error) {
			ids := make([]string, 0, len(data))
			for _, d := range data {
				ids = append(ids, d.ID)
			}
			prev, err := svc.ListTaxRegions(ctx, ids)
			if err != nil {
				return api.StepResponse{}, err
			}

			updated, err := svc.UpdateTaxRegions(ctx, data)
			if err != nil {
				return api.StepResponse{}, err
			}
			return api.NewStepResponseWithCompensation(updated, prev), nil
		})

	return step.WithCompensation(api.TypedCompensation(
		func(ctx context.Context, ec *api.ExecutionContext, prev []dto.TaxRegionDTO) error {
			if len(prev) == 0 {
				return nil
			}
			restore := make([]dto.UpdateTaxRegionDTO, 0, len(prev))
			for _, r := range prev {
				province := r.ProvinceCode
				metadata := r.Metadata
				if metadata == nil {
					metadata = map[string]any{}
				}
				restore = append(restore, dto.UpdateTaxRegionDTO{
					ID:           r.ID,
					ProvinceCode: &province,
					Metadata:     metadata,
				})
			}
			_, err := svc.UpdateTaxRegions(ctx, restore)
			return err
		}))
}
