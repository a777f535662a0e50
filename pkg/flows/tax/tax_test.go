package tax

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/flows/dto"
)

func ptr(s string) *string { return &s }

func regions() *MemoryService {
	return NewMemoryService(
		dto.TaxRegionDTO{ID: "txreg_us", CountryCode: "us", ProviderID: "tp_system", Metadata: map[string]any{"tier": "a"}},
		dto.TaxRegionDTO{ID: "txreg_ca", CountryCode: "us", ProvinceCode: "ca", ProviderID: "tp_system"},
	)
}

func TestUpdateTaxRegionsStep(t *testing.T) {
	svc := regions()
	eng := sagaflow.NewInMemoryEngine()
	sagaflow.New("update-tax-regions").
		Step(UpdateTaxRegionsStep(svc), sagaflow.WithInput(sagaflow.Input())).
		MustRegister(eng)

	run, err := eng.Run(context.Background(), "update-tax-regions", []dto.UpdateTaxRegionDTO{
		{ID: "txreg_ca", ProvinceCode: ptr("ny")},
	})
	require.NoError(t, err)

	updated, ok := run.Output.([]dto.TaxRegionDTO)
	require.True(t, ok, "output is %T", run.Output)
	require.Len(t, updated, 1)
	assert.Equal(t, "ny", updated[0].ProvinceCode)
	assert.Equal(t, "tp_system", updated[0].ProviderID)
}

func TestUpdateTaxRegionsStepCompensationRestoresPrevious(t *testing.T) {
	svc := regions()
	eng := sagaflow.NewInMemoryEngine()
	boom := errors.New("later step failed")
	sagaflow.New("update-then-fail").
		Step(UpdateTaxRegionsStep(svc), sagaflow.WithInput(sagaflow.Input())).
		Step(sagaflow.NewStep("fail", func(ctx context.Context, ec *sagaflow.ExecutionContext, input any) (any, error) {
			return nil, boom
		}, nil), sagaflow.WithInput(sagaflow.Ref(UpdateTaxRegionsStepID))).
		MustRegister(eng)

	run, err := eng.Run(context.Background(), "update-then-fail", []dto.UpdateTaxRegionDTO{
		{ID: "txreg_us", ProviderID: ptr("tp_avalara"), Metadata: map[string]any{"tier": "b"}},
		{ID: "txreg_ca", ProvinceCode: ptr("ny"), Metadata: map[string]any{"note": "x"}},
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, sagaflow.StatusCompensated, run.Status)

	us, _ := svc.Get("txreg_us")
	assert.Equal(t, map[string]any{"tier": "a"}, us.Metadata)
	assert.Equal(t, "tp_avalara", us.ProviderID, "only province and metadata are restored")

	ca, _ := svc.Get("txreg_ca")
	assert.Equal(t, "ca", ca.ProvinceCode)
	assert.Empty(t, ca.Metadata)
}

func TestUpdateTaxRegionsStepUnknownRegion(t *testing.T) {
	svc := regions()
	step := UpdateTaxRegionsStep(svc)

	_, err := step.Invoke(context.Background(), nil, []dto.UpdateTaxRegionDTO{
		{ID: "txreg_ca", ProvinceCode: ptr("ny")},
		{ID: "txreg_missing", ProvinceCode: ptr("tx")},
	})
	require.Error(t, err)

	ca, _ := svc.Get("txreg_ca")
	assert.Equal(t, "ca", ca.ProvinceCode, "updates are all or nothing")
}

func TestUpdateTaxRegionsCompensationWithoutPrevious(t *testing.T) {
	step := UpdateTaxRegionsStep(NewMemoryService())
	require.NoError(t, step.Compensate(context.Background(), nil, nil))
	require.NoError(t, step.Compensate(context.Background(), nil, []dto.TaxRegionDTO{}))
}
