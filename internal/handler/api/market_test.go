package api

import (
	"net/http"
	"testing"

	"BinPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRanker struct{ asked []int }

func (f *fakeRanker) Snapshot(n int) models.ScannerSnapshot {
	f.asked = append(f.asked, n)
	return models.ScannerSnapshot{
		Status:          models.ScannerStatus{Total: 2, WithData: 2, WithSignal: 1, MinTicks: 30},
		Recommendations: []models.PairScore{{Symbol: "R_10", Score: 88, Direction: models.DirectionCall, HasData: true}},
		Pairs: []models.PairScore{
			{Symbol: "R_10", Score: 88, Direction: models.DirectionCall, HasData: true},
			{Symbol: "R_25", Direction: models.DirectionNone, HasData: true},
		},
	}
}

func TestScannerRoute(t *testing.T) {
	r := &fakeRanker{}
	e := newServer(NewMarketHandler(nil, nil, nil, r))

	rec := do(e, http.MethodGet, "/api/scanner?top=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	recs, ok := data["recommendations"].([]any)
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, "R_10", recs[0].(map[string]any)["symbol"])
	assert.Equal(t, float64(2), data["status"].(map[string]any)["total_pairs"])

	rec = do(e, http.MethodGet, "/api/scanner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2, 0}, r.asked)

	rec = do(e, http.MethodGet, "/api/scanner?top=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScannerRouteAbsentWithoutScanner(t *testing.T) {
	e := newServer(NewMarketHandler(nil, nil, nil, nil))
	rec := do(e, http.MethodGet, "/api/scanner", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
