package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
)

var _ domrepo.Metrics = (*Recorder)(nil)

func TestRecorderIsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordError("venue_dial")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.errorsTotal.WithLabelValues("venue_dial")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.errorsTotal.WithLabelValues("venue_dial")))
}

func TestConnectionPhaseIsOneHot(t *testing.T) {
	r := New()
	r.RecordConnectionPhase("u1:demo", models.ConnConnected)
	r.RecordConnectionPhase("u1:demo", models.ConnReconnecting)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.connection.WithLabelValues("u1:demo", "CONNECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.connection.WithLabelValues("u1:demo", "RECONNECTING")))
}

func TestTradeProfitSplitBySign(t *testing.T) {
	r := New()
	r.RecordTrade("R_100", models.ResultWin, 0.95)
	r.RecordTrade("R_100", models.ResultLoss, -1)
	r.RecordTrade("R_100", models.ResultLoss, -2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.trades.WithLabelValues("R_100", "LOSS")))
	assert.InDelta(t, 0.95, testutil.ToFloat64(r.profit.WithLabelValues("gain")), 1e-9)
	assert.InDelta(t, 3.0, testutil.ToFloat64(r.profit.WithLabelValues("loss")), 1e-9)
}

func TestRegistryGathers(t *testing.T) {
	r := New()
	r.RecordTick("R_100", 1234.5)
	r.RecordSignal("SNIPER", "CALL", true)
	n, err := testutil.GatherAndCount(r.Registry(), "binpull_ticks_total", "binpull_signals_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
