package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinPull/internal/domain/models"
)

func digitPrices(digits ...int) []float64 {
	out := make([]float64, len(digits))
	for i, d := range digits {
		out[i] = 100 + float64(d)/100
	}
	return out
}

func TestDigitStats(t *testing.T) {
	ds := NewDigitStats(digitPrices(1, 2, 3, 3, 3), 2)
	assert.Equal(t, 5, ds.Total)
	assert.InDelta(t, 0.6, ds.Freq[3], 1e-9)
	assert.InDelta(t, 0.2, ds.EvenRatio, 1e-9)
	assert.Equal(t, 3, ds.Streak)
	assert.Equal(t, 3, ds.StreakDigit)
	assert.Equal(t, []int{1, 2, 3}, ds.Hot())
	assert.Contains(t, ds.Cold(), 9)

	empty := NewDigitStats(nil, 2)
	assert.InDelta(t, 0.1, empty.Freq[0], 1e-9)
	assert.InDelta(t, 0.5, empty.EvenRatio, 1e-9)
}

func TestDigitPadColdDigitDiffers(t *testing.T) {
	var digits []int
	for i := 0; i < 90; i++ {
		digits = append(digits, i%9) // 9 never appears
	}
	sig := NewDigitPad().Evaluate("R_100", models.IndicatorState{}, digitPrices(digits...))
	require.True(t, sig.IsActionable(), sig.Reason)
	assert.Equal(t, models.ContractDigitDiff, sig.ContractType)
	assert.Equal(t, "9", sig.Barrier)
	assert.InDelta(t, 0.85, sig.Confidence, 1e-9)
	assert.True(t, sig.IsDigit())
}

func TestDigitPadEvenDominanceBetsOdd(t *testing.T) {
	var digits []int
	for b := 0; b < 5; b++ {
		for r := 0; r < 3; r++ {
			for d := 0; d < 10; d++ {
				digits = append(digits, d)
			}
		}
		for r := 0; r < 2; r++ {
			digits = append(digits, 0, 2, 4, 6, 8)
		}
	}
	require.Len(t, digits, 200)

	sig := NewDigitPad().Evaluate("R_100", models.IndicatorState{}, digitPrices(digits...))
	require.True(t, sig.IsActionable(), sig.Reason)
	assert.Equal(t, models.ContractDigitOdd, sig.ContractType)
	assert.Equal(t, models.DirectionPut, sig.Direction)
	assert.Empty(t, sig.Barrier)
	assert.InDelta(t, 0.675, sig.Confidence, 1e-9)
	assert.InDelta(t, 0.625, sig.Components["even_ratio"], 1e-9)
}

func TestDigitPadRepeatedDigitBetsOver(t *testing.T) {
	var digits []int
	for i := 0; i < 60; i++ {
		digits = append(digits, i%10)
	}
	digits = append(digits, 2, 2, 2, 2, 2) // five of the same low digit
	sig := NewDigitPad().Evaluate("R_100", models.IndicatorState{}, digitPrices(digits...))
	require.True(t, sig.IsActionable(), sig.Reason)
	assert.Equal(t, models.ContractDigitOver, sig.ContractType)
	assert.Equal(t, "4", sig.Barrier)
	assert.InDelta(t, 0.65, sig.Confidence, 1e-9)
}

func TestDigitPadBalancedTapeHasNoSignal(t *testing.T) {
	var digits []int
	for i := 0; i < 100; i++ {
		digits = append(digits, i%10)
	}
	sig := NewDigitPad().Evaluate("R_100", models.IndicatorState{}, digitPrices(digits...))
	assert.False(t, sig.IsActionable())
	assert.Zero(t, sig.Components["candidates"])
}

func TestDigitPadNeedsHistory(t *testing.T) {
	sig := NewDigitPad().Evaluate("R_100", models.IndicatorState{}, digitPrices(make([]int, 49)...))
	assert.False(t, sig.IsActionable())
}
