package confluence

import (
	"fmt"
	"math"
	"sync"
	"time"

	"BinPull/internal/domain/models"
)

// Component shares. They sum to 100.
const (
	shareMTF         = 20
	shareSlope       = 10
	shareADX         = 20
	shareVolume      = 20
	sharePriceAction = 20
	shareCooldown    = 10
)

const (
	volumeWindow = 20
	wickWindow   = 5
	wickRatio    = 0.4
)

// Config tunes the gate.
type Config struct {
	MinScore      float64
	MinConfidence float64
	Cooldown      time.Duration
}

type Option func(*Config)

func WithMinScore(v float64) Option      { return func(c *Config) { c.MinScore = v } }
func WithMinConfidence(v float64) Option { return func(c *Config) { c.MinConfidence = v } }
func WithCooldown(d time.Duration) Option {
	return func(c *Config) { c.Cooldown = d }
}

// Filters carries the market context a signal is scored against.
type Filters struct {
	State       models.IndicatorState // tick-level state of the symbol
	Higher      models.IndicatorState // higher-timeframe (M5) state
	HigherReady bool
	Recent      []float64
	Now         time.Time
}

// Gate scores signals out of 100 and decides whether they may trade.
type Gate struct {
	cfg Config

	mu   sync.Mutex
	last map[string]time.Time // symbol|direction -> last placed trade
}

func New(opts ...Option) *Gate {
	cfg := Config{MinScore: 50, MinConfidence: 0.50, Cooldown: 12 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	return &Gate{cfg: cfg, last: make(map[string]time.Time)}
}

// Score evaluates a signal without side effects. A signal inside the
// cooldown window scores zero on that component and is never tradeable;
// the clock starts only through Record.
func (g *Gate) Score(sig models.Signal, f Filters) models.ConfluenceResult {
	res := models.ConfluenceResult{Components: make(map[string]float64, 6)}
	if !sig.IsActionable() {
		res.Tier = models.TierWeak
		res.Reasons = []string{"no direction"}
		return res
	}
	if f.Now.IsZero() {
		f.Now = time.Now()
	}
	call := sig.Direction == models.DirectionCall

	add := func(name string, pts float64, why string) {
		res.Components[name] = pts
		res.Score += pts
		if why != "" {
			res.Reasons = append(res.Reasons, why)
		}
	}
	add("mtf", mtfScore(call, f), "")
	add("ema_slope", slopeScore(call, f.State), "")
	adx, adxWhy := adxScore(call, f.State)
	add("adx", adx, adxWhy)
	add("volume", volumeScore(f.Recent), "")
	pa, paWhy := priceActionScore(call, f.Recent)
	add("price_action", pa, paWhy)

	g.mu.Lock()
	t, ok := g.last[cooldownKey(sig)]
	g.mu.Unlock()
	if ok && f.Now.Sub(t) < g.cfg.Cooldown {
		res.Cooling = true
		add("cooldown", 0, fmt.Sprintf("cooldown %s left", (g.cfg.Cooldown-f.Now.Sub(t)).Round(time.Second)))
	} else {
		add("cooldown", shareCooldown, "")
	}

	res.Score = math.Max(0, math.Min(100, res.Score))
	res.Tier = TierFor(res.Score)
	res.Allowed = res.Score >= g.cfg.MinScore && sig.Confidence >= g.cfg.MinConfidence
	if !res.Allowed {
		res.Reasons = append(res.Reasons, fmt.Sprintf("score %.0f confidence %.2f", res.Score, sig.Confidence))
	}
	return res
}

// Record starts the cooldown for the signal's symbol and direction. Call it
// when an order is actually sent.
func (g *Gate) Record(sig models.Signal, at time.Time) {
	g.mu.Lock()
	g.last[cooldownKey(sig)] = at
	g.mu.Unlock()
}

func cooldownKey(sig models.Signal) string {
	return sig.Symbol + "|" + string(sig.Direction)
}

// Reset forgets cooldown history.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.last = make(map[string]time.Time)
	g.mu.Unlock()
}

// TierFor maps a score to its tier.
func TierFor(score float64) models.Tier {
	switch {
	case score >= 70:
		return models.TierStrong
	case score >= 50:
		return models.TierMedium
	default:
		return models.TierWeak
	}
}

func mtfScore(call bool, f Filters) float64 {
	if !f.HigherReady {
		return shareMTF / 2
	}
	h := f.Higher
	emaOK := (call && h.EMAFast > h.EMASlow) || (!call && h.EMAFast < h.EMASlow)
	rsiOK := (call && h.RSI > 40) || (!call && h.RSI < 60)
	switch {
	case emaOK && rsiOK:
		return shareMTF
	case emaOK || rsiOK:
		return shareMTF / 2
	default:
		return 0
	}
}

func slopeScore(call bool, st models.IndicatorState) float64 {
	slope := st.EMASlopePct()
	if !call {
		slope = -slope
	}
	switch {
	case slope >= 0.05:
		return shareSlope
	case slope >= 0.01:
		return shareSlope / 2
	default:
		return 0
	}
}

func adxScore(call bool, st models.IndicatorState) (float64, string) {
	diff := st.PlusDI - st.MinusDI
	if !call {
		diff = -diff
	}
	if diff < -15 {
		return 0, fmt.Sprintf("di conflict %.1f", -diff)
	}
	switch {
	case st.ADX >= 22 && diff > 0:
		return shareADX, ""
	case st.ADX >= 18:
		return 15, ""
	case st.ADX >= 12:
		return 10, ""
	default:
		return 0, fmt.Sprintf("adx %.1f too weak", st.ADX)
	}
}

// volumeScore uses absolute tick moves as a volume proxy.
func volumeScore(recent []float64) float64 {
	if len(recent) < volumeWindow+1 {
		return 10
	}
	w := recent[len(recent)-volumeWindow-1:]
	var total float64
	for i := 1; i < len(w); i++ {
		total += math.Abs(w[i] - w[i-1])
	}
	avg := total / volumeWindow
	if avg == 0 {
		return 10
	}
	ratio := math.Abs(w[len(w)-1]-w[len(w)-2]) / avg
	switch {
	case ratio > 1.5:
		return shareVolume
	case ratio >= 1.2:
		return 15
	case ratio >= 0.8:
		return 10
	case ratio >= 0.7:
		return 5
	default:
		return 0
	}
}

// priceActionScore folds the last ticks into one bar and reads its wicks.
func priceActionScore(call bool, recent []float64) (float64, string) {
	if len(recent) < wickWindow {
		return 15, ""
	}
	w := recent[len(recent)-wickWindow:]
	o, c := w[0], w[len(w)-1]
	high, low := o, o
	for _, p := range w {
		high = math.Max(high, p)
		low = math.Min(low, p)
	}
	rng := high - low
	if rng == 0 {
		return 15, ""
	}
	upper := (high - math.Max(o, c)) / rng
	lower := (math.Min(o, c) - low) / rng

	hammer := lower >= wickRatio && upper < wickRatio
	star := upper >= wickRatio && lower < wickRatio
	switch {
	case call && hammer, !call && star:
		return sharePriceAction, ""
	case call && star:
		return 0, "shooting star against call"
	case !call && hammer:
		return 0, "hammer against put"
	default:
		return 15, ""
	}
}
