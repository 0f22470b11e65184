package indicators

import "math"

// ema is seeded with the SMA of its first period samples.
type ema struct {
	period int
	k      float64
	n      int
	sum    float64
	value  float64
}

func newEMA(period int) ema {
	return ema{period: period, k: 2 / float64(period+1)}
}

func (e *ema) ready() bool { return e.n >= e.period }

func (e *ema) update(x float64) float64 {
	if e.n < e.period {
		e.n++
		e.sum += x
		e.value = e.sum / float64(e.n)
		return e.value
	}
	e.value = x*e.k + e.value*(1-e.k)
	return e.value
}

// wilder averages the first period samples, then smooths with
// avg' = (avg*(period-1) + x) / period.
type wilder struct {
	period int
	n      int
	sum    float64
	value  float64
}

func newWilder(period int) wilder { return wilder{period: period} }

func (w *wilder) ready() bool { return w.n >= w.period }

func (w *wilder) update(x float64) float64 {
	if w.n < w.period {
		w.n++
		w.sum += x
		w.value = w.sum / float64(w.n)
		return w.value
	}
	w.value = (w.value*float64(w.period-1) + x) / float64(w.period)
	return w.value
}

// resyncEvery bounds floating point drift of the running sums.
const resyncEvery = 4096

// window is a fixed ring with running sum and sum of squares.
type window struct {
	buf    []float64
	next   int
	size   int
	sum    float64
	sumSq  float64
	pushes int
}

func newWindow(n int) *window {
	return &window{buf: make([]float64, n)}
}

func (w *window) full() bool { return w.size == len(w.buf) }

func (w *window) push(x float64) {
	if w.full() {
		old := w.buf[w.next]
		w.sum -= old
		w.sumSq -= old * old
	} else {
		w.size++
	}
	w.buf[w.next] = x
	w.next = (w.next + 1) % len(w.buf)
	w.sum += x
	w.sumSq += x * x

	w.pushes++
	if w.pushes%resyncEvery == 0 {
		w.sum, w.sumSq = 0, 0
		for _, v := range w.buf[:w.size] {
			w.sum += v
			w.sumSq += v * v
		}
	}
}

func (w *window) mean() float64 {
	if w.size == 0 {
		return 0
	}
	return w.sum / float64(w.size)
}

func (w *window) std() float64 {
	if w.size == 0 {
		return 0
	}
	m := w.mean()
	v := w.sumSq/float64(w.size) - m*m
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

func (w *window) max() float64 {
	out := math.Inf(-1)
	for _, v := range w.buf[:w.size] {
		out = math.Max(out, v)
	}
	return out
}

func (w *window) min() float64 {
	out := math.Inf(1)
	for _, v := range w.buf[:w.size] {
		out = math.Min(out, v)
	}
	return out
}
