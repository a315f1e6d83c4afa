package viewport

import "math"

// Direction is the sign of recent scroll movement.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		return "none"
	}
}

// Urgency bands scroll speed for prioritizing fetches: a fast fling needs
// coarse data now, a slow drift can wait for complete rows.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
)

// String implements fmt.Stringer.
func (u Urgency) String() string {
	switch u {
	case UrgencyHigh:
		return "high"
	case UrgencyMedium:
		return "medium"
	default:
		return "low"
	}
}

// Sample is one observed scroll position.
type Sample struct {
	Position float64 `json:"position"`
	AtMillis int64   `json:"at"`
}

// Metrics summarizes recent scroll behavior.
type Metrics struct {
	// Velocity is the distance traveled per second in pixels, summed over
	// every step of the window so oscillation counts as movement.
	Velocity float64 `json:"velocity"`

	// Direction follows the sign of the most recent movement.
	Direction Direction `json:"direction"`

	// Reversals counts direction changes inside the sample window.
	Reversals int `json:"reversals"`

	// Stability falls from 1 toward 0 as the user dithers:
	// 1 - reversals/samples.
	Stability float64 `json:"stability"`
}

// Analyze computes Metrics over the trailing SampleWindow samples. Fewer than
// two samples yield zero metrics.
func (w *Windower) Analyze(samples []Sample) Metrics {
	if len(samples) > w.cfg.SampleWindow {
		samples = samples[len(samples)-w.cfg.SampleWindow:]
	}
	if len(samples) < 2 {
		return Metrics{}
	}

	elapsed := float64(samples[len(samples)-1].AtMillis-samples[0].AtMillis) / 1000
	if elapsed <= 0 {
		return Metrics{}
	}

	var m Metrics
	traveled := 0.0
	prevSign := 0
	for i := 1; i < len(samples); i++ {
		delta := samples[i].Position - samples[i-1].Position
		traveled += math.Abs(delta)
		if delta == 0 {
			continue
		}
		sign := 1
		if delta < 0 {
			sign = -1
		}
		if prevSign != 0 && sign != prevSign {
			m.Reversals++
		}
		prevSign = sign
	}
	m.Velocity = traveled / elapsed

	lastDelta := samples[len(samples)-1].Position - samples[len(samples)-2].Position
	switch {
	case lastDelta > 0:
		m.Direction = DirectionForward
	case lastDelta < 0:
		m.Direction = DirectionBackward
	}

	m.Stability = math.Max(0, 1-float64(m.Reversals)/float64(len(samples)))
	return m
}

// Urgency bands the velocity using the configured thresholds.
func (w *Windower) Urgency(velocity float64) Urgency {
	switch {
	case velocity >= w.cfg.HighVelocity:
		return UrgencyHigh
	case velocity >= w.cfg.MediumVelocity:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// PredictNextRange projects where the viewport will be after the configured
// lookahead, given recent samples and the viewport's pixel extent. It returns
// the item range at the projected position, or the empty range when the
// scroll is stationary.
func (w *Windower) PredictNextRange(samples []Sample, viewportExtent float64, sizes []float64) Range {
	m := w.Analyze(samples)
	if m.Direction == DirectionNone || m.Velocity == 0 {
		return EmptyRange
	}

	displacement := m.Velocity * w.cfg.Lookahead.Seconds()
	if m.Direction == DirectionBackward {
		displacement = -displacement
	}

	start := samples[len(samples)-1].Position + displacement
	total := w.totalExtent(sizes)
	start = math.Max(0, math.Min(start, total-viewportExtent))

	win := w.ComputeWindow(start, start+viewportExtent, sizes)
	return win.Visible
}

func (w *Windower) totalExtent(sizes []float64) float64 {
	total := 0.0
	for _, size := range sizes {
		total += w.itemSize(size)
	}
	return total
}

// UniformSizes returns n copies of size, for fixed-height rows.
func UniformSizes(n int, size float64) []float64 {
	sizes := make([]float64, n)
	for i := range sizes {
		sizes[i] = size
	}
	return sizes
}
