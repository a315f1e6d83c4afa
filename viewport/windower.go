// Package viewport computes which rows and columns of a virtualized list
// view should be rendered or preloaded. It is pure computation; callers feed
// it scroll positions and item sizes and render what it returns.
package viewport

import "time"

// Range is an inclusive span of item indexes. A negative Start marks the
// empty range.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// EmptyRange is the range containing no items.
var EmptyRange = Range{Start: -1, End: -1}

// Empty reports whether the range contains no items.
func (r Range) Empty() bool {
	return r.Start < 0 || r.End < r.Start
}

// Len returns the number of items in the range.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether index i falls inside the range.
func (r Range) Contains(i int) bool {
	return !r.Empty() && i >= r.Start && i <= r.End
}

// Window pairs the items intersecting the viewport with the padded range
// that should actually be rendered.
type Window struct {
	Visible  Range `json:"visible"`
	Buffered Range `json:"buffered"`
}

// Config holds the configuration for a Windower. Row and column axes use the
// same machinery with different numbers; see RowDefaults and ColumnDefaults.
type Config struct {
	// BufferItems pads the visible range on both sides.
	BufferItems int

	// PreloadThreshold is the buffer usage fraction above which the next
	// window should be fetched.
	PreloadThreshold float64

	// Lookahead is how far ahead scroll projection extrapolates.
	Lookahead time.Duration

	// MediumVelocity and HighVelocity split scroll speed, in pixels per
	// second, into the three urgency bands.
	MediumVelocity float64
	HighVelocity   float64

	// SampleWindow is how many trailing scroll samples telemetry considers.
	SampleWindow int

	// DefaultItemSize substitutes for missing or non-positive item sizes.
	DefaultItemSize float64
}

// RowDefaults returns the Config used for the row axis.
func RowDefaults() Config {
	return Config{
		BufferItems:      50,
		PreloadThreshold: 0.8,
		Lookahead:        2 * time.Second,
		MediumVelocity:   500,
		HighVelocity:     1000,
		SampleWindow:     5,
		DefaultItemSize:  40,
	}
}

// ColumnDefaults returns the Config used for the column axis.
func ColumnDefaults() Config {
	return Config{
		BufferItems:      5,
		PreloadThreshold: 0.8,
		Lookahead:        2 * time.Second,
		MediumVelocity:   200,
		HighVelocity:     500,
		SampleWindow:     5,
		DefaultItemSize:  150,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.BufferItems < 0 {
		return &ConfigError{Field: "BufferItems", Message: "must be non-negative"}
	}
	if c.PreloadThreshold <= 0 || c.PreloadThreshold > 1 {
		return &ConfigError{Field: "PreloadThreshold", Message: "must be in (0, 1]"}
	}
	if c.Lookahead <= 0 {
		return &ConfigError{Field: "Lookahead", Message: "must be greater than 0"}
	}
	if c.MediumVelocity <= 0 || c.HighVelocity <= c.MediumVelocity {
		return &ConfigError{Field: "HighVelocity", Message: "velocity bands must be positive and ordered"}
	}
	if c.SampleWindow < 2 {
		return &ConfigError{Field: "SampleWindow", Message: "must be at least 2"}
	}
	if c.DefaultItemSize <= 0 {
		return &ConfigError{Field: "DefaultItemSize", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Windower computes render windows for one axis of a virtualized view.
type Windower struct {
	cfg Config
}

// New creates a Windower from cfg.
func New(cfg Config) (*Windower, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Windower{cfg: cfg}, nil
}

// Config returns the Windower's configuration.
func (w *Windower) Config() Config {
	return w.cfg
}

// ComputeWindow returns the visible and buffered ranges for a viewport
// spanning [viewportStart, viewportEnd) in pixels over items with the given
// sizes. An item is visible when any part of it crosses the viewport. The
// buffered range pads the visible one by BufferItems, clamped to the item
// count.
func (w *Windower) ComputeWindow(viewportStart, viewportEnd float64, sizes []float64) Window {
	if len(sizes) == 0 || viewportEnd <= viewportStart {
		return Window{Visible: EmptyRange, Buffered: EmptyRange}
	}

	visible := EmptyRange
	offset := 0.0
	for i, size := range sizes {
		size = w.itemSize(size)
		start, end := offset, offset+size
		offset = end

		if end > viewportStart && start < viewportEnd {
			if visible.Empty() {
				visible.Start = i
			}
			visible.End = i
		} else if !visible.Empty() {
			// Items are contiguous, so the first non-intersecting item after
			// a hit ends the visible run.
			break
		}
	}

	if visible.Empty() {
		return Window{Visible: EmptyRange, Buffered: EmptyRange}
	}

	buffered := Range{
		Start: max(0, visible.Start-w.cfg.BufferItems),
		End:   min(len(sizes)-1, visible.End+w.cfg.BufferItems),
	}
	return Window{Visible: visible, Buffered: buffered}
}

// BufferUsage reports how much of the buffer ahead of the scroll direction is
// already consumed, from 0 (full buffer ahead) to 1 (nothing left). With no
// direction the worse of the two sides is reported.
func (w *Windower) BufferUsage(win Window, dir Direction) float64 {
	if win.Visible.Empty() || w.cfg.BufferItems == 0 {
		return 0
	}

	ahead := func(d Direction) int {
		if d == DirectionBackward {
			return win.Visible.Start - win.Buffered.Start
		}
		return win.Buffered.End - win.Visible.End
	}

	remaining := 0
	switch dir {
	case DirectionForward, DirectionBackward:
		remaining = ahead(dir)
	default:
		remaining = min(ahead(DirectionForward), ahead(DirectionBackward))
	}

	usage := 1 - float64(remaining)/float64(w.cfg.BufferItems)
	return clamp01(usage)
}

// ShouldPreload reports whether the buffer usage warrants fetching the next
// window.
func (w *Windower) ShouldPreload(usage float64) bool {
	return usage >= w.cfg.PreloadThreshold
}

// RenderPlan carries the pixel geometry the renderer needs to place the
// buffered items.
type RenderPlan struct {
	// LeadingOffset is the pixel position of the first buffered item.
	LeadingOffset float64 `json:"leading_offset"`

	// Offsets holds the pixel position of each buffered item, in range
	// order.
	Offsets []float64 `json:"offsets"`

	// VisibleExtent and BufferedExtent are the pixel sizes of the visible
	// and buffered ranges.
	VisibleExtent  float64 `json:"visible_extent"`
	BufferedExtent float64 `json:"buffered_extent"`

	// TotalExtent is the pixel size of all items, for scrollbar sizing.
	TotalExtent float64 `json:"total_extent"`
}

// PlanRender computes the pixel geometry for win over items with the given
// sizes.
func (w *Windower) PlanRender(win Window, sizes []float64) RenderPlan {
	plan := RenderPlan{}

	offset := 0.0
	for i, size := range sizes {
		size = w.itemSize(size)
		if win.Buffered.Contains(i) {
			if len(plan.Offsets) == 0 {
				plan.LeadingOffset = offset
			}
			plan.Offsets = append(plan.Offsets, offset)
			plan.BufferedExtent += size
		}
		if win.Visible.Contains(i) {
			plan.VisibleExtent += size
		}
		offset += size
	}
	plan.TotalExtent = offset
	return plan
}

func (w *Windower) itemSize(size float64) float64 {
	if size <= 0 {
		return w.cfg.DefaultItemSize
	}
	return size
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
