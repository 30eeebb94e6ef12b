package lamparray

import "log/slog"

// Result classifies what an update request did.
type Result uint8

const (
	Applied Result = iota
	IgnoredAutonomous
	RejectedBounds
	RejectedCount
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case IgnoredAutonomous:
		return "ignored_autonomous"
	case RejectedBounds:
		return "rejected_bounds"
	case RejectedCount:
		return "rejected_count"
	default:
		return "unknown"
	}
}

// Outcome describes the effect of an update request. It never reaches the
// host, the protocol has no error channel.
type Outcome struct {
	Result  Result
	Written int
	Skipped int
	Flushed bool
}

// Engine holds the LampArray protocol state of one device: the attribute
// cursor and the autonomous mode flag.
//
// Engine is not safe for concurrent use. Reports are processed one at a
// time, to completion, by a single transport goroutine.
type Engine struct {
	model   AttributeModel
	backing BackingStore
	logger  *slog.Logger

	attrs      DeviceAttributes
	cursor     uint16
	autonomous bool
}

// New creates an engine in autonomous mode with the cursor at lamp 0.
// A nil backing store is replaced by NopBacking.
func New(model AttributeModel, backing BackingStore, logger *slog.Logger) *Engine {
	if backing == nil {
		backing = NopBacking{}
	}
	return &Engine{
		model:      model,
		backing:    backing,
		logger:     logger.With("component", "lamparray"),
		attrs:      model.DeviceAttributes(),
		autonomous: true,
	}
}

// Attributes returns the LampArrayAttributesReport content.
func (e *Engine) Attributes() DeviceAttributes {
	return e.attrs
}

// SetCursor sets the lamp returned by the next NextAttributes call
// (LampAttributesRequestReport). Out of range ids are accepted here and
// wrapped on the next read.
func (e *Engine) SetCursor(id uint16) {
	e.cursor = id
}

// Cursor returns the lamp id NextAttributes will report.
func (e *Engine) Cursor() uint16 {
	return e.cursor
}

// NextAttributes returns the attributes of the lamp at the cursor and
// advances the cursor, wrapping to 0 after the last lamp
// (26.8.1 LampAttributesRequestReport auto increment).
func (e *Engine) NextAttributes() LampAttributes {
	count := e.attrs.LampCount
	if count == 0 {
		e.cursor = 0
		return LampAttributes{}
	}
	if e.cursor >= count {
		e.cursor = 0
	}

	attrs := e.model.LampAttributes(e.cursor)

	e.cursor++
	if e.cursor >= count {
		e.cursor = 0
	}
	return attrs
}

// SetMode handles the LampArrayControlReport. Leaving autonomous mode enables
// host writes on the backing store; returning to it disables them.
func (e *Engine) SetMode(autonomous bool) {
	e.autonomous = autonomous
	e.backing.Enable(!autonomous)
	e.logger.Debug("mode set", "autonomous", autonomous)
}

// IsAutonomous reports whether host updates are currently ignored.
func (e *Engine) IsAutonomous() bool {
	return e.autonomous
}

// ApplyRange handles a LampRangeUpdateReport. A range touching any lamp
// outside the array is dropped entirely. Start > End writes nothing.
func (e *Engine) ApplyRange(req RangeUpdate) Outcome {
	// Any Lamp*UpdateReports can be ignored - 26.10.1 AutonomousMode
	if e.autonomous {
		return Outcome{Result: IgnoredAutonomous}
	}

	count := e.attrs.LampCount
	if req.Start >= count || req.End >= count {
		e.logger.Debug("range update out of bounds", "start", req.Start, "end", req.End, "lamps", count)
		return Outcome{Result: RejectedBounds}
	}

	out := Outcome{Result: Applied}
	for index := uint32(req.Start); index <= uint32(req.End); index++ {
		e.backing.SetItem(uint16(index), req.Color)
		out.Written++
	}

	// Batch update complete - 26.11 Updating Lamp State
	if req.Flags.Complete() {
		e.backing.Flush()
		out.Flushed = true
	}
	return out
}

// ApplyMulti handles a LampMultiUpdateReport. Slots with an out of range id
// are skipped individually; a count above MaxMultiUpdateLamps drops the
// whole report.
func (e *Engine) ApplyMulti(req MultiUpdate) Outcome {
	if e.autonomous {
		return Outcome{Result: IgnoredAutonomous}
	}

	if req.Count > MaxMultiUpdateLamps {
		e.logger.Debug("multi update count too large", "count", req.Count)
		return Outcome{Result: RejectedCount}
	}

	count := e.attrs.LampCount
	out := Outcome{Result: Applied}
	for i := 0; i < int(req.Count); i++ {
		if req.IDs[i] >= count {
			out.Skipped++
			continue
		}
		e.backing.SetItem(req.IDs[i], req.Colors[i])
		out.Written++
	}
	if out.Skipped > 0 {
		e.logger.Debug("multi update skipped ids", "skipped", out.Skipped, "lamps", count)
	}

	if req.Flags.Complete() {
		e.backing.Flush()
		out.Flushed = true
	}
	return out
}
