package lamparray

import (
	"fmt"
	"log/slog"
)

// Router maps HID feature reports to engine operations.
type Router struct {
	engine *Engine
	logger *slog.Logger
}

// NewRouter creates a router for e.
func NewRouter(e *Engine, logger *slog.Logger) *Router {
	return &Router{engine: e, logger: logger.With("component", "router")}
}

// Engine returns the engine the router dispatches to.
func (r *Router) Engine() *Engine {
	return r.engine
}

// HandleSet processes a SET_REPORT. report starts with the report ID;
// trailing padding after the body is ignored.
//
// Errors only describe malformed reports (unknown ID, truncated body). Valid
// reports the engine decides to drop are not errors.
func (r *Router) HandleSet(report []byte) error {
	if len(report) == 0 {
		return fmt.Errorf("set report: empty: %w", ErrShortReport)
	}
	id, body := report[0], report[1:]

	switch id {
	case ReportAttributesRequest:
		lampID, err := DecodeAttributesRequest(body)
		if err != nil {
			return err
		}
		r.engine.SetCursor(lampID)

	case ReportRangeUpdate:
		req, err := DecodeRangeUpdate(body)
		if err != nil {
			return err
		}
		out := r.engine.ApplyRange(req)
		r.logger.Debug("range update", "start", req.Start, "end", req.End,
			"result", out.Result, "written", out.Written, "flushed", out.Flushed)

	case ReportMultiUpdate:
		req, err := DecodeMultiUpdate(body)
		if err != nil {
			return err
		}
		out := r.engine.ApplyMulti(req)
		r.logger.Debug("multi update", "count", req.Count,
			"result", out.Result, "written", out.Written, "skipped", out.Skipped, "flushed", out.Flushed)

	case ReportControl:
		autonomous, err := DecodeControl(body)
		if err != nil {
			return err
		}
		r.engine.SetMode(autonomous)

	default:
		return fmt.Errorf("set report %s: %w", ReportName(id), ErrUnknownReport)
	}
	return nil
}

// HandleGet answers a GET_REPORT for id. The returned report includes the ID.
// Reading the attributes response advances the cursor.
func (r *Router) HandleGet(id uint8) ([]byte, error) {
	switch id {
	case ReportAttributes:
		return EncodeAttributes(r.engine.Attributes()), nil
	case ReportAttributesResponse:
		return EncodeAttributesResponse(r.engine.NextAttributes()), nil
	default:
		return nil, fmt.Errorf("get report %s: %w", ReportName(id), ErrUnknownReport)
	}
}
