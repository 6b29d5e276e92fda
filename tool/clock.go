package tool

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// ClockToolName is the registry name of the clock tool.
const ClockToolName = "current_time"

// ClockOptions configure NewClockTool.
type ClockOptions struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location applied when the caller gives no timezone. Defaults to UTC.
	Location *time.Location
}

// ClockTool reports the current date and time. It is a pure computation
// tool with no external dependencies.
type ClockTool struct {
	opts ClockOptions
}

// NewClockTool creates the current_time tool.
func NewClockTool(optFns ...func(o *ClockOptions)) *ClockTool {
	opts := ClockOptions{Now: time.Now, Location: time.UTC}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ClockTool{opts: opts}
}

// Name implements Tool.
func (t *ClockTool) Name() string { return ClockToolName }

// Description implements Tool.
func (t *ClockTool) Description() string {
	return "Get the current date and time, optionally in a given IANA timezone such as Asia/Singapore."
}

// Parameters implements Tool.
func (t *ClockTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{"type": "string", "description": "IANA timezone name, defaults to UTC"},
		},
	}
}

// Call implements Tool. It returns the time in RFC 3339 together with the
// weekday, which models otherwise tend to get wrong.
func (t *ClockTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	loc := t.opts.Location

	if tz, _ := args["timezone"].(string); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &ToolError{Tool: ClockToolName, CallID: toolCtx.CallID(), Code: core.CodeValidation, Message: fmt.Sprintf("unknown timezone %q", tz), Err: err}
		}

		loc = l
	}

	now := t.opts.Now().In(loc)

	return map[string]any{
		"datetime": now.Format(time.RFC3339),
		"weekday":  now.Weekday().String(),
		"timezone": loc.String(),
	}, nil
}

var _ Tool = (*ClockTool)(nil)
