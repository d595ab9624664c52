package peer

import "context"

// BrowserControl is the peer-facing provider interface the multiplexer's
// built-in browser toolset would dispatch tool calls onto. The concrete
// DOM/JavaScript/screenshot implementation is an external collaborator;
// this interface exists so tests can fake it and so a real implementation
// has a fixed contract to satisfy.
type BrowserControl interface {
	Snapshot(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Type(ctx context.Context, text string) error
	Hover(ctx context.Context, selector string) error
	Press(ctx context.Context, key string) error
	Scroll(ctx context.Context, direction string, amount int) error
	GetText(ctx context.Context, selector string) (string, error)
	GetAttribute(ctx context.Context, selector, attr string) (string, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	GetURL(ctx context.Context) (string, error)
	GetTitle(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) (string, error)
	Wait(ctx context.Context, ms int) error
	Evaluate(ctx context.Context, script string) (any, error)
}

// BrowserExecutors adapts a BrowserControl implementation into the named
// ToolExecutor table the built-in tools/call handler dispatches through,
// one entry per operation in the peer-facing provider interface.
func BrowserExecutors(b BrowserControl) map[string]ToolExecutor {
	return map[string]ToolExecutor{
		"snapshot": func(ctx context.Context, _ map[string]any) (any, error) {
			return b.Snapshot(ctx)
		},
		"click": func(ctx context.Context, args map[string]any) (any, error) {
			return nil, b.Click(ctx, stringArg(args, "selector"))
		},
		"fill": func(ctx context.Context, args map[string]any) (any, error) {
			return nil, b.Fill(ctx, stringArg(args, "selector"), stringArg(args, "value"))
		},
		"type": func(ctx context.Context, args map[string]any) (any, error) {
			return nil, b.Type(ctx, stringArg(args, "text"))
		},
		"hover": func(ctx context.Context, args map[string]any) (any, error) {
			return nil, b.Hover(ctx, stringArg(args, "selector"))
		},
		"press": func(ctx context.Context, args map[string]any) (any, error) {
			return nil, b.Press(ctx, stringArg(args, "key"))
		},
		"scroll": func(ctx context.Context, args map[string]any) (any, error) {
			return nil, b.Scroll(ctx, stringArg(args, "direction"), intArg(args, "amount"))
		},
		"getText": func(ctx context.Context, args map[string]any) (any, error) {
			return b.GetText(ctx, stringArg(args, "selector"))
		},
		"getAttribute": func(ctx context.Context, args map[string]any) (any, error) {
			return b.GetAttribute(ctx, stringArg(args, "selector"), stringArg(args, "attr"))
		},
		"isVisible": func(ctx context.Context, args map[string]any) (any, error) {
			return b.IsVisible(ctx, stringArg(args, "selector"))
		},
		"getUrl": func(ctx context.Context, _ map[string]any) (any, error) {
			return b.GetURL(ctx)
		},
		"getTitle": func(ctx context.Context, _ map[string]any) (any, error) {
			return b.GetTitle(ctx)
		},
		"screenshot": func(ctx context.Context, _ map[string]any) (any, error) {
			return b.Screenshot(ctx)
		},
		"wait": func(ctx context.Context, args map[string]any) (any, error) {
			return nil, b.Wait(ctx, intArg(args, "ms"))
		},
		"evaluate": func(ctx context.Context, args map[string]any) (any, error) {
			return b.Evaluate(ctx, stringArg(args, "script"))
		},
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
