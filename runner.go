package mcprelay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/jessevdk/go-flags"
	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcprelay/peer"
)

// Run parses args, lists the tools of the listener or calls one tool, and writes JSON to stdout.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		return err
	}
	if err := options.Validate(); err != nil {
		return err
	}
	logger := slog.Make(sloghuman.Sink(stderr)).Leveled(slog.LevelInfo)
	if options.Debug {
		logger = logger.Leveled(slog.LevelDebug)
	}
	relay, err := New(ctx, options, WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := relay.Close(); err != nil {
			logger.Warn(ctx, "failed to close relay", slog.Error(err))
		}
	}()
	var output any
	if options.Call != "" {
		arguments, err := options.Arguments()
		if err != nil {
			return err
		}
		params := &schema.CallToolRequestParams{Name: options.Call, Arguments: arguments}
		if output, err = relay.Call(ctx, options.Listener, peer.Detached{}, options.Target, params); err != nil {
			return fmt.Errorf("failed to call %v on %v: %w", options.Call, options.Target, err)
		}
	} else {
		tools, err := relay.Tools(ctx, options.Listener, peer.Detached{})
		if err != nil {
			return err
		}
		if options.Target != "" {
			var filtered []Tool
			for _, tool := range tools {
				if tool.Target == options.Target {
					filtered = append(filtered, tool)
				}
			}
			tools = filtered
		}
		output = tools
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}
