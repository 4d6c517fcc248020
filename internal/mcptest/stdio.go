// Package mcptest provides a minimal MCP server speaking newline delimited JSON-RPC,
// run by tests as a child process of the test binary.
package mcptest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/viant/mcp-protocol/schema"
)

// HelperEnv marks the test binary invocation that should serve instead of testing.
const HelperEnv = "MCPRELAY_HELPER_PROCESS"

// ExitArg makes the server exit before reading any input.
const ExitArg = "exit"

// Command returns the command, argv and environment re-running the test binary as a
// server through the test function named helperTest; args follow a "--" separator.
func Command(helperTest string, args ...string) (string, []string, map[string]string) {
	argv := append([]string{"-test.run=^" + helperTest + "$", "--"}, args...)
	return os.Args[0], argv, map[string]string{HelperEnv: "1"}
}

// IsHelper reports whether the current process was started by Command.
func IsHelper() bool {
	return os.Getenv(HelperEnv) == "1"
}

// Args returns the arguments passed after the "--" separator.
func Args() []string {
	for i, arg := range os.Args {
		if arg == "--" {
			return os.Args[i+1:]
		}
	}
	return nil
}

type message struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Serve answers initialize, tools/list and tools/call until in ends. Tools:
// "argv" returns args as JSON, "env" returns the variable named by the "name"
// argument, "pid" returns the server process id, and "ping" pings the client and
// returns once it replies.
func Serve(in io.Reader, out io.Writer, args []string) error {
	if len(args) > 0 && args[0] == ExitArg {
		return errors.New("exit requested")
	}
	encoder := json.NewEncoder(out)
	reply := func(id json.RawMessage, result any) error {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return encoder.Encode(&message{Jsonrpc: "2.0", Id: id, Result: data})
	}
	text := func(value string) any {
		return map[string]any{"content": []any{map[string]any{"type": "text", "text": value}}}
	}
	pings := map[string]json.RawMessage{}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sequence := 0
	for scanner.Scan() {
		msg := &message{}
		if err := json.Unmarshal(scanner.Bytes(), msg); err != nil {
			return err
		}
		if msg.Method == "" {
			if callID, ok := pings[string(msg.Id)]; ok {
				delete(pings, string(msg.Id))
				if err := reply(callID, text("pong")); err != nil {
					return err
				}
			}
			continue
		}
		if len(msg.Id) == 0 {
			continue
		}
		var err error
		switch msg.Method {
		case schema.MethodInitialize:
			err = reply(msg.Id, map[string]any{
				"protocolVersion": "2025-03-26",
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "helper", "version": "1.0"},
			})
		case schema.MethodToolsList:
			tools := []any{}
			for _, name := range []string{"argv", "env", "pid", "ping"} {
				tools = append(tools, map[string]any{"name": name, "inputSchema": map[string]any{"type": "object"}})
			}
			err = reply(msg.Id, map[string]any{"tools": tools})
		case schema.MethodToolsCall:
			params := &struct {
				Name      string            `json:"name"`
				Arguments map[string]string `json:"arguments"`
			}{}
			if err = json.Unmarshal(msg.Params, params); err != nil {
				return err
			}
			switch params.Name {
			case "argv":
				data, _ := json.Marshal(args)
				err = reply(msg.Id, text(string(data)))
			case "pid":
				err = reply(msg.Id, text(strconv.Itoa(os.Getpid())))
			case "env":
				err = reply(msg.Id, text(os.Getenv(params.Arguments["name"])))
			case "ping":
				sequence++
				id := json.RawMessage(fmt.Sprintf(`"helper-%d"`, sequence))
				pings[string(id)] = msg.Id
				err = encoder.Encode(&message{Jsonrpc: "2.0", Id: id, Method: schema.MethodPing})
			default:
				err = encoder.Encode(&message{Jsonrpc: "2.0", Id: msg.Id, Error: json.RawMessage(`{"code":-32602,"message":"unknown tool"}`)})
			}
		default:
			err = reply(msg.Id, map[string]any{})
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}
