package mcprelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcprelay/peer"
	"github.com/viant/mcprelay/store"
	"github.com/viant/mcprelay/target"
)

const catalogAPI = `
openapi: 3.0.0
paths:
  /books/{isbn}:
    get:
      operationId: getBook
      parameters:
        - name: isbn
          in: path
          required: true
  /books:
    post:
      operationId: addBook
`

func newCatalogServer(t *testing.T) (*httptest.Server, string, int) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"path":"`+r.URL.Path+`"}`)
	}))
	t.Cleanup(server.Close)
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(serverURL.Port())
	require.NoError(t, err)
	return server, serverURL.Hostname(), port
}

func catalogTarget(host string, port int, filters target.Filters) target.Target {
	return target.Target{
		Name: "catalog",
		Spec: target.Spec{OpenAPI: &target.OpenAPI{
			Host:   host,
			Port:   port,
			Schema: &target.SchemaSource{Inline: catalogAPI},
		}},
		Filters: filters,
	}
}

func TestRelay_ToolsAndCall(t *testing.T) {
	_, host, port := newCatalogServer(t)
	memory := store.NewMemory()
	defer memory.Close()
	require.NoError(t, memory.Upsert("public", catalogTarget(host, port, target.Filters{{Type: target.FilterAllow, Pattern: "get*"}})))

	ctx := context.Background()
	relay, err := New(ctx, &Options{Config: "unused"}, WithStore(memory))
	require.NoError(t, err)
	defer relay.Close()

	tools, err := relay.Tools(ctx, "public", peer.Detached{})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "catalog", tools[0].Target)
	assert.Equal(t, "getBook", tools[0].Tool.Name)

	result, err := relay.Call(ctx, "public", peer.Detached{}, "catalog", &schema.CallToolRequestParams{Name: "getBook", Arguments: map[string]interface{}{"isbn": "123"}})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, schema.TextContent{Type: "text", Text: `{"path":"/books/123"}`}, result.Content[0])

	_, err = relay.Call(ctx, "public", peer.Detached{}, "missing", &schema.CallToolRequestParams{Name: "getBook"})
	assert.Error(t, err)
}

func TestRelay_EvictsUpdatedTargets(t *testing.T) {
	_, host, port := newCatalogServer(t)
	memory := store.NewMemory()
	defer memory.Close()
	require.NoError(t, memory.Upsert("public", catalogTarget(host, port, nil)))

	ctx := context.Background()
	relay, err := New(ctx, &Options{Config: "unused"}, WithStore(memory))
	require.NoError(t, err)
	defer relay.Close()

	tools, err := relay.Tools(ctx, "public", peer.Detached{})
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	require.NoError(t, memory.Upsert("public", catalogTarget(host, port, target.Filters{{Type: target.FilterDeny, Pattern: "add*"}})))
	assert.Eventually(t, func() bool {
		tools, err := relay.Tools(ctx, "public", peer.Detached{})
		return err == nil && len(tools) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRelay_EvictsStaleUpstreamsWithoutChangeEvents(t *testing.T) {
	_, host, port := newCatalogServer(t)
	memory := store.NewMemory()
	defer memory.Close()
	require.NoError(t, memory.Upsert("public", catalogTarget(host, port, nil)))

	ctx := context.Background()
	relay, err := New(ctx, &Options{Config: "unused"}, WithStore(memory))
	require.NoError(t, err)
	defer relay.Close()

	tools, err := relay.Tools(ctx, "public", peer.Detached{})
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	// stop consuming change events so that only the generation reveals the update
	relay.cancel()
	<-relay.done

	require.NoError(t, memory.Upsert("public", catalogTarget(host, port, target.Filters{{Type: target.FilterDeny, Pattern: "add*"}})))
	tools, err = relay.Tools(ctx, "public", peer.Detached{})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "getBook", tools[0].Tool.Name)

	require.True(t, memory.Remove("public", "catalog"))
	_, err = relay.Call(ctx, "public", peer.Detached{}, "catalog", &schema.CallToolRequestParams{Name: "getBook", Arguments: map[string]interface{}{"isbn": "1"}})
	assert.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		options     Options
		expectErr   bool
	}{
		{description: "list tools", options: Options{Config: "relay.yaml"}},
		{description: "call tool", options: Options{Config: "relay.yaml", Target: "a", Call: "b", Args: `{"x":1}`}},
		{description: "missing config", options: Options{}, expectErr: true},
		{description: "call without target", options: Options{Config: "relay.yaml", Call: "b"}, expectErr: true},
		{description: "args without call", options: Options{Config: "relay.yaml", Args: "{}"}, expectErr: true},
	}
	for _, testCase := range testCases {
		err := testCase.options.Validate()
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		assert.NoError(t, err, testCase.description)
	}
}

func TestOptions_Arguments(t *testing.T) {
	args, err := (&Options{Args: `{"isbn":"1","count":2}`}).Arguments()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"isbn": "1", "count": 2.0}, args)
	_, err = (&Options{Args: `[1]`}).Arguments()
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	_, host, port := newCatalogServer(t)
	config := fmt.Sprintf(`
listeners:
  - name: default
    targets:
      - name: catalog
        spec:
          openapi:
            host: %v
            port: %v
            schema:
              inline: |
%v
`, host, port, indent(catalogAPI, "                "))
	location := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(location, []byte(config), 0o644))
	ctx := context.Background()

	stdout := &bytes.Buffer{}
	require.NoError(t, Run(ctx, []string{"--config", location}, stdout, io.Discard))
	var tools []Tool
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &tools))
	assert.Len(t, tools, 2)

	stdout.Reset()
	require.NoError(t, Run(ctx, []string{"-c", location, "-t", "catalog", "-x", "getBook", "-a", `{"isbn":"9"}`}, stdout, io.Discard))
	result := &schema.CallToolResult{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, map[string]interface{}{"type": "text", "text": `{"path":"/books/9"}`}, result.Content[0])

	assert.Error(t, Run(ctx, []string{"-c", location, "-x", "getBook"}, io.Discard, io.Discard))
}

func indent(text, prefix string) string {
	var ret bytes.Buffer
	for _, line := range bytes.Split([]byte(text), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		ret.WriteString(prefix)
		ret.Write(line)
		ret.WriteString("\n")
	}
	return ret.String()
}
