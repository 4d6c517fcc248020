package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/viant/mcprelay/target"
)

func stdioTarget(name, command string) target.Target {
	return target.Target{Name: name, Spec: target.Spec{Stdio: &target.Stdio{Command: command}}}
}

func names(entries []Entry) []string {
	var ret []string
	for _, entry := range entries {
		ret = append(ret, entry.Target.Name)
	}
	return ret
}

func TestMemory_Upsert(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Upsert("l1", stdioTarget("b", "one")))
	require.NoError(t, store.Upsert("l1", stdioTarget("a", "one")))
	assert.Equal(t, []string{"b", "a"}, names(store.Targets("l1")))
	assert.Empty(t, store.Targets("l2"))

	first, ok := store.Get("l1", "b")
	require.True(t, ok)
	assert.NotEmpty(t, first.ID)

	require.NoError(t, store.Upsert("l1", stdioTarget("b", "one")))
	same, _ := store.Get("l1", "b")
	assert.Equal(t, first.ID, same.ID)
	assert.NoError(t, first.Generation.Err())

	require.NoError(t, store.Upsert("l1", stdioTarget("b", "two")))
	updated, _ := store.Get("l1", "b")
	assert.NotEqual(t, first.ID, updated.ID)
	assert.ErrorIs(t, first.Generation.Err(), context.Canceled)
	assert.Equal(t, []string{"b", "a"}, names(store.Targets("l1")))

	assert.Error(t, store.Upsert("l1", target.Target{Name: "invalid"}))
}

func TestMemory_Remove(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Upsert("l1", stdioTarget("a", "one")))
	entry, _ := store.Get("l1", "a")
	assert.True(t, store.Remove("l1", "a"))
	assert.False(t, store.Remove("l1", "a"))
	assert.False(t, store.Remove("missing", "a"))
	assert.ErrorIs(t, entry.Generation.Err(), context.Canceled)
	_, ok := store.Get("l1", "a")
	assert.False(t, ok)
}

func TestMemory_Apply(t *testing.T) {
	store := NewMemory()
	changes, unsubscribe := store.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, store.Apply("l1", []target.Target{stdioTarget("a", "one"), stdioTarget("b", "one")}))
	kept, _ := store.Get("l1", "a")
	dropped, _ := store.Get("l1", "b")
	require.NoError(t, store.Apply("l1", []target.Target{stdioTarget("a", "one"), stdioTarget("c", "one")}))

	assert.Equal(t, []string{"a", "c"}, names(store.Targets("l1")))
	assert.NoError(t, kept.Generation.Err())
	assert.ErrorIs(t, dropped.Generation.Err(), context.Canceled)

	var received []Change
	for len(changes) > 0 {
		received = append(received, <-changes)
	}
	assert.Equal(t, []Change{
		{Listener: "l1", Name: "a", Type: ChangeAdded},
		{Listener: "l1", Name: "b", Type: ChangeAdded},
		{Listener: "l1", Name: "b", Type: ChangeRemoved},
		{Listener: "l1", Name: "c", Type: ChangeAdded},
	}, received)

	var testCases = []struct {
		description string
		targets     []target.Target
	}{
		{description: "duplicate names", targets: []target.Target{stdioTarget("a", "x"), stdioTarget("a", "y")}},
		{description: "invalid target", targets: []target.Target{{Name: "x"}}},
	}
	for _, testCase := range testCases {
		assert.Error(t, store.Apply("l1", testCase.targets), testCase.description)
		assert.Equal(t, []string{"a", "c"}, names(store.Targets("l1")), testCase.description)
	}
}

func TestMemory_Unsubscribe(t *testing.T) {
	store := NewMemory()
	changes, unsubscribe := store.Subscribe(1)
	unsubscribe()
	unsubscribe()
	require.NoError(t, store.Upsert("l1", stdioTarget("a", "one")))
	_, ok := <-changes
	assert.False(t, ok)
}

func TestMemory_Load(t *testing.T) {
	config := `
listeners:
  - name: public
    targets:
      - name: docs
        spec:
          sse:
            host: docs.internal
            port: 8080
      - name: petstore
        spec:
          openapi:
            host: petstore.example.com
            port: 443
            schema:
              url: https://petstore.example.com/openapi.json
        filters:
          - type: allow
            pattern: get*
`
	location := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(location, []byte(config), 0o644))

	store := NewMemory()
	defer store.Close()
	require.NoError(t, store.Load(context.Background(), afs.New(), location))
	assert.Equal(t, []string{"public"}, store.Listeners())
	assert.Equal(t, []string{"docs", "petstore"}, names(store.Targets("public")))
	petstore, ok := store.Get("public", "petstore")
	require.True(t, ok)
	kind, err := petstore.Target.Spec.Kind()
	require.NoError(t, err)
	assert.Equal(t, target.KindOpenAPI, kind)
	assert.True(t, petstore.Target.Filters.Allow("getPet"))

	assert.Error(t, store.Load(context.Background(), afs.New(), filepath.Join(t.TempDir(), "missing.yaml")))
}
