package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/pkg/table"
)

func TestComputeWaitSet(t *testing.T) {
	t.Parallel()

	options := map[string]any{
		"input":  "{load}.data",
		"inputs": []any{"{a}.data", "keep", "{b}.data.value"},
		"nested": map[string]any{"home": "{env}.FORGIVING_DATA_UNSET_FOR_TEST", "n": 1},
	}

	_, _, err := computeWaitSet(options, map[string]ContextResolver{"env": EnvResolver})
	require.ErrorIs(t, err, ErrUnresolvedReference)

	resolvers := map[string]ContextResolver{"env": func(path []string) (any, error) { return "/home/" + path[0], nil }}

	censored, waits, err := computeWaitSet(options, resolvers)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"inputs": []any{nil, "keep", nil},
		"nested": map[string]any{"home": "/home/FORGIVING_DATA_UNSET_FOR_TEST", "n": 1},
	}, censored)

	got := [][]string{}
	for _, w := range waits {
		got = append(got, w.SourcePath)
	}

	assert.Equal(t, [][]string{{"input"}, {"inputs", "0"}, {"inputs", "2"}}, got)
	assert.Equal(t, "{load}.data", options["input"], "options are left untouched")
}

func TestFutureWait(t *testing.T) {
	t.Parallel()

	f := newFuture()
	value := &table.Provenanced{ProvenanceKey: "x"}

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.settle(value, nil)
		f.settle(nil, assert.AnError)
	}()

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, value, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err = f.Wait(ctx)
	require.NoError(t, err, "a settled future wins over a done context")
	assert.Same(t, value, got)

	_, err = newFuture().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeepMerge(t *testing.T) {
	t.Parallel()

	low := map[string]any{"a": 1, "m": map[string]any{"x": 1, "y": 2}, "s": []any{1, 2}}
	high := map[string]any{"m": map[string]any{"y": 3}, "s": []any{9}, "n": nil}

	got := deepMerge(low, high)
	assert.Equal(t, map[string]any{"a": 1, "m": map[string]any{"x": 1, "y": 3}, "s": []any{9}}, got)

	got["m"].(map[string]any)["x"] = 10
	assert.Equal(t, 1, low["m"].(map[string]any)["x"])
}
