package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"skupair/internal/sku"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sheetBody = "order_no,platform_sku,name1,name2\n" +
	"5261219-59178,J20-G-engraved-D17-whitebox,Xaviar,Suzi\n"

func newTestWatcher(t *testing.T, dir string, importTables bool) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, WatcherOptions{
		Date:         "0121",
		ImportTables: importTables,
		Debounce:     50 * time.Millisecond,
		NewGenerator: func() *sku.Generator {
			return sku.NewGenerator("", "", testMapping(), nil)
		},
	})
	require.NoError(t, err)
	return w
}

func TestWatcherProcessesDroppedSheet(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	input := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(input, []byte(sheetBody), 0644))

	require.Eventually(t, func() bool {
		return w.Processed() == 1
	}, 5*time.Second, 20*time.Millisecond)

	results, err := os.ReadFile(filepath.Join(dir, "orders_results.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(results), "Michael-J20-0121-Xaviar+Suzi")

	_, err = os.Stat(filepath.Join(dir, "orders_单个SKU.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "orders_组合SKU.csv"))
	assert.NoError(t, err)
}

func TestWatcherDebouncesRapidSaves(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	input := filepath.Join(dir, "orders.csv")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(input, []byte(sheetBody), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return w.Processed() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, w.Processed(), "rapid saves collapse into one run")
}

func TestWatcherIgnoresOutputsAndOtherSuffixes(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old_results.csv"), []byte(sheetBody), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old_单个SKU.csv"), []byte(sheetBody), 0644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, w.Processed())
}

func TestWatcherRunSweepsExistingSheets(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "backlog.csv")
	require.NoError(t, os.WriteFile(input, []byte(sheetBody), 0644))

	w := newTestWatcher(t, dir, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return w.Processed() == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done, "cancellation is a clean shutdown")

	_, err := os.Stat(filepath.Join(dir, "backlog_results.csv"))
	assert.NoError(t, err)
}

func TestIsInputSheet(t *testing.T) {
	assert.True(t, isInputSheet("/drop/orders.csv"))
	assert.True(t, isInputSheet("/drop/Orders.CSV"))
	assert.False(t, isInputSheet("/drop/orders.txt"))
	assert.False(t, isInputSheet("/drop/orders_results.csv"))
	assert.False(t, isInputSheet("/drop/orders_单个SKU.csv"))
	assert.False(t, isInputSheet("/drop/orders_组合SKU.csv"))
}
