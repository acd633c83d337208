package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Sternrassler/artsel/internal/server"
	"github.com/Sternrassler/artsel/internal/session"
	"github.com/Sternrassler/artsel/internal/testutil"
	"github.com/Sternrassler/artsel/pkg/client"
	"github.com/Sternrassler/artsel/pkg/selection"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate keeps the user's config and environment out of the command.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ARTSEL_CONFIG", "")
	t.Setenv("ARTSEL_LOG_LEVEL", "disabled")
	t.Setenv("ARTSEL_REDIS_ADDR", "")
	t.Setenv("ARTSEL_RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("ARTSEL_RETRY_INITIAL_BACKOFF", "1ms")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	isolate(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func selectJSON(t *testing.T, mock *testutil.MockArtworks, extra ...string) (selectResult, error) {
	t.Helper()
	args := append([]string{"select", "--base-url", mock.BaseURL(), "--output", "json"}, extra...)
	out, err := run(t, args...)

	var res selectResult
	if out != "" {
		require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	}
	return res, err
}

func ids(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, id)
	}
	return out
}

func TestSelect_AcrossPages(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()

	res, err := selectJSON(t, mock, "--count", "15")
	require.NoError(t, err)

	assert.Equal(t, 15, res.Requested)
	assert.Equal(t, ids(1, 15), res.Selected)
	assert.Equal(t, 2, res.PagesVisited)
	assert.Equal(t, 30, res.TotalCount)
	assert.Len(t, res.Records, 15)
	assert.Equal(t, 0, mock.GetPageRequests(3), "walk must stop once the target is met")
}

func TestSelect_TargetLargerThanDataset(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()

	res, err := selectJSON(t, mock, "--count", "50")
	require.NoError(t, err)

	assert.Equal(t, ids(1, 30), res.Selected)
	assert.Equal(t, 3, res.PagesVisited)
}

func TestSelect_StartPage(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()

	res, err := selectJSON(t, mock, "--count", "5", "--start-page", "2")
	require.NoError(t, err)

	assert.Equal(t, ids(13, 17), res.Selected)
	assert.Equal(t, 0, mock.GetPageRequests(1))
}

func TestSelect_Prefetch(t *testing.T) {
	mock := testutil.NewMockArtworks(60)
	defer mock.Close()

	res, err := selectJSON(t, mock, "--count", "25", "--prefetch", "3")
	require.NoError(t, err)

	assert.Equal(t, ids(1, 25), res.Selected)
	assert.Equal(t, 3, res.PagesVisited)
}

func TestSelect_PartialOnFetchError(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()
	mock.SetPageResponse(2, testutil.NewServerErrorResponse())

	res, err := selectJSON(t, mock, "--count", "20")
	require.Error(t, err)

	assert.Equal(t, client.ErrorClassServer, client.ClassOf(err))
	assert.Contains(t, err.Error(), "selected 12 of 20 rows")
	assert.Equal(t, ids(1, 12), res.Selected)
}

func TestSelect_FirstPageFails(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()
	mock.SetPageResponse(1, testutil.NewMalformedResponse())

	out, err := run(t, "select", "--base-url", mock.BaseURL(), "--count", "3")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, client.ErrorClassMalformed, client.ClassOf(err))
}

func TestSelect_YAML(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()

	out, err := run(t, "select", "--base-url", mock.BaseURL(), "--count", "3", "-o", "yaml")
	require.NoError(t, err)

	var res selectResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, []int{1, 2, 3}, res.Selected)
	assert.Equal(t, "Artwork 2", res.Records[1].Title)
}

func TestSelect_Table(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()

	out, err := run(t, "select", "--base-url", mock.BaseURL(), "--count", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Artwork 3")
	assert.Contains(t, out, "Selected: 3 rows (requested 3, 1 pages visited)")
}

func TestSelect_InvalidFlags(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "zero count", args: []string{"--count", "0"}, wantErr: selection.ErrInvalidTarget},
		{name: "negative count", args: []string{"--count", "-4"}, wantErr: selection.ErrInvalidTarget},
		{name: "missing count", args: []string{}},
		{name: "unknown output", args: []string{"--count", "3", "--output", "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"select", "--base-url", mock.BaseURL()}, tt.args...)
			_, err := run(t, args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
	assert.Zero(t, mock.GetRequestCount())
}

func TestRoot_InvalidConfig(t *testing.T) {
	_, err := run(t, "select", "--count", "1", "--config", "/nonexistent/artsel.yaml")
	require.Error(t, err)

	_, err = run(t, "select", "--count", "1", "--page-size", "500")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.page_size")
}

func TestTUI_RequiresTerminal(t *testing.T) {
	if isTerminal(os.Stdout) {
		t.Skip("stdout is a terminal")
	}

	_, err := run(t, "tui")
	assert.ErrorIs(t, err, errNoTerminal)
}

func TestRunServer_ServesAndShutsDown(t *testing.T) {
	mock := testutil.NewMockArtworks(30)
	defer mock.Close()

	cfg := client.DefaultConfig(nil, "artsel-test/1.0")
	cfg.BaseURL = mock.BaseURL()
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	store := session.NewStore(c, c.PageSize())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, server.New(ln.Addr().String(), store), ln, store, serveOptions{
			ShutdownTimeout: time.Second,
			SessionIdle:     time.Nanosecond,
			SweepInterval:   10 * time.Millisecond,
		}, zerolog.Nop())
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	store.Create()
	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond,
		"idle sessions should be swept")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = http.Get("http://" + ln.Addr().String() + "/health")
	assert.Error(t, err)
}

func TestRunServer_ListenerError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	store := session.NewStore(nil, 12)
	err = runServer(context.Background(), &http.Server{ReadHeaderTimeout: time.Second}, ln, store, serveOptions{
		ShutdownTimeout: time.Second,
	}, zerolog.Nop())
	require.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}
