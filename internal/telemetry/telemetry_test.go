package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_ExportsGlobalInstruments(t *testing.T) {
	// Created before the provider exists; must still be exported
	counter, err := otel.Meter("arbor.test").Int64Counter("arbor_test_widgets")
	require.NoError(t, err)

	p, err := Setup()
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	counter.Add(context.Background(), 3)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "arbor_test_widgets")
	assert.Contains(t, string(body), "go_goroutines")
}
