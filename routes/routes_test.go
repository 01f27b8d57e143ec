package routes

import (
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/config"
	"mailpulse/worker"
)

// newTestApp wires the full route table without a database. None of the
// requests below reach a handler that touches storage.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	config.AppConfig.RateLimitControl = 30

	logger := log.New(io.Discard, "", 0)
	registry := worker.NewRegistry(nil)
	dialer := worker.NewIMAPDialer(time.Second, logger)

	prospects := worker.NewProspectStore(nil)
	threads := worker.NewThreadStore(nil)
	canceller := worker.NewFollowUpCanceller(prospects, worker.NewScheduler(nil), logger)
	processor := worker.NewProcessor(prospects, threads, worker.NewHeuristicClassifier(), canceller, nil, time.Hour, logger)
	scanner := worker.NewScanner(dialer, processor, worker.NewScanStore(nil), worker.NewAccountStore(nil), logger)
	supervisor := worker.NewSupervisor(registry, scanner, config.MonitorConfig{}, logger)

	app := fiber.New()
	SetupRoutes(app, nil, supervisor, registry, dialer)
	return app
}

func TestRootAndHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "root endpoint must not fall through to the 404 handler")

	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestUnknownRouteReturns404(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestMonitorStatusEndpoint(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/monitor/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
