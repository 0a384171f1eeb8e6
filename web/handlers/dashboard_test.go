package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ds "github.com/starfederation/datastar-go/datastar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuview/cuinfo"
	"cuview/ecus"
	"cuview/events"
)

const patchEvent = "event: datastar-patch-elements"

var scenario = cuinfo.Identification{SystemType: "ECU-A/T", RomID: "4B12", MemoryBlocks: 3, Switches: 12}

func newTestDashboard(t *testing.T) (*Dashboard, *events.EventHub) {
	t.Helper()
	hub := events.NewHub()
	dashboard, err := NewDashboard(hub, ecus.Transmission)
	require.NoError(t, err)
	return dashboard, hub
}

func tick(t *testing.T, dashboard *Dashboard, connectionID string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	sse := ds.NewSSE(rec, httptest.NewRequest(http.MethodGet, "/tick", nil))
	require.NoError(t, dashboard.OnTick(sse, connectionID))
	return rec.Body.String()
}

func TestIndexRendersSimplePanel(t *testing.T) {
	dashboard, _ := newTestDashboard(t)
	dashboard.apply(&events.Event{Identification: scenario})
	server := NewServer(dashboard)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="cu-info-simple"`)
	assert.Contains(t, body, "ECU-A/T")
	assert.Contains(t, body, ">4B12<")
	assert.Contains(t, body, ">3<")
	assert.Contains(t, body, ">12<")
	assert.Contains(t, body, "Transmission")
	assert.Contains(t, rec.Header().Get("Set-Cookie"), clientIDCookieName+"=")
}

func TestIndexUnknownPath(t *testing.T) {
	dashboard, _ := newTestDashboard(t)

	rec := httptest.NewRecorder()
	NewServer(dashboard).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFiles(t *testing.T) {
	dashboard, _ := newTestDashboard(t)

	rec := httptest.NewRecorder()
	NewServer(dashboard).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/dashboard.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOnTickPatchesOncePerRevision(t *testing.T) {
	dashboard, _ := newTestDashboard(t)

	assert.NotContains(t, tick(t, dashboard, "a"), patchEvent)

	dashboard.apply(&events.Event{Identification: scenario})
	first := tick(t, dashboard, "a")
	assert.Contains(t, first, patchEvent)
	assert.Contains(t, first, "cu-info-simple")
	assert.Contains(t, first, "ECU-A/T")
	assert.NotContains(t, tick(t, dashboard, "a"), patchEvent)

	// another page still needs the patch
	assert.Contains(t, tick(t, dashboard, "b"), patchEvent)

	// repeating the same identification changes nothing
	dashboard.apply(&events.Event{Identification: scenario})
	assert.NotContains(t, tick(t, dashboard, "a"), patchEvent)

	dashboard.apply(&events.Event{Identification: cuinfo.Identification{SystemType: "ECU-A/T", RomID: "4B13", MemoryBlocks: 3, Switches: 12}})
	assert.Contains(t, tick(t, dashboard, "a"), "4B13")
}

func TestTickHandlerStreamsAndForgets(t *testing.T) {
	dashboard, _ := newTestDashboard(t)
	dashboard.apply(&events.Event{Identification: scenario})
	server := NewServer(dashboard)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tick", nil).WithContext(ctx))

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, patchEvent))
	assert.Contains(t, body, "4B12")
	assert.Empty(t, dashboard.lastSeen)
}

func TestCUInfoHandler(t *testing.T) {
	dashboard, hub := newTestDashboard(t)
	handler := NewServer(dashboard).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cu-info", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	hub.Broadcast(&events.Event{Identification: scenario, ECUName: "ECU-A/T", Timestamp: time.Unix(0, 0)})

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cu-info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var record events.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "ECU-A/T", record.SystemType)
	assert.Equal(t, "4B12", record.RomID)
	assert.Equal(t, uint(3), record.MemoryBlocks)
	assert.Equal(t, uint(12), record.Switches)
}

func TestDashboardRunAppliesEvents(t *testing.T) {
	dashboard, hub := newTestDashboard(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dashboard.Run(ctx)
		close(done)
	}()

	hub.Broadcast(&events.Event{Identification: scenario})

	assert.Eventually(t, func() bool {
		return dashboard.Identification() == scenario
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
