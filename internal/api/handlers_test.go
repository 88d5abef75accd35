package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mmdvm-dashboard/backend/internal/broadcast"
	"github.com/mmdvm-dashboard/backend/internal/config"
	"github.com/mmdvm-dashboard/backend/internal/lcdproc"
	"github.com/mmdvm-dashboard/backend/internal/livelog"
	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/state"
)

func testDeps(t *testing.T, display *lcdproc.Server) (*Handler, *state.Store) {
	t.Helper()

	dir := t.TempDir()
	iniPath := filepath.Join(dir, "MMDVM.ini")
	if err := os.WriteFile(iniPath, []byte("[General]\nCallsign=N0CALL\n\n[DMR]\nEnable=1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.IniPaths.MMDVM = iniPath
	cfg.IniPaths.DMRGateway = ""
	cfg.IniPaths.YSFGateway = ""
	cfg.IniPaths.P25Gateway = ""
	cfg.IniPaths.NXDNGateway = ""

	store := state.New()
	hub := broadcast.NewHub(store, time.Millisecond, nil)
	t.Cleanup(hub.Stop)

	live := livelog.NewViewer(10)
	live.AddLine("M: 2025-01-15 10:00:00.000 DMR, received voice header", "MMDVMHost")

	h := NewHandler(Dependencies{
		Store:   store,
		Hub:     hub,
		Live:    live,
		Overlay: config.NewManager(cfg, nil),
		Display: display,
		Config:  cfg,
		Version: "test",
	})
	return h, store
}

func doRequest(t *testing.T, h func(echo.Context) error, target string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func seedActivity(store *state.Store) {
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store.Apply(models.ModeChanged{Mode: "DMR", At: at})
	store.Apply(models.NetworkLinkChanged{Network: "DMR", Status: models.LinkConnected, Target: "BrandMeister", At: at})
	store.Apply(models.TransmissionStarted{Mode: "DMR", Slot: 2, Source: "N0CALL", Destination: "TG 91", At: at.Add(time.Second)})
	store.Apply(models.TransmissionEnded{Mode: "DMR", Slot: 2, Source: "N0CALL", At: at.Add(4 * time.Second)})
	store.Apply(models.TransmissionStarted{Mode: "DMR", Slot: 1, Source: "W1AW", Destination: "TG 3100", At: at.Add(5 * time.Second)})
}

func TestHandleHealth(t *testing.T) {
	h, _ := testDeps(t, nil)

	rec, err := doRequest(t, h.HandleHealth, "/api/health")
	if assert.NoError(t, err) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Contains(t, rec.Body.String(), `"version":"test"`)
	}
}

func TestHandleStatus(t *testing.T) {
	h, store := testDeps(t, nil)
	seedActivity(store)

	rec, err := doRequest(t, h.HandleStatus, "/api/status")
	if assert.NoError(t, err) {
		assert.Equal(t, http.StatusOK, rec.Code)

		var status models.SystemStatus
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "DMR", status.CurrentMode)
		assert.Equal(t, 2, status.TotalCallsToday)
		assert.Equal(t, models.LinkConnected, status.Networks["DMR"].Status)
		assert.Equal(t, "BrandMeister", status.Networks["DMR"].Target)
	}
}

func TestHandleStatusMsgpack(t *testing.T) {
	h, store := testDeps(t, nil)
	seedActivity(store)

	rec, err := doRequest(t, h.HandleStatusMsgpack, "/api/status/msgpack")
	if assert.NoError(t, err) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

		var status models.SystemStatus
		assert.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "DMR", status.CurrentMode)
	}
}

func TestHandleTransmissions(t *testing.T) {
	h, store := testDeps(t, nil)
	seedActivity(store)

	rec, err := doRequest(t, h.HandleTransmissions, "/api/transmissions")
	if assert.NoError(t, err) {
		var body struct {
			Active []models.TransmissionRecord `json:"active"`
			Recent []models.TransmissionRecord `json:"recent"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		if assert.Len(t, body.Active, 1) {
			assert.Equal(t, "W1AW", body.Active[0].Source)
		}
		if assert.Len(t, body.Recent, 1) {
			assert.Equal(t, "N0CALL", body.Recent[0].Source)
		}
	}
}

func TestHandleEvents(t *testing.T) {
	h, store := testDeps(t, nil)
	seedActivity(store)

	rec, err := doRequest(t, h.HandleEvents, "/api/events?limit=2")
	if assert.NoError(t, err) {
		var body struct {
			Events []models.ActivityEvent `json:"events"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Events, 2)
	}
}

func TestHandleStats(t *testing.T) {
	h, store := testDeps(t, nil)
	seedActivity(store)

	rec, err := doRequest(t, h.HandleStats, "/api/stats")
	if assert.NoError(t, err) {
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, float64(2), body["totalCallsToday"])
		assert.Equal(t, float64(1), body["activeTransmissions"])
		assert.Equal(t, "DMR", body["currentMode"])
	}
}

func TestHandleConfig(t *testing.T) {
	h, _ := testDeps(t, nil)

	rec, err := doRequest(t, h.HandleConfig, "/api/config")
	if assert.NoError(t, err) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"N0CALL"`)
		assert.Contains(t, rec.Body.String(), `"displayEnabled":false`)
	}
}

func TestHandleLog(t *testing.T) {
	h, _ := testDeps(t, nil)

	rec, err := doRequest(t, h.HandleLog, "/api/log?lines=5")
	if assert.NoError(t, err) {
		var body struct {
			Lines  []livelog.Entry              `json:"lines"`
			Colors map[string]map[string]string `json:"colors"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		if assert.Len(t, body.Lines, 1) {
			assert.Equal(t, "DMR", body.Lines[0].Mode)
		}
		assert.NotEmpty(t, body.Colors["modes"]["DMR"])
	}
}

func TestHandleDisplayDisabled(t *testing.T) {
	h, _ := testDeps(t, nil)

	_, err := doRequest(t, h.HandleDisplay, "/api/display")
	if assert.Error(t, err) {
		apiErr, ok := err.(*APIError)
		if assert.True(t, ok) {
			assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
		}
	}
}

func TestHandleDisplayEnabled(t *testing.T) {
	display := lcdproc.NewServer("127.0.0.1:0", nil, nil)
	h, _ := testDeps(t, display)

	rec, err := doRequest(t, h.HandleDisplay, "/api/display")
	if assert.NoError(t, err) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"displaySize"`)
	}
}
