package vacuum

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/mivac/internal/core"
)

func newTestServer(t *testing.T, fake *fakeVacuum) (*httptest.Server, *Device, *Plugin) {
	t.Helper()
	d := newTestDevice(fake)
	p := newPlugin([]*Device{d}, nil)
	r := chi.NewRouter()
	p.RegisterHTTP(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, d, p
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestHTTPGetDevice(t *testing.T) {
	fake := newFakeVacuum()
	fake.status = map[string]any{"state": float64(8), "battery": float64(100), "error_code": float64(0)}
	srv, d, _ := newTestServer(t, fake)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	resp, payload := doRequest(t, http.MethodGet, srv.URL+"/devices/kitchen", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	props, _ := payload["properties"].(map[string]any)
	if props[PropBatteryLevel] != float64(100) {
		t.Fatalf("unexpected properties %v", props)
	}
	signals, _ := payload["signals"].(map[string]any)
	if signals["state"] != LabelCharging || signals["charging"] != true {
		t.Fatalf("unexpected signals %v", signals)
	}
}

func TestHTTPUnknownDevice(t *testing.T) {
	srv, _, _ := newTestServer(t, newFakeVacuum())
	resp, payload := doRequest(t, http.MethodGet, srv.URL+"/devices/garage", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(payload["error"].(string), "garage") {
		t.Fatalf("error should name the device: %v", payload)
	}
}

func TestHTTPCommands(t *testing.T) {
	fake := newFakeVacuum()
	fake.results["app_start"] = []any{"ok"}
	fake.results["app_pause"] = []any{"nope"}
	fake.results["app_zoned_clean"] = []any{"ok", float64(1)}
	fake.errs["app_stop"] = errors.New("no route")
	srv, _, _ := newTestServer(t, fake)
	base := srv.URL + "/devices/kitchen/commands/"

	cases := []struct {
		command string
		body    string
		want    int
	}{
		{"start", "", http.StatusOK},
		{"pause", "", http.StatusConflict},
		{"stop", "", http.StatusBadGateway},
		{"fan", `{"speed":"loud"}`, http.StatusBadRequest},
		{"fan", `{}`, http.StatusBadRequest},
		{"volume", `{}`, http.StatusBadRequest},
		{"zone", `{"zones":[{"x1":1,"y1":2,"x2":3,"y2":4}]}`, http.StatusOK},
		{"dance", "", http.StatusBadRequest},
		{"start", "{", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, payload := doRequest(t, http.MethodPost, base+tc.command, tc.body)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: status = %d, want %d (%v)", tc.command, tc.body, resp.StatusCode, tc.want, payload)
		}
	}
}

func TestHTTPZoneResult(t *testing.T) {
	fake := newFakeVacuum()
	fake.results["app_zoned_clean"] = float64(7)
	srv, _, _ := newTestServer(t, fake)

	resp, payload := doRequest(t, http.MethodPost, srv.URL+"/devices/kitchen/commands/zone",
		`{"zones":[{"x1":1,"y1":2,"x2":3,"y2":4,"repeats":2}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["ok"] != true || payload["result"] != float64(7) {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestHTTPFanSpeedNumber(t *testing.T) {
	fake := newFakeVacuum()
	fake.results["set_custom_mode"] = float64(0)
	srv, _, _ := newTestServer(t, fake)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/devices/kitchen/commands/fan", `{"speed":45}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	fake.mu.Lock()
	params := fake.calls[0].params
	fake.mu.Unlock()
	if got, ok := params.([]any); !ok || len(got) != 1 || got[0] != 45 {
		t.Fatalf("params = %#v", params)
	}
}

func TestHTTPHistoryDay(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	fake := newFakeVacuum()
	fake.results["get_clean_summary"] = []any{
		float64(3600), float64(30000000), float64(2),
		[]any{float64(day1.Unix()), float64(day2.Unix())},
	}
	fake.results["get_clean_record"] = []any{
		[]any{float64(day2.Unix()), float64(day2.Unix() + 600), float64(600), float64(10000000), float64(0), float64(1)},
	}
	srv, _, _ := newTestServer(t, fake)

	resp, err := http.Get(srv.URL + "/devices/kitchen/history/2024-03-02")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var records []CleanRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Area != 10 {
		t.Fatalf("unexpected records %+v", records)
	}
	if fake.count("get_clean_record") != 1 {
		t.Fatalf("only the matching day should be loaded, calls %v", fake.methods())
	}

	bad, _ := doRequest(t, http.MethodGet, srv.URL+"/devices/kitchen/history/yesterday", "")
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad day status = %d", bad.StatusCode)
	}
}

func TestHTTPEvents(t *testing.T) {
	fake := newFakeVacuum()
	fake.status = map[string]any{"battery": float64(20)}
	srv, d, _ := newTestServer(t, fake)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devices/kitchen/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != EventSnapshot || first.State == nil || first.State.ID != "kitchen" {
		t.Fatalf("unexpected first event %+v", first)
	}

	if err := d.Refresh(context.Background(), PropBatteryLevel); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	var next Event
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if next.Type != EventChange || next.Change == nil || next.Change.Name != PropBatteryLevel {
		t.Fatalf("unexpected event %+v", next)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrUnknownDevice, http.StatusNotFound},
		{CommandRejectedError{Method: "app_start"}, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestPluginHealth(t *testing.T) {
	fake := newFakeVacuum()
	d := newTestDevice(fake)
	p := newPlugin([]*Device{d}, nil)

	if p.Health() != core.HealthError {
		t.Fatalf("health before first fetch = %v", p.Health())
	}
	if !strings.Contains(p.HealthMessage(), "no successful fetch") {
		t.Fatalf("message = %q", p.HealthMessage())
	}
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if p.Health() != core.HealthHealthy {
		t.Fatalf("health after fetch = %v", p.Health())
	}

	fake.errs[methodGetConsumable] = errors.New("gone")
	if err := d.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if p.Health() != core.HealthError || !strings.Contains(p.HealthMessage(), "kitchen") {
		t.Fatalf("health after failure = %v %q", p.Health(), p.HealthMessage())
	}
}

func TestMetricsCollector(t *testing.T) {
	fake := newFakeVacuum()
	fake.status = map[string]any{"state": float64(5), "battery": float64(64), "fan_power": float64(60)}
	fake.consumable = map[string]any{"filter_work_time": float64(3600)}
	d := newTestDevice(fake)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewMetricsCollector([]*Device{d}))
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				if l.GetName() == "state" || l.GetName() == "consumable" {
					key += "/" + l.GetValue()
				}
			}
			values[key] = m.GetGauge().GetValue()
		}
	}
	expect := map[string]float64{
		"mivac_vacuum_fetch_success":                       1,
		"mivac_vacuum_battery_percent":                     64,
		"mivac_vacuum_cleaning":                            1,
		"mivac_vacuum_fan_speed":                           60,
		"mivac_vacuum_state/cleaning":                      1,
		"mivac_vacuum_consumable_work_time_seconds/filter": 3600,
	}
	for key, want := range expect {
		if got, ok := values[key]; !ok || got != want {
			t.Fatalf("%s = %v (present %v), want %v", key, got, ok, want)
		}
	}
	if _, ok := values["mivac_vacuum_error"]; ok {
		t.Fatalf("no error metric expected while cleaning")
	}
}

func TestStaleDropsExportedAsCounter(t *testing.T) {
	fake := newFakeVacuum()
	fake.status = map[string]any{"state": float64(8)}
	d := newTestDevice(fake)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	d.mu.Lock()
	d.staleDrops = 3
	d.mu.Unlock()

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewMetricsCollector([]*Device{d}))
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		switch mf.GetName() {
		case "mivac_vacuum_stale_properties_dropped_total":
			if mf.GetType().String() != "COUNTER" {
				t.Fatalf("stale drops exported as %s", mf.GetType())
			}
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 3 {
				t.Fatalf("stale drops = %v, want 3", got)
			}
			return
		case "mivac_vacuum_stale_properties_dropped":
			t.Fatalf("stale drops still exported as a gauge")
		}
	}
	t.Fatalf("stale drop counter missing")
}
