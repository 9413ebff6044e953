package vacuum

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestCleanSummaryForms(t *testing.T) {
	cases := []struct {
		name   string
		result any
	}{
		{
			name:   "array",
			result: []any{float64(7200), float64(45500000), float64(3), []any{float64(1700000000), float64(1700086400)}},
		},
		{
			name: "record",
			result: map[string]any{
				"clean_time":  float64(7200),
				"clean_area":  float64(45500000),
				"clean_count": float64(3),
				"records":     []any{float64(1700000000), float64(1700086400)},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeVacuum()
			fake.results["get_clean_summary"] = tc.result
			d := newTestDevice(fake)

			summary, err := d.CleanSummary(context.Background())
			if err != nil {
				t.Fatalf("CleanSummary error: %v", err)
			}
			if summary.TotalDuration != 2*time.Hour || summary.Count != 3 {
				t.Fatalf("unexpected totals %+v", summary)
			}
			if summary.TotalArea != 45.5 {
				t.Fatalf("area = %v, want 45.5", summary.TotalArea)
			}
			want := []time.Time{time.Unix(1700000000, 0), time.Unix(1700086400, 0)}
			if !reflect.DeepEqual(summary.Days, want) {
				t.Fatalf("days = %v", summary.Days)
			}
		})
	}
}

func TestCleanSummaryMalformed(t *testing.T) {
	if _, err := parseCleanSummary([]any{float64(1)}); err == nil {
		t.Fatalf("expected error for short response")
	}
	if _, err := parseCleanSummary("nope"); err == nil {
		t.Fatalf("expected error for unexpected response")
	}
}

func TestCleanRecords(t *testing.T) {
	fake := newFakeVacuum()
	fake.results["get_clean_record"] = []any{
		[]any{float64(1700000000), float64(1700001800), float64(1800), float64(20250000), float64(0), float64(1)},
		[]any{float64(1700010000), float64(1700010600), float64(600), float64(5000000), float64(0), float64(0)},
	}
	d := newTestDevice(fake)

	at := time.Unix(1700000000, 0)
	records, err := d.CleanRecords(context.Background(), at)
	if err != nil {
		t.Fatalf("CleanRecords error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if !first.Start.Equal(at) || first.Duration != 30*time.Minute || first.Area != 20.25 || !first.Complete {
		t.Fatalf("unexpected record %+v", first)
	}
	if records[1].Complete {
		t.Fatalf("second record should be incomplete")
	}

	fake.mu.Lock()
	params := fake.calls[0].params
	fake.mu.Unlock()
	if !reflect.DeepEqual(params, []any{int64(1700000000)}) {
		t.Fatalf("params = %#v", params)
	}

	if _, err := parseCleanRecords([]any{[]any{float64(1)}}); err == nil {
		t.Fatalf("expected error for malformed entry")
	}
}

func TestInfoAndWiFi(t *testing.T) {
	fake := newFakeVacuum()
	fake.results["miIO.info"] = map[string]any{
		"fw_ver": "3.3.9_003460",
		"hw_ver": "Linux",
		"mac":    "28:6C:07:00:00:01",
		"model":  "rockrobo.vacuum.v1",
		"token":  "abc",
		"ap":     map[string]any{"ssid": "home", "bssid": "aa:bb", "rssi": float64(-52)},
		"netif":  map[string]any{"localIp": "192.168.1.20", "mask": "255.255.255.0", "gw": "192.168.1.1"},
	}
	d := newTestDevice(fake)

	info, err := d.Info(context.Background())
	if err != nil {
		t.Fatalf("Info error: %v", err)
	}
	if info.Model != "rockrobo.vacuum.v1" || info.FirmwareVersion != "3.3.9_003460" {
		t.Fatalf("unexpected info %+v", info)
	}
	wifi, err := d.WiFi(context.Background())
	if err != nil {
		t.Fatalf("WiFi error: %v", err)
	}
	if wifi.AP.SSID != "home" || wifi.AP.RSSI != -52 || wifi.NetIf.Gateway != "192.168.1.1" {
		t.Fatalf("unexpected wifi %+v", wifi)
	}
}

func TestSerialNumber(t *testing.T) {
	fake := newFakeVacuum()
	fake.results["get_serial_number"] = []any{map[string]any{"serial_number": "R0018S12345"}}
	d := newTestDevice(fake)

	serial, err := d.SerialNumber(context.Background())
	if err != nil {
		t.Fatalf("SerialNumber error: %v", err)
	}
	if serial != "R0018S12345" {
		t.Fatalf("serial = %q", serial)
	}
}

func TestSoundVolume(t *testing.T) {
	fake := newFakeVacuum()
	fake.results["get_sound_volume"] = []any{float64(85)}
	fake.results["change_sound_volume"] = []any{"ok"}
	d := newTestDevice(fake)
	ctx := context.Background()

	volume, err := d.SoundVolume(ctx)
	if err != nil || volume != 85 {
		t.Fatalf("SoundVolume = %d, %v", volume, err)
	}
	if err := d.SetSoundVolume(ctx, 40); err != nil {
		t.Fatalf("SetSoundVolume error: %v", err)
	}
	if err := d.SetSoundVolume(ctx, 101); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if fake.count("change_sound_volume") != 1 {
		t.Fatalf("out of range volume reached the device")
	}
}

func TestFlatCallErrors(t *testing.T) {
	fake := newFakeVacuum()
	fake.errs["get_serial_number"] = errors.New("timeout")
	d := newTestDevice(fake)
	if _, err := d.SerialNumber(context.Background()); !errors.Is(err, ErrDeviceCommunication) {
		t.Fatalf("expected ErrDeviceCommunication, got %v", err)
	}
}
