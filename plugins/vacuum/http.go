package vacuum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joshp123/mivac/internal/rate"
)

const (
	requestTimeout = 20 * time.Second
	dayLayout      = "2006-01-02"
)

// DeviceView is the JSON representation of one device.
type DeviceView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Model      string    `json:"model,omitempty"`
	Properties Snapshot  `json:"properties,omitempty"`
	Signals    Signals   `json:"signals"`
	LastFetch  time.Time `json:"last_fetch"`
	LastError  string    `json:"last_error,omitempty"`
}

// CommandResult is returned by the command endpoint.
type CommandResult struct {
	OK     bool `json:"ok"`
	Result any  `json:"result,omitempty"`
}

type commandBody struct {
	Speed  json.RawMessage `json:"speed"`
	Zones  []Zone          `json:"zones"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
	Volume *int            `json:"volume"`
}

type refreshBody struct {
	Properties []string `json:"properties"`
}

func viewOf(d *Device, withProperties bool) DeviceView {
	last, err := d.LastFetch()
	view := DeviceView{
		ID:        d.cfg.ID,
		Name:      d.cfg.Name,
		Model:     d.cfg.Model,
		Signals:   d.Signals(),
		LastFetch: last,
	}
	if err != nil {
		view.LastError = err.Error()
	}
	if withProperties {
		view.Properties = d.Properties()
	}
	return view
}

func (p *Plugin) RegisterHTTP(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", p.listDevices)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", p.withDevice(p.getDevice))
			r.Post("/refresh", p.withDevice(p.refreshDevice))
			r.Post("/commands/{command}", p.withDevice(p.runCommand))
			r.Get("/history", p.withDevice(p.getHistory))
			r.Get("/history/{day}", p.withDevice(p.getHistoryDay))
			r.Get("/info", p.withDevice(p.getInfo))
			r.Get("/serial", p.withDevice(p.getSerial))
			r.Get("/volume", p.withDevice(p.getVolume))
			r.Get("/events", p.withDevice(p.streamEvents))
		})
	})
}

type deviceHandler func(w http.ResponseWriter, r *http.Request, d *Device)

func (p *Plugin) withDevice(h deviceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := p.Device(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		h(w, r, d)
	}
}

func (p *Plugin) listDevices(w http.ResponseWriter, _ *http.Request) {
	views := make([]DeviceView, 0, len(p.order))
	for _, d := range p.Devices() {
		views = append(views, viewOf(d, false))
	}
	writeJSON(w, http.StatusOK, views)
}

func (p *Plugin) getDevice(w http.ResponseWriter, _ *http.Request, d *Device) {
	writeJSON(w, http.StatusOK, viewOf(d, true))
}

func (p *Plugin) refreshDevice(w http.ResponseWriter, r *http.Request, d *Device) {
	var body refreshBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := d.Refresh(ctx, body.Properties...); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d, true))
}

func (p *Plugin) runCommand(w http.ResponseWriter, r *http.Request, d *Device) {
	var body commandBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := runNamedCommand(ctx, d, chi.URLParam(r, "command"), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{OK: true, Result: result})
}

func runNamedCommand(ctx context.Context, d *Device, command string, body commandBody) (any, error) {
	switch command {
	case "start":
		return nil, d.Start(ctx)
	case "pause":
		return nil, d.Pause(ctx)
	case "stop":
		return nil, d.Stop(ctx)
	case "dock":
		return nil, d.Dock(ctx)
	case "spot":
		return nil, d.Spot(ctx)
	case "find":
		return nil, d.Find(ctx)
	case "fan":
		speed, err := parseSpeedField(body.Speed)
		if err != nil {
			return nil, err
		}
		return nil, d.SetFanSpeed(ctx, speed)
	case "zone":
		return d.CleanZones(ctx, body.Zones)
	case "goto":
		return d.GoTo(ctx, body.X, body.Y)
	case "volume":
		if body.Volume == nil {
			return nil, fmt.Errorf("%w: volume is required", ErrInvalidArgument)
		}
		return nil, d.SetSoundVolume(ctx, *body.Volume)
	case "test_volume":
		return nil, d.TestSoundVolume(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidArgument, command)
	}
}

// parseSpeedField accepts either a preset name or a number.
func parseSpeedField(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: speed is required", ErrInvalidArgument)
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return ParseFanSpeed(name)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: speed %s", ErrInvalidArgument, string(raw))
	}
	return ParseFanSpeed(fmt.Sprint(n))
}

func (p *Plugin) getHistory(w http.ResponseWriter, r *http.Request, d *Device) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := d.CleanSummary(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// getHistoryDay returns every record whose start falls on the given UTC day.
func (p *Plugin) getHistoryDay(w http.ResponseWriter, r *http.Request, d *Device) {
	day, err := time.Parse(dayLayout, chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: day must be YYYY-MM-DD", ErrInvalidArgument))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := d.CleanSummary(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	records := []CleanRecord{}
	for _, at := range summary.Days {
		if at.UTC().Format(dayLayout) != day.Format(dayLayout) {
			continue
		}
		entries, err := d.CleanRecords(ctx, at)
		if err != nil {
			writeError(w, err)
			return
		}
		records = append(records, entries...)
	}
	writeJSON(w, http.StatusOK, records)
}

func (p *Plugin) getInfo(w http.ResponseWriter, r *http.Request, d *Device) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	info, err := d.Info(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (p *Plugin) getSerial(w http.ResponseWriter, r *http.Request, d *Device) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	serial, err := d.SerialNumber(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"serial_number": serial})
}

func (p *Plugin) getVolume(w http.ResponseWriter, r *http.Request, d *Device) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	volume, err := d.SoundVolume(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"volume": volume})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode body: %v", ErrInvalidArgument, err)
	}
	return nil
}

func statusFor(err error) int {
	var limited rate.RateLimitError
	switch {
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrCommandRejected):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrDeviceCommunication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
