package vacuum

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const areaDivisor = 1000000

// call issues a flat request that is not part of a fetch cycle.
func (d *Device) call(ctx context.Context, method string, params any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	result, err := d.caller.Call(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceCommunication, method, err)
	}
	return result, nil
}

func (d *Device) SerialNumber(ctx context.Context) (string, error) {
	result, err := d.call(ctx, "get_serial_number", nil)
	if err != nil {
		return "", err
	}
	record := firstRecord(result)
	if record == nil {
		return "", fmt.Errorf("get_serial_number: unexpected response %v", result)
	}
	return stringFrom(record["serial_number"]), nil
}

// CleanSummary returns the totals and the start times of recorded cleans.
func (d *Device) CleanSummary(ctx context.Context) (CleanSummary, error) {
	result, err := d.call(ctx, "get_clean_summary", nil)
	if err != nil {
		return CleanSummary{}, err
	}
	return parseCleanSummary(result)
}

func parseCleanSummary(result any) (CleanSummary, error) {
	switch v := result.(type) {
	case []any:
		if len(v) < 4 {
			return CleanSummary{}, fmt.Errorf("get_clean_summary: short response %v", result)
		}
		summary := CleanSummary{
			TotalDuration: time.Duration(intFrom(v[0])) * time.Second,
			TotalArea:     floatFrom(v[1]) / areaDivisor,
			Count:         intFrom(v[2]),
		}
		if days, ok := v[3].([]any); ok {
			for _, day := range days {
				summary.Days = append(summary.Days, timeFromUnix(day))
			}
		}
		return summary, nil
	case map[string]any:
		// Newer firmware answers with a keyed record.
		summary := CleanSummary{
			TotalDuration: time.Duration(intFrom(v["clean_time"])) * time.Second,
			TotalArea:     floatFrom(v["clean_area"]) / areaDivisor,
			Count:         intFrom(v["clean_count"]),
		}
		if days, ok := v["records"].([]any); ok {
			for _, day := range days {
				summary.Days = append(summary.Days, timeFromUnix(day))
			}
		}
		return summary, nil
	default:
		return CleanSummary{}, fmt.Errorf("get_clean_summary: unexpected response %v", result)
	}
}

// CleanRecords returns the history entries recorded under the given
// start time, as listed by CleanSummary.
func (d *Device) CleanRecords(ctx context.Context, at time.Time) ([]CleanRecord, error) {
	result, err := d.call(ctx, "get_clean_record", []any{at.Unix()})
	if err != nil {
		return nil, err
	}
	return parseCleanRecords(result)
}

func parseCleanRecords(result any) ([]CleanRecord, error) {
	rows, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("get_clean_record: unexpected response %v", result)
	}
	records := make([]CleanRecord, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.([]any)
		if !ok || len(fields) < 6 {
			return nil, fmt.Errorf("get_clean_record: malformed entry %v", row)
		}
		records = append(records, CleanRecord{
			Start:    timeFromUnix(fields[0]),
			End:      timeFromUnix(fields[1]),
			Duration: time.Duration(intFrom(fields[2])) * time.Second,
			Area:     floatFrom(fields[3]) / areaDivisor,
			Complete: intFrom(fields[5]) == 1,
		})
	}
	return records, nil
}

func (d *Device) SoundVolume(ctx context.Context) (int, error) {
	result, err := d.call(ctx, "get_sound_volume", nil)
	if err != nil {
		return 0, err
	}
	values, ok := result.([]any)
	if !ok || len(values) == 0 {
		return 0, fmt.Errorf("get_sound_volume: unexpected response %v", result)
	}
	return intFrom(values[0]), nil
}

func (d *Device) SetSoundVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%w: volume %d", ErrInvalidArgument, volume)
	}
	_, err := d.Execute(ctx, "change_sound_volume", []any{volume})
	return err
}

// TestSoundVolume plays a sample at the current volume.
func (d *Device) TestSoundVolume(ctx context.Context) error {
	_, err := d.Execute(ctx, "test_sound_volume", nil)
	return err
}

func (d *Device) Info(ctx context.Context) (Info, error) {
	result, err := d.call(ctx, "miIO.info", nil)
	if err != nil {
		return Info{}, err
	}
	return parseInfo(result)
}

func (d *Device) WiFi(ctx context.Context) (WiFi, error) {
	info, err := d.Info(ctx)
	if err != nil {
		return WiFi{}, err
	}
	return WiFi{AP: info.AP, NetIf: info.NetIf}, nil
}

func parseInfo(result any) (Info, error) {
	record := firstRecord(result)
	if record == nil {
		return Info{}, fmt.Errorf("miIO.info: unexpected response %v", result)
	}
	info := Info{
		FirmwareVersion: stringFrom(record["fw_ver"]),
		HardwareVersion: stringFrom(record["hw_ver"]),
		MAC:             stringFrom(record["mac"]),
		Model:           stringFrom(record["model"]),
		Token:           stringFrom(record["token"]),
	}
	if ap, ok := record["ap"].(map[string]any); ok {
		info.AP = AccessPoint{
			SSID:  stringFrom(ap["ssid"]),
			BSSID: stringFrom(ap["bssid"]),
			RSSI:  intFrom(ap["rssi"]),
		}
	}
	if netif, ok := record["netif"].(map[string]any); ok {
		info.NetIf = NetIf{
			LocalIP: stringFrom(netif["localIp"]),
			Mask:    stringFrom(netif["mask"]),
			Gateway: stringFrom(netif["gw"]),
		}
	}
	return info, nil
}

func timeFromUnix(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0)
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case string:
		val, _ := strconv.ParseInt(t, 10, 64)
		return time.Unix(val, 0)
	default:
		return time.Time{}
	}
}
