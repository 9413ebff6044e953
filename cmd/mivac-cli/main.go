package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type cli struct {
	api    *apiClient
	out    outputMode
	device string
}

type deviceView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Model      string         `json:"model"`
	Properties map[string]any `json:"properties"`
	Signals    struct {
		State    string         `json:"state"`
		Charging bool           `json:"charging"`
		Cleaning bool           `json:"cleaning"`
		Error    map[string]any `json:"error"`
		FanSpeed any            `json:"fanSpeed"`
	} `json:"signals"`
	LastFetch time.Time `json:"last_fetch"`
	LastError string    `json:"last_error"`
}

func main() {
	flags := flag.NewFlagSet("mivac-cli", flag.ExitOnError)
	addr := flags.String("addr", envOrDefault("MIVAC_ADDR", "localhost:8080"), "daemon HTTP address")
	jsonOutput := flags.Bool("json", false, "print JSON")
	device := flags.String("device", "", "device id or name")
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	c := &cli{api: newAPIClient(*addr), out: outputMode{json: *jsonOutput}, device: *device}
	if args[0] == "events" {
		c.eventsCmd()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "devices":
		c.devicesCmd(ctx)
	case "status":
		c.statusCmd(ctx)
	case "refresh":
		c.refreshCmd(ctx, args[1:])
	case "start", "pause", "stop", "dock", "spot", "find":
		c.command(ctx, args[0], nil)
	case "fan":
		if len(args) < 2 {
			fatal("fan", fmt.Errorf("usage: fan quiet|balanced|turbo|1-100"))
		}
		c.command(ctx, "fan", map[string]any{"speed": args[1]})
	case "zone":
		c.zoneCmd(ctx, args[1:])
	case "goto":
		if len(args) < 3 {
			fatal("goto", fmt.Errorf("usage: goto <x> <y>"))
		}
		c.command(ctx, "goto", map[string]any{"x": mustInt("x", args[1]), "y": mustInt("y", args[2])})
	case "history":
		c.historyCmd(ctx, args[1:])
	case "info":
		c.infoCmd(ctx)
	case "volume":
		c.volumeCmd(ctx, args[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func (c *cli) devicesCmd(ctx context.Context) {
	var devices []deviceView
	if err := c.api.get(ctx, "/devices", &devices); err != nil {
		fatal("list devices", err)
	}
	if c.out.json {
		c.out.printJSON(devices)
		return
	}
	rows := [][]string{{"ID", "NAME", "MODEL", "STATE", "LAST FETCH"}}
	for _, d := range devices {
		last := "-"
		if !d.LastFetch.IsZero() {
			last = d.LastFetch.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{d.ID, d.Name, d.Model, formatValue(d.Signals.State), last})
	}
	c.out.table(rows)
}

func (c *cli) deviceID(ctx context.Context) string {
	var devices []deviceSummary
	if err := c.api.get(ctx, "/devices", &devices); err != nil {
		fatal("list devices", err)
	}
	id, err := resolveDevice(c.device, devices)
	if err != nil {
		fatal("resolve device", err)
	}
	return id
}

func (c *cli) statusCmd(ctx context.Context) {
	var view deviceView
	if err := c.api.get(ctx, "/devices/"+url.PathEscape(c.deviceID(ctx)), &view); err != nil {
		fatal("status", err)
	}
	c.printStatus(view)
}

func (c *cli) printStatus(view deviceView) {
	if c.out.json {
		c.out.printJSON(view)
		return
	}
	fmt.Printf("STATE:    %s\n", formatValue(view.Signals.State))
	fmt.Printf("CHARGING: %s\n", formatValue(view.Signals.Charging))
	fmt.Printf("CLEANING: %s\n", formatValue(view.Signals.Cleaning))
	fmt.Printf("FAN:      %s\n", formatValue(view.Signals.FanSpeed))
	if view.Signals.Error != nil {
		fmt.Printf("ERROR:    %s\n", formatValue(view.Signals.Error))
	}
	if view.LastError != "" {
		fmt.Printf("FETCH:    %s\n", view.LastError)
	}
	if len(view.Properties) == 0 {
		return
	}
	fmt.Println()
	rows := [][]string{{"PROPERTY", "VALUE"}}
	for _, name := range sortedKeys(view.Properties) {
		rows = append(rows, []string{name, formatValue(view.Properties[name])})
	}
	c.out.table(rows)
}

func (c *cli) refreshCmd(ctx context.Context, names []string) {
	var view deviceView
	body := map[string]any{"properties": names}
	if err := c.api.post(ctx, "/devices/"+url.PathEscape(c.deviceID(ctx))+"/refresh", body, &view); err != nil {
		fatal("refresh", err)
	}
	c.printStatus(view)
}

func (c *cli) command(ctx context.Context, name string, body map[string]any) {
	var result struct {
		OK     bool `json:"ok"`
		Result any  `json:"result"`
	}
	path := "/devices/" + url.PathEscape(c.deviceID(ctx)) + "/commands/" + name
	if err := c.api.post(ctx, path, body, &result); err != nil {
		fatal(name, err)
	}
	if c.out.json {
		c.out.printJSON(result)
		return
	}
	if result.Result != nil {
		fmt.Printf("ok (%s)\n", formatValue(result.Result))
		return
	}
	fmt.Println("ok")
}

func (c *cli) zoneCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("zone", flag.ExitOnError)
	repeats := flags.Int("repeats", 1, "times to clean each zone")
	_ = flags.Parse(args)
	coords := flags.Args()
	if len(coords) == 0 || len(coords)%4 != 0 {
		fatal("zone", fmt.Errorf("usage: zone [--repeats n] <x1> <y1> <x2> <y2> [...]"))
	}
	var zones []map[string]int
	for i := 0; i < len(coords); i += 4 {
		zones = append(zones, map[string]int{
			"x1":      mustInt("x1", coords[i]),
			"y1":      mustInt("y1", coords[i+1]),
			"x2":      mustInt("x2", coords[i+2]),
			"y2":      mustInt("y2", coords[i+3]),
			"repeats": *repeats,
		})
	}
	c.command(ctx, "zone", map[string]any{"zones": zones})
}

func (c *cli) historyCmd(ctx context.Context, args []string) {
	id := url.PathEscape(c.deviceID(ctx))
	if len(args) == 0 {
		var summary struct {
			TotalDuration time.Duration `json:"totalDuration"`
			TotalArea     float64       `json:"totalArea"`
			Count         int           `json:"count"`
			Days          []time.Time   `json:"days"`
		}
		if err := c.api.get(ctx, "/devices/"+id+"/history", &summary); err != nil {
			fatal("history", err)
		}
		if c.out.json {
			c.out.printJSON(summary)
			return
		}
		fmt.Printf("CLEANS:   %d\n", summary.Count)
		fmt.Printf("DURATION: %s\n", summary.TotalDuration)
		fmt.Printf("AREA:     %.1f m²\n", summary.TotalArea)
		for _, day := range summary.Days {
			fmt.Printf("  %s\n", day.Local().Format(time.DateTime))
		}
		return
	}

	var records []struct {
		Start    time.Time     `json:"start"`
		End      time.Time     `json:"end"`
		Duration time.Duration `json:"duration"`
		Area     float64       `json:"area"`
		Complete bool          `json:"complete"`
	}
	if err := c.api.get(ctx, "/devices/"+id+"/history/"+url.PathEscape(args[0]), &records); err != nil {
		fatal("history", err)
	}
	if c.out.json {
		c.out.printJSON(records)
		return
	}
	rows := [][]string{{"START", "END", "DURATION", "AREA", "COMPLETE"}}
	for _, r := range records {
		rows = append(rows, []string{
			r.Start.Local().Format(time.TimeOnly),
			r.End.Local().Format(time.TimeOnly),
			r.Duration.String(),
			strconv.FormatFloat(r.Area, 'f', 1, 64),
			formatValue(r.Complete),
		})
	}
	c.out.table(rows)
}

func (c *cli) infoCmd(ctx context.Context) {
	var info map[string]any
	if err := c.api.get(ctx, "/devices/"+url.PathEscape(c.deviceID(ctx))+"/info", &info); err != nil {
		fatal("info", err)
	}
	if c.out.json {
		c.out.printJSON(info)
		return
	}
	rows := [][]string{{"FIELD", "VALUE"}}
	for _, key := range sortedKeys(info) {
		rows = append(rows, []string{key, formatValue(info[key])})
	}
	c.out.table(rows)
}

func (c *cli) volumeCmd(ctx context.Context, args []string) {
	if len(args) > 0 {
		c.command(ctx, "volume", map[string]any{"volume": mustInt("volume", args[0])})
		return
	}
	var resp struct {
		Volume int `json:"volume"`
	}
	if err := c.api.get(ctx, "/devices/"+url.PathEscape(c.deviceID(ctx))+"/volume", &resp); err != nil {
		fatal("volume", err)
	}
	if c.out.json {
		c.out.printJSON(resp)
		return
	}
	fmt.Printf("VOLUME: %d\n", resp.Volume)
}

// eventsCmd streams device events until interrupted.
func (c *cli) eventsCmd() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	id := c.deviceID(lookupCtx)
	cancel()

	wsURL := strings.Replace(c.api.base, "http", "ws", 1) + "/devices/" + url.PathEscape(id) + "/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		fatal("connect events", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var event map[string]any
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return
			}
			fatal("read event", err)
		}
		if c.out.json {
			c.out.printJSON(event)
			continue
		}
		printEvent(event)
	}
}

func printEvent(event map[string]any) {
	switch event["type"] {
	case "change":
		change, _ := event["change"].(map[string]any)
		fmt.Printf("%s change  %s: %s -> %s\n", event["device"], change["name"], formatValue(change["previous"]), formatValue(change["value"]))
	case "signal":
		update, _ := event["signal"].(map[string]any)
		fmt.Printf("%s signal  %s = %s\n", event["device"], update["name"], formatValue(update["value"]))
	default:
		fmt.Printf("%s %s\n", event["device"], event["type"])
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mustInt(name, value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		fatal(name, fmt.Errorf("%q is not an integer", value))
	}
	return n
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func usage() {
	fmt.Println("mivac-cli [--addr host:port] [--device id] [--json] <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  devices")
	fmt.Println("  status")
	fmt.Println("  refresh [property ...]")
	fmt.Println("  start | pause | stop | dock | spot | find")
	fmt.Println("  fan quiet|balanced|turbo|1-100")
	fmt.Println("  zone [--repeats n] <x1> <y1> <x2> <y2> [...]")
	fmt.Println("  goto <x> <y>")
	fmt.Println("  history [YYYY-MM-DD]")
	fmt.Println("  info")
	fmt.Println("  volume [0-100]")
	fmt.Println("  events")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
