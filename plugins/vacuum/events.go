package vacuum

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Event is one message on the events stream.
type Event struct {
	Type   string        `json:"type"`
	Device string        `json:"device"`
	At     time.Time     `json:"at"`
	Change *Change       `json:"change,omitempty"`
	Signal *SignalUpdate `json:"signal,omitempty"`
	State  *DeviceView   `json:"state,omitempty"`
}

const (
	EventSnapshot = "snapshot"
	EventChange   = "change"
	EventSignal   = "signal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamEvents sends the current state, then every change and signal
// update. Slow subscribers lose events rather than stalling dispatch.
func (p *Plugin) streamEvents(w http.ResponseWriter, r *http.Request, d *Device) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Printf("vacuum %s: websocket upgrade: %v", d.ID(), err)
		return
	}
	defer conn.Close()

	subscriber := uuid.NewString()
	events := make(chan Event, eventBuffer)
	push := func(e Event) {
		select {
		case events <- e:
		default:
			p.logger.Printf("vacuum %s: subscriber %s lagging, dropped %s event", d.ID(), subscriber, e.Type)
		}
	}
	offChange := d.OnChange(func(c Change) {
		push(Event{Type: EventChange, Device: d.ID(), At: time.Now(), Change: &c})
	})
	defer offChange()
	offSignal := d.OnSignal(func(u SignalUpdate) {
		push(Event{Type: EventSignal, Device: d.ID(), At: time.Now(), Signal: &u})
	})
	defer offSignal()

	p.logger.Printf("vacuum %s: subscriber %s connected", d.ID(), subscriber)
	defer p.logger.Printf("vacuum %s: subscriber %s disconnected", d.ID(), subscriber)

	// The read loop only exists to notice the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	view := viewOf(d, true)
	if err := writeEvent(conn, Event{Type: EventSnapshot, Device: d.ID(), At: time.Now(), State: &view}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := writeEvent(conn, e); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, e Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(e)
}
