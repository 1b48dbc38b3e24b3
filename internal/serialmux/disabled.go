package serialmux

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/cbf-labs/anacase/internal/monitoring"
)

// discardHistory is how many dropped commands DisabledSerialMux remembers.
const discardHistory = 32

// DisabledSerialMux stands in when no signal tower is attached. Commands are
// dropped, logged at debug level and kept in a short history so a dev run
// can show what the tower would have been told. Monitor blocks until
// cancelled and no lines are ever delivered.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closed      bool

	recent    []string
	discarded uint64
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subscribers: make(map[string]chan string)}
}

// Subscribe returns a channel that is only ever closed.
func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subscribers[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		delete(d.subscribers, id)
		close(ch)
	}
}

// SendCommand records command instead of writing it.
func (d *DisabledSerialMux) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	monitoring.Debugf("serial disabled, dropped %q", command)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.discarded++
	if len(d.recent) == discardHistory {
		d.recent = append(d.recent[:0], d.recent[1:]...)
	}
	d.recent = append(d.recent, command)
	return nil
}

// Discarded returns the number of dropped commands and the most recent ones,
// oldest first.
func (d *DisabledSerialMux) Discarded() (uint64, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discarded, append([]string(nil), d.recent...)
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		for id, ch := range d.subscribers {
			delete(d.subscribers, id)
			close(ch)
		}
	}
	return nil
}

func (d *DisabledSerialMux) Initialize() error {
	monitoring.Logf("signal tower disabled, actuator commands will be dropped")
	return nil
}

// AttachAdminRoutes lists the dropped commands at /debug/serial-disabled.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("serial-disabled", "commands dropped while the signal tower is disabled", func(w http.ResponseWriter, r *http.Request) {
		n, recent := d.Discarded()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "serial disabled, %d commands dropped\n", n)
		for _, c := range recent {
			fmt.Fprintln(w, c)
		}
	})
}
