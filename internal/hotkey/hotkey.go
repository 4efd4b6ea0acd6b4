// Package hotkey binds global keyboard shortcuts to the tracker control
// surface through the OS event hook.
package hotkey

import (
	"log"
	"os"
	"strings"

	hook "github.com/robotn/gohook"
)

// Controller is the part of the tracker the hotkeys drive.
type Controller interface {
	Start() error
	Stop()
}

// Listener owns the global event hook. Run blocks until Shutdown or until
// the hook itself ends.
type Listener struct {
	ctrl     Controller
	log      *log.Logger
	startKey string
	stopKey  string
}

// New builds a listener for the given start/stop key names. Key names are
// matched case-insensitively against gohook's keycode table.
func New(ctrl Controller, startKey, stopKey string) *Listener {
	return &Listener{
		ctrl:     ctrl,
		log:      log.New(os.Stderr, "hotkey: ", log.LstdFlags),
		startKey: strings.ToLower(startKey),
		stopKey:  strings.ToLower(stopKey),
	}
}

// Run registers the bindings and pumps the OS event hook. It returns after
// Shutdown is called from another goroutine.
func (l *Listener) Run() {
	hook.Register(hook.KeyDown, []string{l.startKey}, func(hook.Event) {
		if err := l.ctrl.Start(); err != nil {
			l.log.Printf("start refused: %v", err)
			return
		}
		l.log.Printf("tracking started (%s)", l.startKey)
	})
	hook.Register(hook.KeyDown, []string{l.stopKey}, func(hook.Event) {
		l.ctrl.Stop()
		l.log.Printf("tracking stopped (%s)", l.stopKey)
	})

	s := hook.Start()
	<-hook.Process(s)
}

// Shutdown ends the event hook, unblocking Run.
func (l *Listener) Shutdown() {
	hook.End()
}
