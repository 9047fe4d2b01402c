// Package tray provides a system tray menu for a running meshstudio server.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/meshstudio/internal/studio"
)

// Tray represents the system tray application.
type Tray struct {
	url    string
	onOpen func(url string)
	onQuit func()
	mu     sync.RWMutex

	// Menu items stored for later updates
	menuModel *systray.MenuItem
	menuLast  *systray.MenuItem
}

// New creates a new Tray for the studio served at url.
func New(url string) *Tray {
	return &Tray{url: url}
}

// OnOpen sets the callback function to be called when "Open Studio" is clicked.
func (t *Tray) OnOpen(fn func(url string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
func (t *Tray) onReady() {
	systray.SetTitle("MeshStudio")
	systray.SetTooltip("MeshStudio face landmark picker")

	menuOpen := systray.AddMenuItem("Open Studio...", "Open the studio in a browser")
	systray.AddSeparator()

	t.mu.Lock()
	t.menuModel = systray.AddMenuItem("Model: starting", "Face landmark model status")
	t.menuModel.Disable()
	t.menuLast = systray.AddMenuItem("Last: none", "Last detected face mesh")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit MeshStudio")

	go func() {
		for {
			select {
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	url := t.url
	t.mu.RUnlock()

	if callback != nil {
		callback(url)
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetModelStatus updates the model line, e.g. "mediapipe ready".
func (t *Tray) SetModelStatus(status string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuModel != nil {
		t.menuModel.SetTitle("Model: " + status)
	}
}

// SetLastDetection shows the outcome of the latest detection.
func (t *Tray) SetLastDetection(d studio.Detection) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		t.menuLast.SetTitle(DetectionTitle(d))
	}
}

// DetectionTitle formats a detection for the menu.
func DetectionTitle(d studio.Detection) string {
	if d.Landmarks == 0 {
		return "Last: no face"
	}
	return fmt.Sprintf("Last: %d landmarks at %s", d.Landmarks, d.At.Format("15:04:05"))
}
