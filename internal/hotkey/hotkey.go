// Package hotkey matches global key combinations and the fixed escape key
// against a stream of key presses.
package hotkey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// EscapeKey always returns control to the local host and cannot be rebound.
const EscapeKey = "ESC"

// KeyEvent is one press or release of a named key.
type KeyEvent struct {
	Key  string
	Down bool
}

var aliases = map[string]string{
	"CONTROL": "CTRL", "LCTRL": "CTRL", "RCTRL": "CTRL",
	"OPTION": "ALT", "LALT": "ALT", "RALT": "ALT", "ALTGR": "ALT",
	"LSHIFT": "SHIFT", "RSHIFT": "SHIFT",
	"META": "CMD", "SUPER": "CMD", "WIN": "CMD", "COMMAND": "CMD", "LCMD": "CMD", "RCMD": "CMD",
	"ESCAPE": "ESC",
	"RETURN": "ENTER",
}

// Normalize canonicalizes a key name.
func Normalize(key string) string {
	k := strings.ToUpper(strings.TrimSpace(key))
	if a, ok := aliases[k]; ok {
		return a
	}
	return k
}

// Manager handles hotkey registration and matching
type Manager struct {
	log *zap.Logger

	mu           sync.Mutex
	hotkeys      []*registeredHotkey
	currentState map[string]bool // keys currently held
	onEscape     func()
}

type registeredHotkey struct {
	parts    []string // e.g., ["CTRL", "ALT", "M"]
	original string
	callback func()
	latched  bool
}

// NewManager creates a new hotkey manager
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:          log.Named("hotkey"),
		currentState: make(map[string]bool),
	}
}

// Parse splits a combination like "ctrl+alt+m" into normalized keys.
func Parse(hotkeyStr string) ([]string, error) {
	var parts []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(hotkeyStr, "+") {
		k := Normalize(p)
		if k == "" {
			return nil, fmt.Errorf("hotkey %q: empty key", hotkeyStr)
		}
		if k == EscapeKey {
			return nil, fmt.Errorf("hotkey %q: %s is reserved", hotkeyStr, EscapeKey)
		}
		if !seen[k] {
			seen[k] = true
			parts = append(parts, k)
		}
	}
	return parts, nil
}

// Register binds a combination (e.g. "Ctrl+Alt+M") to a callback. The
// callback fires once per press of the full combination.
func (m *Manager) Register(hotkeyStr string, callback func()) error {
	if strings.TrimSpace(hotkeyStr) == "" {
		return nil
	}
	parts, err := Parse(hotkeyStr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		parts:    parts,
		original: hotkeyStr,
		callback: callback,
	})
	return nil
}

// OnEscape sets the callback for the escape key.
func (m *Manager) OnEscape(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEscape = callback
}

// Clear removes all registered hotkeys. Escape stays bound.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// UpdateState records a key transition and fires any callbacks it completes.
// Callbacks run on the caller's goroutine in registration order.
func (m *Manager) UpdateState(key string, isDown bool) {
	key = Normalize(key)
	if key == "" {
		return
	}

	m.mu.Lock()
	if !isDown {
		delete(m.currentState, key)
		for _, hk := range m.hotkeys {
			if hk.latched && contains(hk.parts, key) {
				hk.latched = false
			}
		}
		m.mu.Unlock()
		return
	}

	if m.currentState[key] {
		// autorepeat
		m.mu.Unlock()
		return
	}
	m.currentState[key] = true

	var fire []func()
	if key == EscapeKey {
		if m.onEscape != nil {
			fire = append(fire, m.onEscape)
		}
		m.log.Info("escape pressed")
	} else {
		fire = m.checkMatches()
	}
	m.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

func (m *Manager) checkMatches() []func() {
	var fire []func()
	for _, hk := range m.hotkeys {
		if hk.latched {
			continue
		}
		match := true
		// All parts of the hotkey must be held
		for _, part := range hk.parts {
			if !m.currentState[part] {
				match = false
				break
			}
		}
		if match {
			hk.latched = true
			m.log.Info("hotkey triggered", zap.String("hotkey", hk.original))
			if hk.callback != nil {
				fire = append(fire, hk.callback)
			}
		}
	}
	return fire
}

// Run feeds key events into the manager until ctx is cancelled or keys closes.
func (m *Manager) Run(ctx context.Context, keys <-chan KeyEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-keys:
			if !ok {
				return
			}
			m.UpdateState(ev.Key, ev.Down)
		}
	}
}

func contains(parts []string, key string) bool {
	for _, p := range parts {
		if p == key {
			return true
		}
	}
	return false
}
