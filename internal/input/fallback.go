package input

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Backend is a named capture for Fallback.
type Backend struct {
	Name    string
	Capture InputCapture
}

// Fallback is an InputCapture that grabs with the first backend whose Start
// succeeds, in order. The backend that last succeeded is tried first next
// time.
type Fallback struct {
	log      *zap.Logger
	backends []Backend

	mu        sync.Mutex
	active    InputCapture
	preferred int
}

// NewFallback chains backends in preference order.
func NewFallback(log *zap.Logger, backends ...Backend) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{log: log.Named("capture"), backends: backends}
}

// Active returns the name of the backend holding the grab, if any.
func (f *Fallback) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return ""
	}
	return f.backends[f.preferred].Name
}

func (f *Fallback) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != nil {
		return nil
	}
	if len(f.backends) == 0 {
		return ErrNoDevices
	}

	var errs []error
	for n := 0; n < len(f.backends); n++ {
		i := (f.preferred + n) % len(f.backends)
		b := f.backends[i]
		if err := b.Capture.Start(); err != nil {
			f.log.Warn("capture backend failed, trying next", zap.String("backend", b.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
			continue
		}
		if i != f.preferred {
			f.log.Info("capture backend selected", zap.String("backend", b.Name))
		}
		f.active = b.Capture
		f.preferred = i
		return nil
	}
	return errors.Join(errs...)
}

func (f *Fallback) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return nil
	}
	err := f.active.Stop()
	f.active = nil
	return err
}

func (f *Fallback) Events() <-chan InputEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return nil
	}
	return f.active.Events()
}
