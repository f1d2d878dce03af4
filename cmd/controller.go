package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"zedlink/internal/api"
	"zedlink/internal/config"
	"zedlink/internal/edge"
	"zedlink/internal/hotkey"
	"zedlink/internal/input"
	"zedlink/internal/input/evdev"
	"zedlink/internal/input/mactap"
	"zedlink/internal/input/robot"
	"zedlink/internal/input/wintrap"
	"zedlink/internal/input/x11"
	"zedlink/internal/network"
	"zedlink/internal/osutils"
	"zedlink/internal/protocol"
	"zedlink/internal/switcher"
	"zedlink/internal/tray"
	"zedlink/internal/trigger"
)

// controlActions backs the API and tray control entries.
type controlActions struct {
	client *network.Client
	sw     *switcher.Switcher
}

func (c controlActions) Connect()    { c.client.Connect() }
func (c controlActions) Disconnect() { c.client.Disconnect() }

func (c controlActions) Toggle(ctx context.Context) error {
	return c.sw.Publish(ctx, trigger.New(trigger.HotkeyToggle))
}

func runController(ctx context.Context, cfg *config.Config, log *zap.Logger, ui *tray.Tray) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	trig, err := edge.ParseEdge(cfg.Edge.TriggerEdge)
	if err != nil {
		return err
	}
	method, err := edge.ParseReturnMethod(cfg.Edge.ReturnMethod)
	if err != nil {
		return err
	}
	codec, err := protocol.ByName(cfg.Network.Codec)
	if err != nil {
		return err
	}

	client := network.NewClient(network.ClientConfig{
		Addr:  cfg.Network.TargetAddr(),
		Codec: codec,
		Info: protocol.ClientInfo{
			Name:     cfg.Name,
			Platform: runtime.GOOS,
			Version:  version,
		},
		DialTimeout: cfg.Network.ConnectTimeout(),
		Heartbeat:   cfg.Network.Heartbeat(),
		QueueSize:   cfg.Network.QueueSize,
		Backoff: network.Backoff{
			Initial: ms(cfg.Network.BackoffInitialMS),
			Max:     ms(cfg.Network.BackoffMaxMS),
			Jitter:  ms(cfg.Network.BackoffJitterMS),
		},
	}, log)

	hooks := robot.NewHooks(log)
	ptr, closePtr := samplingPointer(cfg, log)
	defer closePtr()

	var sw *switcher.Switcher

	returnEdge := edge.ReturnEdge(trig, method)
	capture := input.NewCaptureManager(captureDevice(cfg, hooks, log), client.Enqueue, input.CaptureConfig{
		Tick:        cfg.Edge.Tick(),
		Sensitivity: cfg.Input.Sensitivity,
		Crossed:     returnEdge.Crossed,
		OnReturnEdge: func() {
			if !sw.TryPublish(trigger.New(trigger.ReturnEdge)) {
				log.Warn("return edge dropped, switcher busy")
			}
		},
	}, log)

	det := edge.NewDetector(ptr, edge.Config{
		Edge:       trig,
		Delay:      cfg.Edge.Delay(),
		Threshold:  cfg.Edge.ThresholdPX,
		Tick:       cfg.Edge.Tick(),
		StallAfter: cfg.Edge.StallAfter(),
	}, func(ev trigger.Event) {
		_ = sw.Publish(ctx, ev)
	}, log)

	sw = switcher.New(capture, client, det, log)

	hk := hotkey.NewManager(log)
	hk.OnEscape(func() {
		_ = sw.Publish(ctx, trigger.New(trigger.Escape))
	})
	if cfg.Hotkey.Enabled {
		if err := hk.Register(cfg.Hotkey.Toggle, func() {
			_ = sw.Publish(ctx, trigger.New(trigger.HotkeyToggle))
		}); err != nil {
			return fmt.Errorf("toggle hotkey: %w", err)
		}
		log.Info("registered toggle hotkey", zap.String("hotkey", cfg.Hotkey.Toggle))
	}

	actions := controlActions{client: client, sw: sw}
	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.NewServer(func() api.Status {
			st := api.Status{
				Role:       cfg.Role,
				Name:       cfg.Name,
				Version:    version,
				Mode:       sw.Mode().String(),
				Connection: client.State().String(),
			}
			if info, ok := client.Session(); ok {
				st.Session = &info
			}
			return st
		}, actions, cfg.API.Token, log)
	}

	refresh := func() {
		if apiSrv != nil {
			apiSrv.Notify()
		}
		mode := sw.Mode()
		setStatus(ui, fmt.Sprintf("%s, %s", modeTitle(mode), client.State()), mode == switcher.Remote)
	}
	sw.OnModeChange(func(switcher.Mode, string) { refresh() })
	client.OnState(sw.ConnectionChanged)
	client.OnState(func(network.ConnState, network.SessionInfo) { refresh() })

	if ui != nil {
		ui.AddAction(tray.Action{Title: "Toggle control", Callback: func() { _ = actions.Toggle(ctx) }})
		ui.AddAction(tray.Action{Title: "Connect", Callback: actions.Connect})
		ui.AddAction(tray.Action{Title: "Disconnect", Callback: actions.Disconnect})
	}
	refresh()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() {
		if err := hooks.Run(ctx); err != nil {
			log.Error("global hooks stopped", zap.Error(err))
		}
	})
	spawn(func() { hk.Run(ctx, hooks.Keys()) })
	spawn(func() { _ = sw.Run(ctx) })
	if apiSrv != nil {
		spawn(func() {
			// The API is optional; keep running without it.
			if err := apiSrv.Start(ctx, cfg.API.Port); err != nil {
				log.Warn("API server unavailable", zap.Error(err))
			}
		})
	}

	addr := cfg.Network.TargetAddr()
	if addr == "" {
		log.Warn("no target configured; use -target or the API to connect")
	}
	client.Start(ctx, cfg.Network.AutoConnect && addr != "")

	detErr := make(chan error, 1)
	spawn(func() { detErr <- det.Run(ctx) })

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-detErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("edge sampling failed, returning control", zap.Error(err))
			runErr = err
		}
	}

	// Cancelling forces Local, which releases the grab before we exit.
	cancel()
	client.Close()
	wg.Wait()
	return runErr
}

func modeTitle(m switcher.Mode) string {
	if m == switcher.Remote {
		return "Remote"
	}
	return "Local"
}

// samplingPointer returns the pointer the edge detector polls.
func samplingPointer(cfg *config.Config, log *zap.Logger) (edge.Pointer, func()) {
	if cfg.Input.Pointer == "x11" {
		p, err := x11.NewPointer()
		if err == nil {
			return p, p.Close
		}
		log.Warn("X11 pointer unavailable, using robotgo", zap.Error(err))
	}
	return robot.NewPointer(), func() {}
}

// captureDevice picks the grab backend for remote mode. A forced backend is
// used as is; auto chains the native grabs that look usable, ending with warp.
func captureDevice(cfg *config.Config, hooks *robot.Hooks, log *zap.Logger) input.InputCapture {
	warp := robot.NewWarpCapture(hooks, robot.NewPointer(), log)
	switch cfg.Input.Grab {
	case "warp":
		log.Info("pointer capture backend", zap.String("grab", "warp"))
		return warp
	case "evdev":
		log.Info("pointer capture backend", zap.String("grab", "evdev"))
		evdevHint(log)
		return evdev.New(log)
	case "rawinput":
		log.Info("pointer capture backend", zap.String("grab", "rawinput"))
		return wintrap.New(log)
	case "eventtap":
		log.Info("pointer capture backend", zap.String("grab", "eventtap"))
		return mactap.New(log)
	}

	var backends []input.Backend
	if evdev.Available() {
		backends = append(backends, input.Backend{Name: "evdev", Capture: evdev.New(log)})
	} else if runtime.GOOS == "linux" {
		evdevHint(log)
	}
	if wintrap.Available() {
		backends = append(backends, input.Backend{Name: "rawinput", Capture: wintrap.New(log)})
	}
	if mactap.Available() {
		backends = append(backends, input.Backend{Name: "eventtap", Capture: mactap.New(log)})
	} else if runtime.GOOS == "darwin" {
		log.Info("event tap capture needs Accessibility access, using warp")
	}
	backends = append(backends, input.Backend{Name: "warp", Capture: warp})

	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name
	}
	log.Info("pointer capture backends", zap.Strings("order", names))
	return input.NewFallback(log, backends...)
}

func evdevHint(log *zap.Logger) {
	if !osutils.IsAdmin() {
		log.Info("evdev grab needs read access to /dev/input (root or the input group)")
	}
}
