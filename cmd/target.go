package main

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"zedlink/internal/api"
	"zedlink/internal/config"
	"zedlink/internal/input"
	"zedlink/internal/input/robot"
	"zedlink/internal/network"
	"zedlink/internal/tray"
)

func runTarget(ctx context.Context, cfg *config.Config, log *zap.Logger, ui *tray.Tray) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	act := input.NewActuator(robot.NewInjector(), input.MoveMode(cfg.Input.MoveMode), cfg.Input.Sensitivity)
	srv := network.NewServer(network.ServerConfig{
		Addr:        cfg.Network.ListenAddr,
		Takeover:    cfg.Network.Takeover,
		IdleTimeout: cfg.Network.IdleTimeout(),
	}, act, log)

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.NewServer(func() api.Status {
			st := api.Status{
				Role:       cfg.Role,
				Name:       cfg.Name,
				Version:    version,
				ListenPort: listenPort(cfg.Network.ListenAddr),
			}
			if p, ok := srv.ActivePeer(); ok {
				st.Peer = &p
			}
			return st
		}, nil, cfg.API.Token, log)
	}

	srv.OnPeer(func(info network.PeerInfo, connected bool) {
		if apiSrv != nil {
			apiSrv.Notify()
		}
		if connected {
			setStatus(ui, fmt.Sprintf("Controlled by %s", info.Client.Name), true)
		} else {
			setStatus(ui, "Waiting for controller", false)
		}
	})
	setStatus(ui, "Waiting for controller", false)

	var wg sync.WaitGroup
	if apiSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiSrv.Start(ctx, cfg.API.Port); err != nil {
				log.Warn("API server unavailable", zap.Error(err))
			}
		}()
	}

	w, h := act.ScreenSize()
	log.Info("target ready", zap.String("listen", cfg.Network.ListenAddr), zap.Int("screen_w", w), zap.Int("screen_h", h))
	err := srv.ListenAndServe(ctx)
	cancel()
	wg.Wait()
	return err
}
