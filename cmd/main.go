// ZedLink - share one mouse between two computers
// The controller streams pointer events to the target once the cursor
// crosses a screen edge or the toggle hotkey is pressed.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"zedlink/internal/autostart"
	"zedlink/internal/config"
	"zedlink/internal/logging"
	"zedlink/internal/network"
	"zedlink/internal/osutils"
	"zedlink/internal/tray"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to a YAML or JSON config file")
	roleFlag   = flag.String("role", "", "controller or target (overrides config)")
	targetFlag = flag.String("target", "", "Target host:port to control (controller)")
	listenFlag = flag.String("listen", "", "Address to accept a controller on (target)")
	showVer    = flag.Bool("version", false, "Show version")
	dumpConfig = flag.Bool("dump-config", false, "Print the effective configuration as YAML and exit")
	initConfig = flag.String("init-config", "", "Write the default configuration to this path and exit")
	scanLAN    = flag.Bool("scan", false, "Scan the LAN for targets and exit")
	noTray     = flag.Bool("no-tray", false, "Do not show the tray icon")
	autoStart  = flag.String("autostart", "", "on, off or status: manage starting on login")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("zedlink version %s\n", version)
		return
	}

	if *initConfig != "" {
		if err := config.Default().Save(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default configuration to %s\n", *initConfig)
		return
	}

	if *autoStart != "" {
		if err := handleAutostart(*autoStart); err != nil {
			fmt.Fprintf(os.Stderr, "autostart: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := applyFlags(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "flags: %v\n", err)
		os.Exit(2)
	}

	if *dumpConfig {
		out, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "dump config: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *scanLAN {
		runScan(ctx, cfg, logger)
		return
	}

	if err := runService(ctx, cfg, logger); err != nil {
		logger.Error("zedlink stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// applyFlags layers command line overrides on top of the loaded config.
func applyFlags(cfg *config.Config) error {
	if *roleFlag != "" {
		cfg.Role = *roleFlag
	}
	if *targetFlag != "" {
		host, port, err := net.SplitHostPort(*targetFlag)
		if err != nil {
			// bare host
			host, port = *targetFlag, strconv.Itoa(cfg.Network.TargetPort)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid -target port %q", port)
		}
		cfg.Network.TargetHost, cfg.Network.TargetPort = host, p
	}
	if *listenFlag != "" {
		cfg.Network.ListenAddr = *listenFlag
	}
	return cfg.Validate()
}

func handleAutostart(action string) error {
	switch action {
	case "on":
		var args []string
		if *configPath != "" {
			abs, err := filepath.Abs(*configPath)
			if err != nil {
				return err
			}
			args = append(args, "-config", abs)
		}
		if *roleFlag != "" {
			args = append(args, "-role", *roleFlag)
		}
		if err := autostart.Enable(args...); err != nil {
			return err
		}
		fmt.Println("Autostart enabled")
	case "off":
		if err := autostart.Disable(); err != nil {
			return err
		}
		fmt.Println("Autostart disabled")
	case "status":
		fmt.Printf("Autostart enabled: %v\n", autostart.IsEnabled())
	default:
		return fmt.Errorf("unknown action %q (want on, off or status)", action)
	}
	return nil
}

func runScan(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	log.Info("scanning LAN for targets", zap.Int("api_port", cfg.API.Port))
	hosts, err := network.ScanLAN(ctx, cfg.API.Port)
	if err != nil {
		log.Error("scan failed", zap.Error(err))
		return
	}
	if len(hosts) == 0 {
		fmt.Println("No targets found")
		return
	}
	for _, h := range hosts {
		fmt.Printf("%-21s %s\n", h.Address(), h.Name)
	}
}

// runService runs the configured role. With a tray the role runs on a
// worker goroutine because the tray loop must own the main goroutine.
func runService(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ui *tray.Tray
	if cfg.Tray && !*noTray {
		ui = tray.New("ZedLink", func() {
			log.Info("quit requested from tray")
			cancel()
		})
	}

	run := func() error {
		log.Info("ZedLink starting", zap.String("role", cfg.Role), zap.String("version", version))
		if cfg.Role == config.RoleTarget {
			return runTarget(ctx, cfg, log, ui)
		}
		return runController(ctx, cfg, log, ui)
	}

	if cfg.API.Enabled {
		go openPort("ZedLink API", cfg.API.Port, log)
	}
	if cfg.Role == config.RoleTarget {
		go openPort("ZedLink Target", listenPort(cfg.Network.ListenAddr), log)
	}

	if ui == nil {
		return run()
	}

	errc := make(chan error, 1)
	go func() {
		errc <- run()
		cancel()
	}()
	go func() {
		<-ctx.Done()
		ui.Stop()
	}()
	ui.Run()
	cancel()
	return <-errc
}

func openPort(rule string, port int, log *zap.Logger) {
	if port == 0 {
		return
	}
	if err := osutils.EnsureFirewallRule(rule, port, log); err != nil {
		log.Warn("firewall rule not applied", zap.String("rule", rule), zap.Error(err))
	}
}

func setStatus(ui *tray.Tray, text string, remote bool) {
	if ui != nil {
		ui.SetStatus(text, remote)
	}
}

func listenPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
