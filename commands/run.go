package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kiosk-next/kioskd/config"
	"github.com/kiosk-next/kioskd/gesture"
	"github.com/kiosk-next/kioskd/input"
	"github.com/kiosk-next/kioskd/launcher"
	"github.com/kiosk-next/kioskd/server"
	"github.com/kiosk-next/kioskd/service"
	"github.com/kiosk-next/kioskd/supervisor"
	"github.com/kiosk-next/kioskd/utils"
)

const serverStopTimeout = 3 * time.Second

// RunService wires the full daemon (launcher, supervisor, controller,
// control server) and blocks until shutdown is requested via signal or RPC.
func RunService(cfg *config.Config, version string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerShutdown(cancel)

	execLauncher := launcher.NewExecLauncher(cfg.StartupGrace)
	sup := supervisor.New(execLauncher)

	policy := supervisor.Policy{
		{Spec: cfg.Primary, OnExit: supervisor.AdvanceToFallback, FallbackIndex: 1},
		{Spec: cfg.Fallback, OnExit: supervisor.RestartSame},
	}

	controller, err := service.New(service.Options{
		Gesture: gesture.Config{TargetTaps: cfg.TargetTaps, Window: cfg.Window},
		Policy:  policy,
		// primary is reached only via a confirmed gesture
		PrimaryIndex:  0,
		FallbackIndex: 1,
		Runner:        sup,
		OpenSource: func() (input.EventSource, error) {
			return input.Open(cfg.ScanOptions())
		},
		RestartDelay:      cfg.RestartDelay,
		RetryInitialDelay: cfg.RetryInitialDelay,
		RetryMaxDelay:     cfg.RetryMaxDelay,
	})
	if err != nil {
		return err
	}

	ctrlServer := server.New(controller, cancel, func() (interface{}, error) {
		response := DoctorCommand(version, cfg)
		if response.Status == "error" {
			return nil, fmt.Errorf("%s", response.Error)
		}
		return response.Data, nil
	})
	go func() {
		if err := ctrlServer.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("control server failed: %v", err)
		}
	}()

	utils.Info("kioskd %s starting (taps=%d window=%s)", version, cfg.TargetTaps, cfg.Window)
	controller.Run(ctx)
	utils.Info("supervision ended, shutting down")

	stopCtx, stop := context.WithTimeout(context.Background(), serverStopTimeout)
	defer stop()
	return ctrlServer.Stop(stopCtx)
}
