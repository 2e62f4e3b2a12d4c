package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiosk-next/kioskd/cli"
	"github.com/kiosk-next/kioskd/commands"
	"github.com/kiosk-next/kioskd/utils"
)

func main() {
	// setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// run command in goroutine
	done := make(chan error, 1)
	go func() {
		done <- cli.Execute()
	}()

	// wait for command completion or signal
	select {
	case sig := <-sigChan:
		utils.Info("received %s, shutting down", sig)
		// stop scheduling launches; the foreground application keeps running
		commands.Shutdown()
		if err := <-done; err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case err := <-done:
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
