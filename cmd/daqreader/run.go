package main

import (
	"os"
	"os/signal"
	"syscall"

	daqcore "github.com/vme-daq/strax-reader"
)

// runUntilSignal arms and starts the controller, then blocks until
// SIGINT/SIGTERM, at which point it stops gracefully.
func runUntilSignal(ctrl *daqcore.Controller, opts *daqcore.OptionStore, sig chan os.Signal) error {
	boardType := opts.GetString("board_type", "v1724")

	if err := ctrl.Arm(boardType, opts.Hostname()); err != nil {
		return err
	}
	if err := ctrl.Start(); err != nil {
		return err
	}

	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return ctrl.End()
}
