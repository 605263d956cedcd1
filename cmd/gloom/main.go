package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/FukkitMC/gloom/cmd/gloom/commands"
)

// stopSignals cancel the command context.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), stopSignals...)
	err := commands.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
