package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"remote-sync/cmd"
	"remote-sync/internal/util"
)

func main() {
	// Context used to issue graceful cancellation to the command tree.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	done := make(chan struct{})
	exitCode := 0

	// Run the CLI in a goroutine so signals can interrupt it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cmd.ExecuteContext(ctx); err != nil {
			exitCode = 1
		}
		close(done)
	}()

	select {
	case <-sig:
		util.Default.Println("\n⏹ interrupted, waiting for transfers to stop...")
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			util.Default.Println("⚠️  timeout waiting for shutdown, forcing exit")
			os.Exit(1)
		}
	case <-done:
	}

	wg.Wait()
	os.Exit(exitCode)
}
