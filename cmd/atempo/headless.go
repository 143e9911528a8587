package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	orchestration "github.com/atempo-ai/atempo-core/core"
	"github.com/atempo-ai/atempo-core/core/events"
)

// runHeadless runs one session without the TUI, printing status transitions
// and tool activity until the session ends or the process is interrupted.
func runHeadless(build buildOrchestrator) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := build(
		func(status orchestration.Status) {
			if status.Kind == orchestration.StatusError {
				fmt.Printf("status: %s (%s)\n", status.Kind, status.Message)
				return
			}
			fmt.Printf("status: %s\n", status.Kind)
		},
		func(event events.Event) {
			if line := describeEvent(event); line != "" {
				fmt.Println(line)
			}
		},
	)

	fmt.Println("connecting...")
	if err := orchestrator.Start(ctx); err != nil {
		return err
	}
	fmt.Println("session live, speak now (ctrl+c to stop)")

	<-orchestrator.Done()
	return orchestrator.Err()
}

func describeEvent(event events.Event) string {
	switch e := event.(type) {
	case events.SessionEstablished:
		return "session established"
	case events.SessionEnded:
		if e.Err != "" {
			return "session ended: " + e.Err
		}
		return "session ended"
	case events.InterruptionHandled:
		return fmt.Sprintf("interrupted, dropped %d queued frames", e.DroppedFrames)
	case events.ToolCallStarted:
		return fmt.Sprintf("tool %s %s", e.Name, e.Arguments)
	case events.ToolCallCompleted:
		return fmt.Sprintf("tool %s -> %s", e.Name, e.Result)
	case events.ToolCallFailed:
		return fmt.Sprintf("tool %s failed: %s", e.Name, e.Error)
	}
	return ""
}
