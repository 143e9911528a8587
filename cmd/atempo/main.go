// Command atempo runs the voice scheduling assistant: it connects the local
// microphone and speaker to a realtime conversational session and lets the
// model manage the user's calendar through tools.
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/atempo-ai/atempo-core/calendar"
	"github.com/atempo-ai/atempo-core/calendar/remote"
	"github.com/atempo-ai/atempo-core/config"
	orchestration "github.com/atempo-ai/atempo-core/core"
	"github.com/atempo-ai/atempo-core/core/audio/miniaudio"
	"github.com/atempo-ai/atempo-core/core/audio/portaudio"
	"github.com/atempo-ai/atempo-core/core/events"
	"github.com/atempo-ai/atempo-core/core/session/gemini"
)

//go:embed system_instruction.txt
var systemInstructionTemplate string

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	headless := flag.Bool("headless", false, "run without the terminal UI")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildOrchestrator assembles an orchestrator with the given front-end
// callbacks; the front end owns when it starts.
type buildOrchestrator func(onStatus func(orchestration.Status), onEvent func(events.Event)) *orchestration.Orchestrator

func run(configPath string, headless bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	backend, err := calendarBackend(cfg.Calendar)
	if err != nil {
		return err
	}
	registry, err := calendar.NewRegistry(backend)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}
	if err := registry.Validate(calendar.ToolNames); err != nil {
		return fmt.Errorf("tool surface mismatch: %w", err)
	}

	declarations := make([]gemini.FunctionDeclaration, 0, len(calendar.ToolNames))
	for _, declaration := range registry.Declarations() {
		declarations = append(declarations, gemini.FunctionDeclaration{
			Name:        declaration.Name,
			Description: declaration.Description,
			Parameters:  declaration.Parameters,
		})
	}

	currentTime, err := backend.CurrentTime(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read calendar time: %w", err)
	}

	dialer := gemini.NewDialer(gemini.Config{
		APIKey:            cfg.Engine.APIKey,
		Model:             cfg.Engine.Model,
		Host:              cfg.Engine.Host,
		SystemInstruction: fmt.Sprintf(systemInstructionTemplate, cfg.Calendar.Timezone, currentTime),
		Declarations:      declarations,
	})

	source, sink, closeAudio, err := audioDevices(cfg.Audio)
	if err != nil {
		return err
	}
	defer closeAudio()

	build := func(onStatus func(orchestration.Status), onEvent func(events.Event)) *orchestration.Orchestrator {
		return orchestration.NewOrchestrator(
			orchestration.WithAudioSource(source),
			orchestration.WithAudioSink(sink),
			orchestration.WithSessionDialer(dialer),
			orchestration.WithToolRegistry(registry),
			orchestration.WithToolTimeout(time.Duration(cfg.Tools.TimeoutSeconds)*time.Second),
			orchestration.WithCaptureQueueSize(cfg.Audio.CaptureQueueSize),
			orchestration.WithStatusCallback(onStatus),
			orchestration.WithEventCallback(onEvent),
		)
	}

	if headless {
		return runHeadless(build)
	}
	return runTUI(build)
}

func calendarBackend(cfg config.CalendarConfig) (calendar.Service, error) {
	if cfg.ServiceURL != "" {
		client, err := remote.NewClient(cfg.ServiceURL)
		if err != nil {
			return nil, fmt.Errorf("failed to build calendar client: %w", err)
		}
		return client, nil
	}

	store, err := calendar.NewStore(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar store: %w", err)
	}
	return store, nil
}

func audioDevices(cfg config.AudioConfig) (orchestration.AudioSource, orchestration.AudioSink, func() error, error) {
	switch cfg.Backend {
	case config.BackendPortaudio:
		client, err := portaudio.NewClient(cfg.FrameSamples)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open portaudio devices: %w", err)
		}
		return client.Capture(), client.Playback(), client.Close, nil
	default:
		client, err := miniaudio.NewClient(cfg.FrameSamples)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open miniaudio devices: %w", err)
		}
		return client.Capture(), client.Playback(), client.Close, nil
	}
}
