// ABOUTME: Entry point for the dialog output client
// ABOUTME: Parses CLI flags, selects the audio backend and runs the dialog manager
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Resonate-Protocol/dialog-go/internal/app"
	"github.com/Resonate-Protocol/dialog-go/internal/config"
	"github.com/Resonate-Protocol/dialog-go/internal/discovery"
	"github.com/Resonate-Protocol/dialog-go/internal/filesource"
	"github.com/Resonate-Protocol/dialog-go/internal/ui"
	"github.com/Resonate-Protocol/dialog-go/internal/version"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/output"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/wav"
	"github.com/Resonate-Protocol/dialog-go/pkg/dialog"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	configPath  = flag.String("config", "", "Config file (default: search for dialog.yaml)")
	serverAddr  = flag.String("server", "", "Backend address host:port (skip mDNS)")
	name        = flag.String("name", "", "Client friendly name (default: hostname-dialog)")
	backendName = flag.String("backend", "", "Audio backend: malgo, oto, portaudio, null")
	formatLabel = flag.String("format", "", "Format requested from the backend, e.g. audio-24khz-48kbitrate-mono-mp3")
	query       = flag.String("query", "", "Send this text to the backend after connecting")
	play        = flag.String("play", "", "Comma-separated audio files to play instead of connecting")
	export      = flag.String("export", "", "Write the -play file to this .wav path instead of playing it")
	capture     = flag.String("capture", "", "Also record everything played to this .wav file")
	listDevices = flag.Bool("list-devices", false, "List playback devices and exit")
	logFile     = flag.String("log-file", "", "Log file path (default from config: dialog.log)")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg)

	useTUI := !*noTUI && *play == "" && *export == "" && !*listDevices

	f, err := os.OpenFile(cfg.Logging.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// TUI mode logs only to the file; otherwise logs stream to stdout too
	var logOut io.Writer = f
	if !useTUI {
		logOut = io.MultiWriter(os.Stdout, f)
	}
	logger := config.SetupLogging(cfg.Logging, logOut)
	logger.Info("starting dialog output", "name", cfg.Server.Name, "version", version.Version)

	backend, enum, closeBackend, err := openBackend(cfg.Audio.Backend, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	if *listDevices {
		return printDevices(enum)
	}

	outFormat, err := audio.FormatFromLabel(cfg.Audio.Format)
	if err != nil {
		return fmt.Errorf("audio.format: %w", err)
	}
	requestFormat, err := audio.FormatFromLabel(cfg.Audio.RequestFormat)
	if err != nil {
		return fmt.Errorf("audio.request_format: %w", err)
	}
	policy, err := parseFramePolicy(cfg.Audio.FramePolicy)
	if err != nil {
		return err
	}

	var captureWriter *wav.Writer
	if *capture != "" {
		cf, err := os.Create(*capture)
		if err != nil {
			return fmt.Errorf("create capture file: %w", err)
		}
		defer cf.Close()
		if captureWriter, err = wav.NewWriter(cf, outFormat); err != nil {
			return err
		}
		defer captureWriter.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(controls, cfg.Audio.Volume)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				logger.Error("TUI exited", "error", err)
			}
		}()
		defer tuiProg.Quit()
	}

	appConfig := app.Config{
		ServerAddr: cfg.Server.Addr,
		Path:       cfg.Server.Path,
		Token:      cfg.Server.Token,
		Name:       cfg.Server.Name,
		Discovery: discovery.Config{
			Service: cfg.Discovery.Service,
			Logger:  logger,
		},
		DiscoveryTimeout: cfg.Discovery.Timeout,
		RequestFormat:    requestFormat,
		Output: dialog.Config{
			Format:       outFormat,
			Backend:      backend,
			Enumerator:   enum,
			FrameSamples: cfg.Audio.FrameSamples,
			FramePolicy:  policy,
			Volume:       cfg.Audio.Volume,
			Logger:       logger,
		},
		WatchDevices: cfg.Devices.Watch,
		PollInterval: cfg.Devices.PollInterval,
		Controls:     controls,
		Logger:       logger,
	}
	if captureWriter != nil {
		appConfig.Output.Capture = captureWriter
	}
	if tuiProg != nil {
		appConfig.Status = func(msg ui.StatusMsg) { tuiProg.Send(msg) }
	}

	m, err := app.New(appConfig)
	if err != nil {
		return err
	}
	defer m.Close()

	if *export != "" {
		return exportFile(m, outFormat)
	}

	if *play != "" {
		return m.PlayFiles(ctx, strings.Split(*play, ","))
	}

	if cfg.Server.Addr == "" && !cfg.Discovery.Enabled {
		return errors.New("no server address and discovery disabled")
	}
	if err := m.Connect(ctx); err != nil {
		return err
	}

	if *query != "" {
		id, err := m.Query(*query)
		if err != nil {
			return err
		}
		logger.Info("query sent", "query", id)
	}

	err = m.Run(ctx)
	logger.Info("dialog output stopped")
	return err
}

// applyFlags overrides loaded config with flags that were set
func applyFlags(cfg *config.Config) {
	if *serverAddr != "" {
		cfg.Server.Addr = *serverAddr
	}
	if *name != "" {
		cfg.Server.Name = *name
	}
	if *backendName != "" {
		cfg.Audio.Backend = *backendName
	}
	if *formatLabel != "" {
		cfg.Audio.RequestFormat = *formatLabel
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
}

// openBackend creates the named output backend. The enumerator is nil when the
// backend cannot list devices.
func openBackend(name string, logger *slog.Logger) (output.Backend, output.Enumerator, func(), error) {
	switch strings.ToLower(name) {
	case "malgo", "":
		b, err := output.NewMalgo(logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return b, b, func() { b.Close() }, nil
	case "oto":
		return output.NewOto(logger), nil, func() {}, nil
	case "portaudio":
		b, err := output.NewPortAudio(logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return b, b, func() { b.Close() }, nil
	case "null":
		b := output.NewNull(logger, nil)
		return b, b, func() {}, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown audio backend %q", name)
}

func parseFramePolicy(s string) (dialog.FramePolicy, error) {
	switch strings.ToLower(s) {
	case "partial", "":
		return dialog.PushPartial, nil
	case "fill":
		return dialog.FillFromNext, nil
	}
	return 0, fmt.Errorf("unknown frame policy %q (partial or fill)", s)
}

func printDevices(enum output.Enumerator) error {
	if enum == nil {
		return errors.New("backend cannot list devices")
	}
	devices, err := enum.Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, d)
	}
	return nil
}

func exportFile(m *app.Manager, outFormat audio.Format) error {
	if *play == "" || strings.Contains(*play, ",") {
		return errors.New("-export needs exactly one -play file")
	}
	src, err := filesource.Open(*play, outFormat, audio.Format{})
	if err != nil {
		return err
	}
	defer src.Close()

	n, err := m.ExportFile(*export, dialog.FromReader(src))
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes of %s audio to %s\n", n, outFormat.Label(), *export)
	return nil
}
