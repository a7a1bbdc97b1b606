package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/yok-tottii/micloop/internal/audio"
	"github.com/yok-tottii/micloop/internal/config"
	"github.com/yok-tottii/micloop/internal/echo"
	"github.com/yok-tottii/micloop/internal/logger"
	"github.com/yok-tottii/micloop/internal/permissions"
	"github.com/yok-tottii/micloop/internal/session"
)

const version = "0.1.0"

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1 // device open, allocation or device I/O failure
	exitUsage   = 2 // invalid arguments or configuration
)

// openDevice is replaced in tests
var openDevice = func(c audio.Config, warn audio.WarnFunc) (audio.Device, error) {
	return audio.Open(c, warn)
}

// listDevices is replaced in tests
var listDevices = audio.ListDevices

// Microphone access hooks, replaced in tests
var (
	microphoneStatus       = permissions.CheckMicrophonePermission
	openMicrophoneSettings = permissions.RequestMicrophonePermission
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// overrideFlags are the flags that map onto config file settings
var overrideFlags = []string{
	"backend", "device", "dsp", "rate", "channels", "format", "frames", "latency", "log-level", "log-dir",
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("micloop", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: micloop [flags] [delay]\n\n")
		fmt.Fprintf(stderr, "Loops the microphone back to the speakers, optionally delayed by\n")
		fmt.Fprintf(stderr, "0 to %g seconds.\n\nflags:\n", config.MaxDelay)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", config.GetConfigPath(), "configuration file")
	fs.String("backend", "", "audio backend: portaudio | oss")
	fs.String("device", "", "PortAudio device index (-1 = system default)")
	fs.String("dsp", "", "OSS device path")
	fs.String("rate", "", "sample rate in Hz")
	fs.String("channels", "", "channel count")
	fs.String("format", "", "sample format: u8 | s16le")
	fs.String("frames", "", "frames per buffer")
	fs.String("latency", "", "latency: low | high")
	fs.String("log-level", "", "log level: debug | info | warn | error")
	fs.String("log-dir", "", "directory for daily log files")
	list := fs.Bool("list-devices", false, "list duplex audio devices and exit")
	writeConfig := fs.Bool("write-config", false, "write the effective configuration to the config file and exit")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *showVersion {
		fmt.Fprintf(stdout, "micloop %s\n", version)
		return exitOK
	}

	if *list {
		return printDevices(stdout, stderr)
	}

	// The delay is checked before anything else is touched
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "[micloop]: expected at most one delay argument, got %d\n", fs.NArg())
		return exitUsage
	}
	delay, err := config.ParseDelay(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "[micloop]: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(fs, *configPath)
	if err != nil {
		fmt.Fprintf(stderr, "[micloop]: %v\n", err)
		return exitUsage
	}

	if *writeConfig {
		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(stderr, "[micloop]: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "wrote %s\n", *configPath)
		return exitOK
	}

	engineConfig, err := cfg.EngineConfig()
	if err != nil {
		fmt.Fprintf(stderr, "[micloop]: %v\n", err)
		return exitUsage
	}

	log, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "[micloop]: %v\n", err)
		return exitFailure
	}
	defer log.Close()

	log.Debug("micloop v%s, config %s, delay buffer limit %d bytes", version, *configPath, engineConfig.MaxBytes)

	audioConfig := cfg.AudioConfig()
	if audioConfig.Backend == audio.BackendPortAudio {
		checkMicrophone(log)
	}

	dev, err := openDevice(audioConfig, log.Warn)
	if err != nil {
		log.Error("can not open audio device: %v", err)
		return exitFailure
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Warn("failed to close %s: %v", dev.Name(), err)
		}
	}()
	log.Info("opened %s (%s, %d Hz, %d ch, %s)", dev.Name(), audioConfig.Backend,
		audioConfig.SampleRate, audioConfig.Channels, audioConfig.Format)

	opts := session.DefaultOptions()
	opts.Delay = delay
	opts.Engine = engineConfig
	opts.Logger = log
	if frame, ok := dev.(interface{ FrameBytes() int }); ok {
		opts.ChunkSize = min(frame.FrameBytes(), echo.MaxChunk)
	}

	if _, err := session.Run(ctx, dev, opts); err != nil {
		if errors.Is(err, echo.ErrBufferExhausted) {
			log.Error("can't size the delay buffer: %v", err)
		} else {
			log.Error("loop failed: %v", err)
		}
		return exitFailure
	}

	return exitOK
}

// loadConfig reads the config file and applies the flags set on the command line
func loadConfig(fs *flag.FlagSet, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		for _, name := range overrideFlags {
			if f.Name == name {
				overrides[name] = f.Value.String()
			}
		}
	})
	if err := cfg.Apply(overrides); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// checkMicrophone warns when recording is not authorized and, if the user
// denied it, opens the settings where access can be granted
func checkMicrophone(log *logger.Logger) {
	status := microphoneStatus()
	if status == permissions.PermissionAuthorized {
		return
	}

	log.Warn("microphone access: %s, the loop will only hear silence",
		permissions.GetPermissionStatusMessage(status))

	if status == permissions.PermissionDenied {
		if err := openMicrophoneSettings(); err != nil {
			log.Warn("failed to open microphone settings: %v", err)
			return
		}
		log.Info("opened the microphone privacy settings, restart micloop after granting access")
	}
}

func newLogger(cfg *config.Config, console io.Writer) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logDir, err := cfg.GetLogDir()
	if err != nil {
		return nil, err
	}

	loggerConfig := logger.DefaultConfig()
	loggerConfig.LogDir = logDir
	loggerConfig.Level = level
	loggerConfig.Console = console
	return logger.New(loggerConfig)
}

func printDevices(stdout, stderr io.Writer) int {
	devices, err := listDevices()
	if err != nil {
		fmt.Fprintf(stderr, "[micloop]: %v\n", err)
		return exitFailure
	}

	for _, dev := range devices {
		marker := " "
		if dev.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %3d  %s\n", marker, dev.ID, dev.Name)
	}
	return exitOK
}
