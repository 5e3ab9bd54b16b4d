package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/jmerta/cadence-coach/internal/bt"
	"github.com/jmerta/cadence-coach/internal/coach"
)

// channelLogWriter forwards log lines to the UI log pane. Writes never
// block: if the channel is full the line is dropped (the file log still
// has it).
type channelLogWriter struct {
	ch chan<- string
}

func (w *channelLogWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	select {
	case w.ch <- line:
	default:
	}
	return len(p), nil
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cadence-coach.log"
	}
	return filepath.Join(home, ".cadence-coach", "logs", "cadence-coach.log")
}

func main() {
	pflag.Bool("mock", false, "use simulated heart-rate straps instead of real Bluetooth")
	pflag.String("log-file", defaultLogPath(), "path to the rotating log file")
	pflag.Float64("sensitivity", coach.DefaultSensitivity, "initial sensitivity (1=very sensitive, 5=very tolerant)")
	pflag.Duration("tick-period", coach.DefaultTickPeriod, "control loop tick period")
	pflag.Duration("evaluation-delay", coach.DefaultEvaluationDelay, "delay before an experiment is evaluated")
	pflag.Duration("cooldown", coach.DefaultCooldown, "minimum spacing between experiment starts")
	pflag.Duration("scan-timeout", bt.DefaultScanTimeout, "how long a scan result stays listed without being seen again")
	pflag.Parse()

	viper.SetEnvPrefix("CADENCE_COACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	logPath := viper.GetString("log-file")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	defer fileWriter.Close()

	// The UI log pane tails the same stream as the file
	uiLogChan := make(chan string, 256)
	logger := log.New(io.MultiWriter(fileWriter, &channelLogWriter{ch: uiLogChan}), "", log.LstdFlags)

	logger.Println("cadence-coach starting")

	var manager bt.ManagerInterface
	if viper.GetBool("mock") {
		logger.Println("Using mock Bluetooth manager (simulated straps)")
		manager = coach.NewMockBTManager(logger)
	} else {
		manager = bt.NewManager(bluetooth.DefaultAdapter, logger, viper.GetDuration("scan-timeout"))
	}

	if err := manager.Enable(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable Bluetooth: %v\n", err)
		logger.Printf("Failed to enable Bluetooth: %v", err)
		os.Exit(1)
	}

	model := coach.NewCoachModel(manager, logger, uiLogChan)

	optimiser := coach.NewOptimiser(model, coach.NewTerminalCueEmitter(logger), logger, coach.OptimiserConfig{
		TickPeriod:      viper.GetDuration("tick-period"),
		EvaluationDelay: viper.GetDuration("evaluation-delay"),
		Cooldown:        viper.GetDuration("cooldown"),
		Sensitivity:     viper.GetFloat64("sensitivity"),
	})

	deviceHandler := coach.NewDeviceHandler(model, manager, optimiser, logger)
	exporter := coach.NewSessionExporter(logger)
	controller := coach.NewUIController(model, deviceHandler, optimiser, exporter, logger)

	app := tview.NewApplication()
	viewImpl := coach.NewCursesUIView(logger, app, model)
	baseView := coach.NewBaseUIView(coach.NewBaseUIViewArg{
		UIViewImpl:   viewImpl,
		Model:        model,
		UIController: controller,
		Logger:       logger,
	})

	runErr := baseView.Run()

	logger.Println("cadence-coach shutting down")
	controller.Shutdown()
	baseView.Shutdown()
	model.Shutdown()
	manager.Shutdown()
	logger.Println("cadence-coach shutdown complete")

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "UI error: %v\n", runErr)
		os.Exit(1)
	}
}
