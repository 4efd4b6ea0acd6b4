package main

import (
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/spf13/cobra"

	"colortrack/internal/capture"
	"colortrack/internal/config"
	"colortrack/internal/hotkey"
	"colortrack/internal/telemetry"
	"colortrack/internal/tracker"
)

const statsLogInterval = 30 * time.Second

var (
	configPath string
	profile    string
	exportJSON string
	exportCSV  string
)

var rootCmd = &cobra.Command{
	Use:   "colortrack",
	Short: "Real-time color marker tracker",
	Long: `Tracks a configured color marker on the display and keeps the pointer
locked onto it with predictive smoothing. Control is through global
hotkeys; settings live in a JSON config file next to the binary.`,
	RunE: run,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage named settings profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New(configPath)
		names, err := cfg.ListProfiles()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save current settings as a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New(configPath)
		if err := cfg.Load(); err != nil {
			return err
		}
		return cfg.SaveProfile(args[0])
	},
}

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Set the target color from the pixel under the cursor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New(configPath)
		if err := cfg.Load(); err != nil {
			return err
		}

		x, y := robotgo.Location()
		sampler := capture.NewSampler(capture.NewScreenBackend())
		defer sampler.Close()
		frame, err := sampler.Sample(image.Rect(x, y, x+1, y+1))
		if err != nil {
			return err
		}
		color := uint32(frame.Pix[0])<<16 | uint32(frame.Pix[1])<<8 | uint32(frame.Pix[2])

		cfg.Update(func(s *config.Settings) { s.TargetColor = color })
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("target color set to #%06X (picked at %d,%d)\n", color, x, y)
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.New(configPath).DeleteProfile(args[0])
	},
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "colortrack: ", log.LstdFlags)

	cfg := config.New(configPath)
	if err := cfg.Load(); err != nil {
		return err
	}
	if profile != "" {
		if err := cfg.LoadProfile(profile); err != nil {
			return err
		}
		logger.Printf("loaded profile %q", profile)
	}

	rec := telemetry.NewRecorder()

	eng, err := tracker.New(cfg, rec)
	if err != nil {
		return err
	}
	defer eng.Close()

	snap := cfg.Snapshot()
	logger.Printf("target color #%06X tolerance %d, fov %dx%d, %d Hz",
		snap.TargetColor, snap.ColorTolerance, snap.FOVX, snap.FOVY, snap.TargetFPS)
	logger.Printf("press %s to start, %s to stop, ctrl-c to quit",
		snap.StartKey, snap.StopKey)

	keys := hotkey.New(&engineControl{cfg: cfg, eng: eng}, snap.StartKey, snap.StopKey)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statsDone := make(chan struct{})
	go logStats(logger, rec, eng, statsDone)

	go func() {
		<-sigChan
		logger.Println("shutting down")
		keys.Shutdown()
	}()

	keys.Run()

	close(statsDone)
	eng.Stop()

	if err := cfg.Save(); err != nil {
		logger.Printf("saving settings: %v", err)
	}
	if exportJSON != "" {
		if err := exportTo(exportJSON, rec.ExportJSON); err != nil {
			logger.Printf("exporting telemetry: %v", err)
		}
	}
	if exportCSV != "" {
		if err := exportTo(exportCSV, rec.ExportCSV); err != nil {
			logger.Printf("exporting telemetry: %v", err)
		}
	}
	return nil
}

func exportTo(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// engineControl gates hotkey start/stop through the global enable flag so
// the key bindings and the config surface agree on whether tracking runs.
type engineControl struct {
	cfg *config.Config
	eng *tracker.Engine
}

func (c *engineControl) Start() error {
	c.cfg.SetEnabled(true)
	return c.eng.Start()
}

func (c *engineControl) Stop() {
	c.cfg.SetEnabled(false)
	c.eng.Stop()
}

func logStats(logger *log.Logger, rec *telemetry.Recorder, eng *tracker.Engine, done <-chan struct{}) {
	t := time.NewTicker(statsLogInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
		}
		if eng.State() != tracker.Running {
			continue
		}
		s := rec.Snapshot()
		logger.Printf("fps %.0f (1%%-low %.0f), frame avg %.2fms worst %.2fms, missed %d/%d",
			s.FPS, s.OnePercentLowFPS, s.AvgFrameMs, s.WorstFrameMs, s.MissedFrames, s.TotalFrames)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "settings file path")
	rootCmd.Flags().StringVarP(&profile, "profile", "p", "", "load a named profile before starting")
	rootCmd.Flags().StringVar(&exportJSON, "export-json", "", "write telemetry JSON to this path on exit")
	rootCmd.Flags().StringVar(&exportCSV, "export-csv", "", "write telemetry CSV to this path on exit")

	profileCmd.AddCommand(profileListCmd, profileSaveCmd, profileDeleteCmd)
	rootCmd.AddCommand(profileCmd, pickCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
