// Package main is the entry point for posedriver, which drives a rigged
// 3D character from pose landmarks, an emotion preset and manual bone
// offsets.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Surajvthakur/Character-Model/internal/avatar3d"
	"github.com/Surajvthakur/Character-Model/internal/bus"
	"github.com/Surajvthakur/Character-Model/internal/config"
	"github.com/Surajvthakur/Character-Model/internal/control"
	"github.com/Surajvthakur/Character-Model/internal/logging"
	"github.com/Surajvthakur/Character-Model/internal/pose"
	"github.com/Surajvthakur/Character-Model/internal/renderer"
	"github.com/Surajvthakur/Character-Model/internal/scene"
	"github.com/Surajvthakur/Character-Model/internal/vision"
)

var (
	version   = "0.1.0"
	cfgPath   string
	modelPath string
	verbose   bool

	cfgManager *config.Manager
	cfg        *config.Config
	log        *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "posedriver",
		Short: "Drive a rigged character from pose landmarks",
		Long: `posedriver loads a rigged glTF character and animates it every frame
from a landmark stream, an emotion preset and manual bone offsets.

Run the driver:        posedriver
List skeleton bones:   posedriver bones
Print scene bounds:    posedriver bounds
Write a config file:   posedriver config init`,
		SilenceUsage:       true,
		PersistentPreRunE:  initConfig,
		PersistentPostRunE: closeLogging,
		RunE:               runDriver,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ./config.yaml or ~/.posedriver/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "", "model path, overrides model.path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("posedriver v%s\n", version)
		},
	})
	rootCmd.AddCommand(bonesCmd())
	rootCmd.AddCommand(boundsCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfgManager = config.NewManager()
	loaded, err := cfgManager.Load(cfgPath)
	if err != nil {
		return err
	}
	cfg = loaded
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if verbose {
		cfg.Logging.Level = logging.LevelDebug
	}

	log, err = logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if file := cfgManager.ConfigFile(); file != "" {
		log.Debug("main", "Configuration loaded", map[string]interface{}{"file": file})
	}
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	if log != nil {
		return log.Close()
	}
	return nil
}

func runDriver(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.NewEventBus()

	opts := avatar3d.DefaultOptions()
	opts.Rig = cfg.Rig
	opts.Compositor = cfg.Compositor()
	opts.Limits = cfg.Offsets
	opts.MaxDelta = cfg.Loop.MaxDelta
	opts.Bus = eventBus
	opts.Logger = log.Component("avatar")
	avatar := avatar3d.NewAvatar(opts)

	camera := renderer.NewDefaultCamera(cfg.Camera)
	framer := renderer.NewFramer(camera, cfg.Camera.Margin, log.Component("framer"))
	framer.Attach(eventBus)

	stream := vision.NewStreamClient(cfg.Landmarks, eventBus, log.Component("landmark-stream"))
	stream.SetFrameCallback(avatar.SetLandmarks)
	stream.SetErrorCallback(func(err error) {
		log.Warn("landmarks", "Estimator reported an error", map[string]interface{}{"error": err.Error()})
	})

	cfgManager.Watch(func(next *config.Config) {
		avatar.SetTuning(next.Compositor(), next.Offsets)
		framer.SetAspectRatio(next.Camera.Aspect)
		log.Info("main", "Configuration reloaded", nil)
	}, func(err error) {
		log.Warn("main", "Ignoring invalid configuration change", map[string]interface{}{"error": err.Error()})
	})

	errCh := make(chan error, 2)
	if cfg.Control.Enabled {
		server := control.NewServer(avatar, log.Component("control"))
		server.SetCamera(framer)
		server.SetLogHistory(log.GetHistory)
		server.Attach(eventBus)
		go func() {
			if err := server.ListenAndServe(ctx, cfg.Control.Addr); err != nil {
				errCh <- fmt.Errorf("control server: %w", err)
			}
		}()
	}

	if err := avatar.LoadModel(cfg.Model.Path); err != nil {
		log.Error("main", "Model failed to load; waiting for retry", err, map[string]interface{}{"path": cfg.Model.Path})
	}

	if err := stream.Connect(ctx); err != nil {
		log.Warn("main", "Landmark stream disabled", map[string]interface{}{"error": err.Error()})
	}
	defer stream.Disconnect()

	go func() {
		errCh <- avatar.Run(ctx, cfg.Loop.FPS)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
	}

	ticks, elapsed := avatar.Stats()
	log.Info("main", "Shutting down", map[string]interface{}{
		"ticks":   ticks,
		"elapsed": elapsed.String(),
		"frames":  stream.Frames(),
	})
	return nil
}

func loadScene() (*scene.Scene, *pose.BindPoseRegistry, error) {
	s, err := scene.Load(cfg.Model.Path)
	if err != nil {
		return nil, nil, err
	}
	registry := pose.NewBindPoseRegistry()
	s.RegisterBindPoses(registry)
	return s, registry, nil
}

func bonesCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "bones",
		Short: "List the skeleton's bones and their bind poses",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, registry, err := loadScene()
			if err != nil {
				return err
			}

			wanted := append(cfg.Rig.RetargetBones(), cfg.Rig.Neck, cfg.Rig.Spine)
			if missing := pose.MissingBones(s, wanted); len(missing) > 0 {
				fmt.Fprintf(os.Stderr, "rig bones not in skeleton: %v\n", missing)
			}

			switch format {
			case "yaml":
				poses := make(map[string]pose.BindPose, registry.Len())
				for _, name := range registry.Names() {
					bp, _ := registry.Get(name)
					poses[name] = bp
				}
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(poses)
			case "text":
				for _, name := range registry.Names() {
					bp, _ := registry.Get(name)
					fmt.Printf("%-32s rot=(%.4f, %.4f, %.4f) pos=(%.4f, %.4f, %.4f)\n",
						name, bp.Rotation[0], bp.Rotation[1], bp.Rotation[2],
						bp.Position[0], bp.Position[1], bp.Position[2])
				}
				return nil
			default:
				return fmt.Errorf("unknown format %q (use text or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or yaml")
	return cmd
}

func boundsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bounds",
		Short: "Print the model's bounding sphere and the camera framed on it",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := loadScene()
			if err != nil {
				return err
			}
			b := s.Bounds()
			if !b.Valid() {
				return fmt.Errorf("model has no measurable geometry")
			}

			camera := renderer.NewDefaultCamera(cfg.Camera)
			framer := renderer.NewFramer(camera, cfg.Camera.Margin, zerolog.Nop())
			framer.Frame("cli", b)
			view := framer.View()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"bounds": b,
				"camera": map[string]any{
					"position":   view.Position,
					"target":     view.Target,
					"distance":   view.Distance,
					"view":       view.View,
					"projection": view.Projection,
				},
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				dir, err := config.GetConfigDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "config.yaml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List configuration keys and their environment variables",
		Run: func(cmd *cobra.Command, args []string) {
			keys := config.Keys()
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-46s %s\n", k, config.EnvName(k))
			}
		},
	})
	return cmd
}
