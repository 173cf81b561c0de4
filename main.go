/*
Penumbra renders a scene with deferred lighting and per-light shadow maps.
Without flags it opens the built-in scene with the default configuration.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/penumbra/engine"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/testbed"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	scenePath  string
	logLevel   string
	validation bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "penumbra",
		Short:         "Deferred Vulkan renderer with shadow mapping",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	cmd.Flags().StringVarP(&opts.scenePath, "scene", "s", "", "TOML scene file, watched for changes")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, error or fatal")
	cmd.Flags().BoolVar(&opts.validation, "validation", false, "enable the Vulkan validation layers")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *options) error {
	config, err := core.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.scenePath != "" {
		config.Scene = opts.scenePath
	}
	if opts.logLevel != "" {
		config.Log.Level = opts.logLevel
	}
	if cmd.Flags().Changed("validation") {
		config.Renderer.Validation = opts.validation
	}
	if err := core.SetLogLevel(config.Log.Level); err != nil {
		return err
	}

	e, err := engine.New(config, testbed.NewTestGame().Game)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return err
	}
	defer e.Shutdown()

	return e.Run(ctx)
}

func main() {
	// signal context to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		core.LogError("%s", err)
		stop()
		os.Exit(1)
	}
}
