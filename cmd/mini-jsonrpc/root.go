package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-jsonrpc/config"
	"mini-jsonrpc/logging"
	"mini-jsonrpc/registry"
)

var version = "dev"

// app carries what every subcommand needs after flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	closers    []io.Closer // Released after the command runs
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "mini-jsonrpc",
		Short:         "Symmetric JSON-RPC 2.0 over framed TCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			for _, c := range a.closers {
				c.Close()
			}
			if a.logger != nil {
				a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"config file (.json, .yaml or .yml; default $"+config.EnvConfigFile+")")

	rootCmd.AddCommand(newServeCmd(a), newCallCmd(a), newNotifyCmd(a))
	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// registry returns the etcd registry when endpoints are configured, nil otherwise.
func (a *app) registry() (*registry.EtcdRegistry, error) {
	if len(a.cfg.Registry.Endpoints) == 0 {
		return nil, nil
	}
	reg, err := registry.NewEtcdRegistry(a.cfg.Registry.Endpoints, a.cfg.DialTimeout(), a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, reg)
	return reg, nil
}
