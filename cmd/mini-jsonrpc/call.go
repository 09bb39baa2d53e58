package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mini-jsonrpc/client"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/registry"
)

// target selects the instances a call goes to.
type target struct {
	addr    string
	service string
}

func (t *target) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.addr, "addr", "a", "", "server address (skips discovery)")
	cmd.Flags().StringVarP(&t.service, "service", "s", "", "service name to discover (default server.service)")
}

func newCallCmd(a *app) *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "call METHOD [PARAM...]",
		Short: "Call a method and print its result as JSON",
		Long:  "Call a method and print its result as JSON. Each PARAM is a JSON literal.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			cli, err := a.client(t)
			if err != nil {
				return err
			}
			defer cli.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.CallTimeout())
			defer cancel()

			var result json.RawMessage
			if err := cli.Call(ctx, args[0], &result, params...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}
	t.bind(cmd)
	return cmd
}

func newNotifyCmd(a *app) *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "notify METHOD [PARAM...]",
		Short: "Send a notification",
		Long:  "Send a notification. Each PARAM is a JSON literal. Nothing is printed.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			cli, err := a.client(t)
			if err != nil {
				return err
			}
			defer cli.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.CallTimeout())
			defer cancel()
			return cli.Notify(ctx, args[0], params...)
		},
	}
	t.bind(cmd)
	return cmd
}

// client builds a client for t: a static registry holding t.addr, or etcd discovery.
func (a *app) client(t target) (*client.Client, error) {
	cfg := a.cfg
	service := t.service
	if service == "" {
		service = cfg.Server.Service
	}

	var reg registry.Registry
	if t.addr != "" {
		reg = registry.NewStaticRegistry(service, registry.ServiceInstance{Addr: t.addr})
	} else {
		etcd, err := a.registry()
		if err != nil {
			return nil, err
		}
		if etcd == nil {
			return nil, fmt.Errorf("no --addr given and no registry endpoints configured")
		}
		reg = etcd
	}

	bal, err := loadbalance.New(cfg.Client.Balancer)
	if err != nil {
		return nil, err
	}
	return client.NewClient(service, reg, bal, cfg.CodecType(), cfg.Client.PoolSize,
		client.WithLogger(a.logger),
		client.WithHeartbeat(cfg.Heartbeat())), nil
}

// parseParams decodes each argument as a JSON literal.
func parseParams(args []string) ([]any, error) {
	params := make([]any, len(args))
	for i, arg := range args {
		if !json.Valid([]byte(arg)) {
			return nil, fmt.Errorf("param %d is not valid JSON: %s", i+1, arg)
		}
		params[i] = json.RawMessage(arg)
	}
	return params, nil
}
