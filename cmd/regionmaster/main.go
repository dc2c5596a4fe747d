// Copyright 2016 The regionmaster Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Command regionmaster runs the Master process: the Assignment
// Manager driven off a live coord-store, bootstrapping the cluster
// and then serving steady-state assign/unassign/balance/failover
// traffic until it loses its /master node (spec §4.F, §9 "Global
// Master state"). The CLI surface is grounded in pingcap-pd's
// cmd/pd-server and tools/pd-ctl: a cobra root command with a
// "server" subcommand to run, and a "version" subcommand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coredb/regionmaster/server/assign"
	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/config"
	"github.com/coredb/regionmaster/server/coordstore"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/kv"
	"github.com/coredb/regionmaster/server/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// version is stamped by the release tooling; the default "dev" is
// reported verbatim by the version subcommand during development
// builds, matching pd-server's PrintPDInfo placeholder pattern.
var version = "dev"

func main() {
	cfg := config.Default()
	root := &cobra.Command{
		Use:   "regionmaster",
		Short: "Region assignment core: the Master's Assignment Manager",
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(newServerCommand(cfg))
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print regionmaster's version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("regionmaster %s\n", version)
		},
	}
}

func newServerCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "run the Master process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cfg)
		},
	}
}

// loggingRPC is the RPC collaborator's production shape in this repo:
// the Master<->RegionServer wire protocol is explicitly out of scope
// (spec §6 "wire encoding out of scope"; SPEC_FULL.md Non-goals), so
// there is no real transport to dial here. It logs the calls an
// actual transport would make; wiring a real RPC client is left to an
// operator layer this core does not specify.
type loggingRPC struct {
	log *zap.Logger
}

func (r loggingRPC) OpenRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo) error {
	r.log.Info("would send openRegion", zap.String("server", server.String()), zap.String("region", region.RegionName()))
	return nil
}

func (r loggingRPC) CloseRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo) error {
	r.log.Info("would send closeRegion", zap.String("server", server.String()), zap.String("region", region.RegionName()))
	return nil
}

func (r loggingRPC) SplitRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo, splitRow []byte) error {
	r.log.Info("would send splitRegion", zap.String("server", server.String()), zap.String("region", region.RegionName()))
	return nil
}

// noopWAL reports every recovery complete immediately. spec §9 notes
// the source leaves WAL-replay-failure policy undefined ("we need to
// do more than just fail"); the replay engine itself is out of scope
// (spec §1) so there is nothing for this command to drive.
type noopWAL struct{}

func (noopWAL) Recover(ctx context.Context, server core.ServerName) error { return nil }

func runServer(ctx context.Context, cfg *config.Config) error {
	if err := log.Init(cfg.Log); err != nil {
		return errors.Wrap(err, "init logger")
	}
	logger := log.Named("cmd")

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(cfg.EtcdEndpoints, ","),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "dial etcd")
	}
	defer cli.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coord, err := coordstore.NewEtcdClient(ctx, cli, cfg.RootPath)
	if err != nil {
		return errors.Wrap(err, "construct coord-store client")
	}

	cat := catalog.New(kv.NewEtcdBase(cli, cfg.RootPath+"/catalog"))

	mgr := assign.New(cfg.AssignConfig(), coord, cat, loggingRPC{log: log.Named("rpc")}, noopWAL{})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigc:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("campaigning for /master", zap.String("root-path", cfg.RootPath))
	err = mgr.CampaignMaster(ctx, hostID(), func(ctx context.Context) error {
		logger.Info("acquired /master, bootstrapping")
		mgr.Start(ctx)
		defer mgr.Stop()
		if err := mgr.Bootstrap(ctx, cat); err != nil {
			return errors.Wrap(err, "bootstrap")
		}
		<-ctx.Done()
		return nil
	})
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// hostID names this process in the /master node so an operator
// reading coord-store state can tell which instance holds mastership.
func hostID() string {
	host, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("pid-%d", os.Getpid())
	}
	return host
}
