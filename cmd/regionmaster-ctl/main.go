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

// Command regionmaster-ctl is a pdctl-style operator CLI: it drives
// an in-process Assignment Manager over an in-memory coord-store and
// catalog so an operator (or a test script) can run a bulk assign
// (assign-demo), a server failure (kill-server) and a region split
// (split-demo) without a live cluster,
// grounded in pingcap-pd's tools/pd-ctl (SPEC_FULL.md "SUPPLEMENTED
// FEATURES"). It is a local scripting/demo tool, not a client of a
// remote Master: the Master<->RegionServer wire protocol is out of
// scope (spec §6), so there is nothing remote for it to dial.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coredb/regionmaster/server/assign"
	"github.com/coredb/regionmaster/server/assign/assigntest"
	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/coordstore"
	"github.com/coredb/regionmaster/server/kv"
	"github.com/coredb/regionmaster/server/split"
	"github.com/coredb/regionmaster/server/split/splitstore"
	"github.com/spf13/cobra"
)

func main() {
	var numServers, numRegions int
	var table string

	root := &cobra.Command{
		Use:   "regionmaster-ctl",
		Short: "operational scripting CLI for the region assignment core",
	}
	root.PersistentFlags().IntVar(&numServers, "servers", 3, "number of simulated live RegionServers")
	root.PersistentFlags().IntVar(&numRegions, "regions", 9, "number of simulated user regions")
	root.PersistentFlags().StringVar(&table, "table", "userTable", "simulated table name")

	root.AddCommand(newAssignDemoCommand(&numServers, &numRegions, &table))
	root.AddCommand(newKillServerCommand(&numServers, &numRegions, &table))
	root.AddCommand(newSplitDemoCommand(&table))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cluster bundles the in-process harness every demo subcommand drives
// (spec §8 end-to-end scenarios, scaled down for interactive use).
type cluster struct {
	mgr     *assign.Manager
	coord   coordstore.Client
	cat     catalog.Catalog
	servers []core.ServerName
	regions []*core.RegionInfo
}

func buildCluster(ctx context.Context, numServers, numRegions int, table string) (*cluster, error) {
	store := coordstore.NewMemStore()
	coord := store.Session()
	cat := catalog.New(kv.NewMemoryBase())

	rpc := assigntest.New(coord, cat,
		func(s core.RegionState, o core.ServerName) []byte { return assign.EncodeNode(s, o, time.Now()) },
		func(data []byte) (core.RegionState, core.ServerName, error) {
			s, o, _, err := assign.DecodeNode(data)
			return s, o, err
		})

	cfg := assign.DefaultConfig()
	cfg.OfflineTimeout = 200 * time.Millisecond
	cfg.OpeningTimeout = 200 * time.Millisecond
	cfg.ClosingTimeout = 200 * time.Millisecond
	mgr := assign.New(cfg, coord, cat, rpc, assigntest.NoopWAL{})

	servers := make([]core.ServerName, numServers)
	for i := range servers {
		servers[i] = core.NewServerName(fmt.Sprintf("rs%d", i), 6000+i, int64(i+1))
		if err := coord.Create(ctx, "/rs/"+servers[i].String(), nil, true); err != nil {
			return nil, err
		}
	}

	regions := make([]*core.RegionInfo, numRegions)
	for i := range regions {
		start := []byte{byte('a' + i)}
		end := []byte{byte('a' + i + 1)}
		r := core.NewRegionInfo(table, start, end, int64(1000+i))
		regions[i] = r
		if err := cat.UpdateRegionLocation(r, core.ServerName{}); err != nil {
			return nil, err
		}
	}

	return &cluster{mgr: mgr, coord: coord, cat: cat, servers: servers, regions: regions}, nil
}

func (c *cluster) printPlacement() {
	fmt.Println("region placement:")
	for _, r := range c.regions {
		owner, ok, err := c.cat.Location(r)
		switch {
		case err != nil:
			fmt.Printf("  %s -> error: %v\n", r.RegionName(), err)
		case !ok:
			fmt.Printf("  %s -> unassigned\n", r.RegionName())
		default:
			fmt.Printf("  %s -> %s\n", r.RegionName(), owner.String())
		}
	}
}

func newAssignDemoCommand(numServers, numRegions *int, table *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-demo",
		Short: "run a fresh-cluster bulk assign (spec §8 scenario 1) and print the resulting placement",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			c, err := buildCluster(ctx, *numServers, *numRegions, *table)
			if err != nil {
				return err
			}
			c.mgr.Start(ctx)
			defer c.mgr.Stop()

			if err := c.mgr.Bootstrap(ctx, c.cat); err != nil {
				return err
			}
			waitUntilPlaced(ctx, c)
			c.printPlacement()
			return nil
		},
	}
}

func newKillServerCommand(numServers, numRegions *int, table *string) *cobra.Command {
	var serverIndex int
	cmd := &cobra.Command{
		Use:   "kill-server",
		Short: "assign-demo, then kill one server and show the regions move (spec §8 scenario 2)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			c, err := buildCluster(ctx, *numServers, *numRegions, *table)
			if err != nil {
				return err
			}
			c.mgr.Start(ctx)
			defer c.mgr.Stop()

			if err := c.mgr.Bootstrap(ctx, c.cat); err != nil {
				return err
			}
			waitUntilPlaced(ctx, c)

			if serverIndex < 0 || serverIndex >= len(c.servers) {
				return fmt.Errorf("--server-index must be in [0,%d)", len(c.servers))
			}
			dead := c.servers[serverIndex]
			fmt.Printf("killing %s\n", dead.String())
			if err := c.coord.Delete(ctx, "/rs/"+dead.String(), -1); err != nil {
				return err
			}
			c.mgr.HandleServerDown(ctx, dead)

			time.Sleep(500 * time.Millisecond)
			c.printPlacement()
			return nil
		},
	}
	cmd.Flags().IntVar(&serverIndex, "server-index", 0, "index into --servers of the server to kill")
	return cmd
}

func waitUntilPlaced(ctx context.Context, c *cluster) {
	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		allPlaced := true
		for _, r := range c.regions {
			if _, ok, err := c.cat.Location(r); err != nil || !ok {
				allPlaced = false
				break
			}
		}
		if allPlaced {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// ctlHooks is a minimal, local split.Hooks implementation for
// split-demo: it tracks "open" regions in a plain map rather than a
// real RegionServer's region table, the same simplification
// assigntest.FakeRPC makes for the Assignment Manager's RPC side.
type ctlHooks struct {
	online map[string]bool
}

func (h *ctlHooks) VerifyOpen(parent *core.RegionInfo) error {
	if !h.online[parent.EncodedName()] {
		return fmt.Errorf("parent %s is not open", parent.RegionName())
	}
	return nil
}

func (h *ctlHooks) CloseParent(ctx context.Context, parent *core.RegionInfo) ([]split.StoreFile, error) {
	return []split.StoreFile{{Name: "store-0001"}, {Name: "store-0002"}}, nil
}

func (h *ctlHooks) RemoveOnline(parent *core.RegionInfo) error {
	delete(h.online, parent.EncodedName())
	return nil
}

func (h *ctlHooks) ReinstateOnline(parent *core.RegionInfo) error {
	h.online[parent.EncodedName()] = true
	return nil
}

func (h *ctlHooks) ReopenParent(ctx context.Context, parent *core.RegionInfo) error {
	h.online[parent.EncodedName()] = true
	return nil
}

func (h *ctlHooks) InstantiateDaughter(daughter *core.RegionInfo, dir string) error {
	return nil
}

func (h *ctlHooks) OpenDaughter(ctx context.Context, daughter *core.RegionInfo) error {
	h.online[daughter.EncodedName()] = true
	return nil
}

func newSplitDemoCommand(table *string) *cobra.Command {
	var splitRow string
	cmd := &cobra.Command{
		Use:   "split-demo",
		Short: "split a single in-memory parent region and print the resulting journal and daughter region names (spec §8 scenario 3)",
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := core.NewRegionInfo(*table, []byte("a"), []byte("z"), 1000)
			fs := splitstore.NewMemFS()
			cat := catalog.New(kv.NewMemoryBase())
			hooks := &ctlHooks{online: map[string]bool{parent.EncodedName(): true}}

			txn := split.New(parent, []byte(splitRow), *table, fs, cat, hooks, &noopLock{})
			daughterA, daughterB, err := txn.Prepare(time.Now().UnixNano())
			if err != nil {
				return err
			}
			if err := txn.Execute(context.Background()); err != nil {
				return err
			}

			fmt.Println("journal:")
			for _, e := range txn.JournalEntries() {
				fmt.Printf("  %s\n", e)
			}
			fmt.Printf("daughter A: %s\n", daughterA.RegionName())
			fmt.Printf("daughter B: %s\n", daughterB.RegionName())
			return nil
		},
	}
	cmd.Flags().StringVar(&splitRow, "split-row", "m", "row to split the parent at")
	return cmd
}

// noopLock satisfies sync.Locker for a demo transaction that never
// races with a second one.
type noopLock struct{}

func (*noopLock) Lock()   {}
func (*noopLock) Unlock() {}
