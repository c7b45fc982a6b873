// Package cli wires together the raftd binary's command-line surface:
// run starts a node and serves it until signaled, status reports what a
// config file would start without actually starting it.
package cli

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cliyu/ferrous-raft/internal/config"
	"github.com/cliyu/ferrous-raft/internal/metrics"
	"github.com/cliyu/ferrous-raft/internal/raft"
	"github.com/cliyu/ferrous-raft/internal/snapshot"
	"github.com/cliyu/ferrous-raft/internal/storage/wal"
	"github.com/cliyu/ferrous-raft/internal/transport"
	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

var configFile string

// BuildCLI assembles the raftd root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "raftd",
		Short:   "raftd runs one node of a replicated log cluster",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start this node and serve until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configFile)
		},
	}
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the node/cluster a config file would start",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(configFile)
		},
	}
}

func showStatus(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("node:      %s (%s)\n", cfg.Node.ID, cfg.Node.Address)
	fmt.Printf("peers:     %d configured\n", len(cfg.Cluster.Peers))
	for id, addr := range cfg.Cluster.Peers {
		fmt.Printf("  - %s @ %s\n", id, addr)
	}
	fmt.Printf("wal dir:      %s\n", cfg.WAL.Dir)
	fmt.Printf("snapshot dir: %s\n", cfg.Snapshot.Dir)
	fmt.Printf("metrics:      enabled=%v port=%d\n", cfg.Metrics.Enabled, cfg.Metrics.Port)
	return nil
}

// runNode loads cfg, wires a gRPC-backed node, and drives it until a
// shutdown signal arrives. Mirrors the teacher's run command's load-start-
// signal-wait-shutdown shape, re-pointed at a raft.Node instead of a
// Controller.
func runNode(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Printf("starting node %s on %s\n", cfg.Node.ID, cfg.Node.Address)

	w, err := wal.NewWAL(cfg.WAL.Dir, cfg.WAL.SyncOnAppend, cfg.WAL.BufferSize, cfg.FlushInterval())
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer w.Close()

	storage, err := transport.NewStorage(w, snapshot.NewManager(cfg.Snapshot.Dir))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	electionMin, electionMax := cfg.ElectionRange()
	clock := transport.NewClock(cfg.Heartbeat(), electionMin, electionMax)

	members := make([]pkgraft.NodeId, 0, len(cfg.Cluster.Peers)+1)
	members = append(members, pkgraft.NodeId(cfg.Node.ID))
	addrs := make(map[pkgraft.NodeId]string, len(cfg.Cluster.Peers))
	for id, addr := range cfg.Cluster.Peers {
		members = append(members, pkgraft.NodeId(id))
		addrs[pkgraft.NodeId(id)] = addr
	}
	initialConfig := pkgraft.NewStableConfig(pkgraft.NewClusterMembers(members...))

	hub := transport.NewHub()
	dialer := transport.NewDialer(addrs)
	io := transport.NewGRPCIO(pkgraft.NodeId(cfg.Node.ID), hub, dialer, storage, clock)

	grpcServer, err := startGRPCServer(cfg.Node.Address, hub)
	if err != nil {
		return fmt.Errorf("start grpc server: %w", err)
	}
	defer grpcServer.Stop()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Node.ID)
		go func() {
			if err := collector.StartServer(cfg.Metrics.Port); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	node := raft.NewNode(pkgraft.NodeId(cfg.Node.ID), io, initialConfig)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go driveNode(node, collector, done)

	<-sigChan
	log.Println("shutting down node...")
	close(done)
	return nil
}

// driveNode runs Node.RunOnce in a loop until done is closed, the shape
// spec.md §5 leaves to the caller: no prescribed sleep/backoff between
// rounds beyond avoiding a busy spin when nothing is ready.
func driveNode(node *raft.Node, collector *metrics.Collector, done <-chan struct{}) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	lastTerm := node.Common().CurrentTerm()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := node.RunOnce(); err != nil {
				slog.Error("node run loop error", "err", err)
				continue
			}
			if collector != nil {
				if term := node.Common().CurrentTerm(); term != lastTerm {
					collector.RecordTermChange(uint64(term))
					lastTerm = term
				}
				committed := node.Common().LogCommittedTail()
				appended := node.Common().Log().Tail()
				collector.SetLogTails(uint64(committed.Index), uint64(appended.Index))
			}
		}
	}
}
