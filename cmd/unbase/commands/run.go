package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	dbm "github.com/tendermint/tm-db"

	"github.com/dnorman/unbase-sub001/config"
	"github.com/dnorman/unbase-sub001/libs/log"
	"github.com/dnorman/unbase-sub001/network"
	"github.com/dnorman/unbase-sub001/rpc"
	"github.com/dnorman/unbase-sub001/slab"
	"github.com/dnorman/unbase-sub001/store"
	"github.com/dnorman/unbase-sub001/transport"
)

var runConfigPath string

// RunCmd boots one slab, binds it to a UDP transport and the debug RPC
// surface, and blocks until interrupted.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a slab",
	RunE:  runSlab,
}

func init() {
	RunCmd.Flags().StringVar(&runConfigPath, "config", "config.toml", "path to the config file")
}

func runSlab(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).With("module", "unbase")

	db, err := dbm.NewDB("unbase", dbm.BackendType(cfg.Slab.DBBackend), cfg.Slab.DBDir)
	if err != nil {
		return fmt.Errorf("opening db backend %q at %q: %w", cfg.Slab.DBBackend, cfg.Slab.DBDir, err)
	}

	udp, err := transport.NewUDP(cfg.Slab.ListenAddr, logger.With("component", "transport"))
	if err != nil {
		return fmt.Errorf("binding udp transport at %q: %w", cfg.Slab.ListenAddr, err)
	}
	defer udp.Close()

	net := network.New(transport.NewLocalDirect(), udp)

	s := slab.New(net, slab.Config{
		Store:        store.New(db, logger.With("component", "store")),
		MinResidents: cfg.Slab.MinResidents,
		Logger:       logger.With("component", "slab"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pumpInbound(ctx, net, udp, logger)

	rpcServer := rpc.NewServer(s, logger.With("component", "rpc"))
	go func() {
		if err := rpcServer.ListenAndServe(ctx, cfg.RPC.ListenAddr); err != nil {
			logger.Error("rpc server exited", "err", err)
		}
	}()

	logger.Info("slab running", "slab_id", s.ID(), "listen_addr", cfg.Slab.ListenAddr, "rpc_addr", cfg.RPC.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	s.Drain()
	return nil
}

// pumpInbound drains a transport's decoded packets into the network's
// locally-registered slabs (spec.md §4.I: "the registry maps SlabId ->
// LocalSlabHandle for local delivery"); UDP has no caller-less delivery
// path of its own, so something upstream of the socket has to do this
// dispatch, the lookup LocalDirect's transmitter does itself for
// local-direct sends.
func pumpInbound(ctx context.Context, resolver transport.LocalSlabResolver, t interface {
	Inbound() <-chan transport.Packet
}, logger log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-t.Inbound():
			handle, ok := resolver.LocalSlab(p.ToSlabID)
			if !ok {
				logger.Debug("pump: dropping packet for unknown local slab", "to_slab_id", p.ToSlabID)
				continue
			}
			if err := handle.ReceivePacket(ctx, p); err != nil {
				logger.Error("pump: receive packet failed", "err", err)
			}
		}
	}
}
