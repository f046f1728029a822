// Command layerd opens one graph storage layer, serves its sync-facing RPCs
// and Prometheus metrics, and follows any configured upstream peers.
// Adapted from the teacher's cmd/rpcdaemon/main.go (cobra root command,
// context wiring, open-then-serve shape); this package plays the role its
// cli.RootCommand/cli.OpenDB/cli.StartRpcServer helpers played there, none
// of which shipped in the retrieval pack.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/config"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/ledgerwatch/graphlayer/logutil"
	"github.com/ledgerwatch/graphlayer/metrics"
	"github.com/ledgerwatch/graphlayer/migrations"
	"github.com/ledgerwatch/graphlayer/rpc"
	"github.com/ledgerwatch/graphlayer/seqlog"
	"github.com/ledgerwatch/graphlayer/splice"
	"github.com/ledgerwatch/graphlayer/syncer"
)

var (
	dataDir    string
	configPath string
	rpcAddr    string
	metricAddr string
)

func main() {
	cmd := rootCommand()
	if err := cmd.ExecuteContext(rootContext()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layerd",
		Short: "Serve one graph storage layer",
		RunE:  run,
	}
	cmd.Flags().StringVar(&dataDir, "datadir", "./layerdata", "directory holding layer_v2.lmdb, nodeedits.lmdb, splices.lmdb")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML layer config (lockmemory/readonly/upstream/fallback)")
	cmd.Flags().StringVar(&rpcAddr, "rpc.addr", ":30303", "address the sync-facing gRPC server listens on")
	cmd.Flags().StringVar(&metricAddr, "metrics.addr", ":6060", "address the Prometheus /metrics handler listens on")
	return cmd
}

// rootContext returns a context canceled on SIGINT/SIGTERM, mirroring the
// teacher's utils.RootContext helper.
func rootContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()
	return ctx
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	log := logutil.Default()

	backend, err := kv.OpenLMDB(kv.LMDBOpts{
		Path:       filepath.Join(dataDir, "layer_v2.lmdb"),
		MapSize:    cfg.MapSize,
		ReadOnly:   cfg.ReadOnly,
		LockMemory: cfg.LockMemory,
	})
	if err != nil {
		return fmt.Errorf("layerd: opening layer_v2.lmdb: %w", err)
	}
	defer backend.Close()

	editsBackend, err := kv.OpenLogLMDB(kv.LMDBOpts{Path: filepath.Join(dataDir, "nodeedits.lmdb")}, dbutils.NodeEditLog)
	if err != nil {
		return fmt.Errorf("layerd: opening nodeedits.lmdb: %w", err)
	}
	defer editsBackend.Close()

	var edits *seqlog.Seqlog
	err = editsBackend.Update(ctx, func(tx kv.Tx) error {
		var err error
		edits, err = seqlog.Open(tx, dbutils.NodeEditLog)
		return err
	})
	if err != nil {
		return fmt.Errorf("layerd: opening nodeedits log: %w", err)
	}

	l, err := layer.Open(ctx, backend, edits, layer.Config{
		Fallback:       cfg.Fallback,
		WindowCapacity: cfg.WindowCapacity,
	})
	if err != nil {
		return fmt.Errorf("layerd: opening layer: %w", err)
	}

	iden, err := l.GetIden(ctx)
	if err != nil {
		return fmt.Errorf("layerd: reading layer iden: %w", err)
	}
	log.Info().Str("iden", iden).Str("datadir", dataDir).Msg("layer open")

	if err := migrations.NewMigrator().Apply(ctx, backend, l, log); err != nil {
		return fmt.Errorf("layerd: applying migrations: %w", err)
	}

	reg := prometheus.NewRegistry()
	layerMetrics := metrics.NewLayer(reg, iden)
	l.SetMetrics(layerMetrics)

	if cfg.Fallback {
		splicesBackend, err := kv.OpenLogLMDB(kv.LMDBOpts{Path: filepath.Join(dataDir, "splices.lmdb")}, dbutils.SpliceLog)
		if err != nil {
			return fmt.Errorf("layerd: opening splices.lmdb: %w", err)
		}
		defer splicesBackend.Close()

		var splices *seqlog.Seqlog
		err = splicesBackend.Update(ctx, func(tx kv.Tx) error {
			var err error
			splices, err = seqlog.Open(tx, dbutils.SpliceLog)
			return err
		})
		if err != nil {
			return fmt.Errorf("layerd: opening splices log: %w", err)
		}

		writer := splice.NewWriter(splicesBackend, splices, func(tx kv.Tx, buid layer.Buid) (interface{}, error) {
			return l.GetNodeValu(tx, buid, "")
		})
		go func() {
			if err := writer.Run(ctx, l.Windows()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("splice writer stopped")
			}
		}()
	}

	var mgr *syncer.Manager
	if len(cfg.Upstreams) > 0 {
		mgr = syncer.NewManager(ctx, cfg.Upstreams, l, dialPeer, layerMetrics)
	}
	_ = mgr // exposes Offsets() for a future waitUpstreamOffs RPC; held to keep the manager alive under this scope

	gs := grpc.NewServer(grpc.ForceServerCodec(syncer.MPKCodec{}))
	rpc.Register(gs, rpc.NewPeerServer(l))

	lis, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("layerd: listening on %s: %w", rpcAddr, err)
	}
	go func() {
		log.Info().Str("addr", rpcAddr).Msg("rpc server listening")
		if err := gs.Serve(lis); err != nil {
			log.Error().Err(err).Msg("rpc server stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: metricAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", metricAddr).Msg("metrics server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	<-ctx.Done()
	gs.GracefulStop()
	_ = httpSrv.Close()
	return nil
}

// dialPeer opens a gRPC connection to a peer layer's RPC address, using the
// mpk codec registered alongside MPKCodec so every call round-trips through
// the same wire format the server expects.
func dialPeer(ctx context.Context, url string) (syncer.PeerClient, func(), error) {
	conn, err := grpc.DialContext(ctx, url,
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(syncer.MPKCodec{}.Name())),
	)
	if err != nil {
		return nil, nil, err
	}
	return syncer.NewGRPCPeerClient(conn), func() { conn.Close() }, nil
}
