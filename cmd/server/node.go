package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rc/api/grpcserver"
	"rc/domain/ownership"
	"rc/infra/codec"
	"rc/infra/config"
	"rc/infra/kafka"
	"rc/infra/ledger"
	"rc/infra/memory"
	"rc/infra/metrics"
	"rc/infra/store"
	"rc/jobs/broadcaster"
	"rc/jobs/reclaimer"
	"rc/jobs/soak"
)

type soakOptions struct {
	interval time.Duration
	size     int
	fanout   int
}

// node owns every long-lived component of rcd. Components register their
// teardown in closers, which run in reverse order.
type node struct {
	cfg config.Config
	log zerolog.Logger

	tracker *ownership.Tracker
	domain  *memory.Domain

	stores *store.Stores
	ledger *ledger.Ledger

	writers     *kafka.Writers
	forwarder   *kafka.Forwarder
	broadcaster *broadcaster.Broadcaster

	grpc    *grpcserver.Server
	lis     net.Listener
	metrics *http.Server
	metLis  net.Listener

	soak         *soak.Soak
	soakInterval time.Duration

	closers []func() error
}

func newNode(cfg config.Config, log zerolog.Logger, so soakOptions) (n *node, err error) {
	n = &node{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	// ---------------- Accounting ----------------

	n.tracker = ownership.NewTracker(
		ownership.WithMaxLive(cfg.Tracker.MaxLive),
		ownership.WithLogger(log.With().Str("component", "tracker").Logger()),
	)
	// Shared infrastructure handles are accounted apart so the budget only
	// covers application groups.
	infra := ownership.NewTracker(ownership.WithLogger(log))
	n.domain = memory.NewDomain(cfg.Reclaim.RingSize, log)

	// ---------------- Ledger ----------------

	if cfg.Tracker.Ledger {
		n.stores, err = store.New(store.Config{
			Sync:    cfg.Store.Sync,
			Linger:  cfg.Registry.Linger,
			Tracker: infra,
			Log:     log,
		})
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, n.stores.Close)

		s, err := n.stores.Open(context.Background(), cfg.Store.Dir)
		if err != nil {
			return nil, errors.Wrap(err, "ledger store")
		}
		n.closers = append(n.closers, s.Close)

		if n.ledger, err = ledger.Open(s, log); err != nil {
			return nil, err
		}
		if err := n.ledger.Reset(); err != nil {
			return nil, errors.Wrap(err, "ledger reset")
		}
		n.tracker.Subscribe(n.ledger)
	}

	// ---------------- Kafka ----------------

	if cfg.Kafka.Enabled() {
		ser, err := codec.ByName(cfg.Kafka.Codec)
		if err != nil {
			return nil, err
		}
		if cfg.Kafka.EventsTopic != "" {
			n.writers, err = kafka.NewWriters(kafka.Config{
				Brokers: cfg.Kafka.Brokers,
				Linger:  cfg.Registry.Linger,
				Tracker: infra,
				Log:     log,
			})
			if err != nil {
				return nil, err
			}
			n.closers = append(n.closers, n.writers.Close)

			p, err := n.writers.Producer(context.Background(), cfg.Kafka.EventsTopic)
			if err != nil {
				return nil, err
			}
			n.closers = append(n.closers, p.Close)
			n.forwarder = kafka.NewForwarder(p, ser, 4096, log)
			n.tracker.Subscribe(n.forwarder)
		}
		if cfg.Kafka.StatsTopic != "" {
			producer, err := broadcaster.NewProducer(cfg.Kafka.Brokers)
			if err != nil {
				return nil, errors.Wrap(err, "stats producer")
			}
			n.broadcaster = broadcaster.New(producer, broadcaster.Config{
				Topic:   cfg.Kafka.StatsTopic,
				Node:    cfg.Node,
				Codec:   ser,
				Tracker: n.tracker,
				Domain:  n.domain,
				Log:     log,
			})
			n.closers = append(n.closers, n.broadcaster.Close)
		}
	}

	// ---------------- gRPC ----------------

	n.grpc = grpcserver.NewServer(n.tracker, log)
	if n.lis, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
		return nil, errors.Wrap(err, "grpc listen")
	}
	n.closers = append(n.closers, func() error {
		// Serve closes the listener once it starts; closing it again is
		// harmless.
		_ = n.lis.Close()
		return nil
	})

	// ---------------- Metrics ----------------

	if cfg.Metrics.Addr != "" {
		h, err := metrics.Handler(metrics.NewCollector("rc", n.tracker, n.domain))
		if err != nil {
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		n.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if n.metLis, err = net.Listen("tcp", cfg.Metrics.Addr); err != nil {
			return nil, errors.Wrap(err, "metrics listen")
		}
		n.closers = append(n.closers, func() error {
			_ = n.metLis.Close()
			return nil
		})
	}

	// ---------------- Soak ----------------

	if so.interval > 0 {
		n.soak = soak.New(n.tracker, n.domain, so.size, so.fanout, log)
		n.soakInterval = so.interval
	}
	return n, nil
}

// run blocks until ctx is done or a component fails, then tears everything
// down.
func (n *node) run(ctx context.Context) error {
	defer n.close()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reclaimer.New(n.domain, n.cfg.Reclaim.Interval.D(), n.log).Run(ctx)
	})
	g.Go(func() error { return n.grpc.Watch(ctx, n.cfg.GRPC.HealthInterval.D()) })
	g.Go(func() error { return n.grpc.Serve(n.lis) })
	g.Go(func() error {
		<-ctx.Done()
		n.grpc.Stop()
		return nil
	})

	if n.metrics != nil {
		g.Go(func() error {
			n.log.Info().Str("addr", n.metLis.Addr().String()).Msg("metrics serving")
			if err := n.metrics.Serve(n.metLis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return n.metrics.Shutdown(sctx)
		})
	}
	if n.forwarder != nil {
		g.Go(func() error { return n.forwarder.Run(ctx) })
	}
	if n.broadcaster != nil {
		g.Go(func() error { return n.broadcaster.Run(ctx, n.cfg.Kafka.StatsInterval.D()) })
	}
	if n.soak != nil {
		g.Go(func() error { return n.soak.Run(ctx, n.soakInterval) })
	}

	err := g.Wait()
	n.log.Info().Err(err).Interface("stats", n.tracker.Stats()).Msg("node stopped")
	return err
}

func (n *node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			n.log.Warn().Err(err).Msg("close failed")
		}
	}
	n.closers = nil
}
