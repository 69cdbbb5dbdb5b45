package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"rc/domain/ownership"
	"rc/infra/config"
	"rc/infra/grpcconn"
	"rc/infra/ledger"
	"rc/infra/logging"
	"rc/infra/store"
)

// loadConfig reads the --config file. A missing default file falls back to
// the built-in defaults.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String(configFlag.Name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !c.IsSet(configFlag.Name) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runNode(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logging.ConfigureWith(logging.ProfileRuntime, cfg.Log.Level, cfg.Log.Format)

	n, err := newNode(cfg, log, soakOptions{
		interval: c.Duration(soakFlag.Name),
		size:     c.Int(soakSizeFlag.Name),
		fanout:   c.Int(soakFanoutFlag.Name),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("🚀 rcd %s running on %s\n", cfg.Node, cfg.GRPC.Addr)
	return n.run(ctx)
}

func configInit(c *cli.Context) error {
	path := c.String(configFlag.Name)
	if err := config.WriteTemplate(path, c.Bool(forceFlag.Name)); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func configValidate(c *cli.Context) error {
	path := c.String(configFlag.Name)
	if _, err := config.Load(path); err != nil {
		return err
	}
	fmt.Printf("validated %s\n", path)
	return nil
}

func probe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	targets := c.StringSlice(targetFlag.Name)
	if len(targets) == 0 {
		targets = cfg.GRPC.Targets
	}
	if len(targets) == 0 {
		return errors.New("probe: no targets")
	}

	conns, err := grpcconn.New(grpcconn.Config{Tracker: ownership.NewTracker(), Log: zerolog.Nop()})
	if err != nil {
		return err
	}
	defer conns.Close()

	var failed int
	for _, target := range targets {
		ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		status, err := conns.Probe(ctx, target, c.String(serviceFlag.Name))
		cancel()
		if err != nil {
			failed++
			fmt.Printf("%-30s ERROR %v\n", target, err)
			continue
		}
		fmt.Printf("%-30s %s\n", target, status)
	}
	if failed > 0 {
		return errors.Newf("probe: %d of %d targets failed", failed, len(targets))
	}
	return nil
}

func ledgerScan(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	var state ledger.State
	switch c.String(stateFlag.Name) {
	case "live":
		state = ledger.StateLive
	case "expired":
		state = ledger.StateExpired
	default:
		return errors.Newf("ledger: unknown state %q", c.String(stateFlag.Name))
	}

	stores, err := store.New(store.Config{Tracker: ownership.NewTracker(), Log: zerolog.Nop()})
	if err != nil {
		return err
	}
	defer stores.Close()
	s, err := stores.Open(c.Context, cfg.Store.Dir)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := ledger.Open(s, zerolog.Nop())
	if err != nil {
		return err
	}
	n := 0
	err = l.ScanByState(state, func(id uint64, rec ledger.Record) error {
		n++
		fmt.Printf("%10d %-8s %-7s seq=%-8d %s %s\n",
			id, rec.State, rec.Variant, rec.Seq,
			time.Unix(0, rec.At).Format(time.RFC3339Nano), rec.Type)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d %s blocks\n", n, state)
	return nil
}
