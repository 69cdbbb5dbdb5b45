package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const defaultConfigPath = "rcd.toml"

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "node configuration (.toml, .yaml)",
		Value:   defaultConfigPath,
		EnvVars: []string{"RC_CONFIG"},
	}
	soakFlag = &cli.DurationFlag{
		Name:  "soak",
		Usage: "generate ownership traffic every interval (0 disables)",
	}
	soakSizeFlag = &cli.IntFlag{
		Name:  "soak.size",
		Usage: "payload size of soak buffers",
		Value: 4096,
	}
	soakFanoutFlag = &cli.IntFlag{
		Name:  "soak.fanout",
		Usage: "clones per soak group",
		Value: 4,
	}
	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite an existing file",
	}
	targetFlag = &cli.StringSliceFlag{
		Name:  "target",
		Usage: "gRPC target to probe (defaults to grpc.targets)",
	}
	serviceFlag = &cli.StringFlag{
		Name:  "service",
		Usage: "health service name",
	}
	stateFlag = &cli.StringFlag{
		Name:  "state",
		Usage: "ledger state to list: live|expired",
		Value: "live",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "rcd",
		Usage: "shared-ownership node: accounting, deferred reclamation and exporters",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the node",
				Flags:  []cli.Flag{soakFlag, soakSizeFlag, soakFanoutFlag},
				Action: runNode,
			},
			{
				Name:  "config",
				Usage: "manage configuration files",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "write a starter configuration",
						Flags:  []cli.Flag{forceFlag},
						Action: configInit,
					},
					{
						Name:   "validate",
						Usage:  "load and validate the configuration",
						Action: configValidate,
					},
				},
			},
			{
				Name:   "probe",
				Usage:  "check the health of gRPC peers",
				Flags:  []cli.Flag{targetFlag, serviceFlag},
				Action: probe,
			},
			{
				Name:   "ledger",
				Usage:  "list blocks recorded in the ledger",
				Flags:  []cli.Flag{stateFlag},
				Action: ledgerScan,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
