package config

import (
	"os"

	"github.com/cockroachdb/errors"
)

// Template returns a starter configuration in TOML.
func Template() string { return nodeTemplate }

// WriteTemplate writes Template to path, refusing to replace an existing
// file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(nodeTemplate), 0o600)
}

const nodeTemplate = `node = "rcd"

[log]
level = "info"
format = "console"

[tracker]
max_live = 0
ledger = true

[reclaim]
interval = "100ms"
ring_size = 1024

[store]
dir = "./data/ledger"
sync = false

[kafka]
brokers = []
events_topic = "rc.events"
stats_topic = "rc.stats"
stats_interval = "5s"
codec = "json"

[grpc]
addr = ":50051"
health_interval = "1s"
targets = []

[metrics]
addr = ":9090"

[registry]
linger = 2
`
