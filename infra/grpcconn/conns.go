// Package grpcconn shares gRPC client connections by target.
package grpcconn

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rc/domain/ownership"
	"rc/service/registry"
)

// Config configures Conns.
type Config struct {
	Linger  int
	Tracker *ownership.Tracker
	Log     zerolog.Logger
	// DialOptions are appended to the default insecure transport
	// credentials.
	DialOptions []grpc.DialOption
}

// Conns hands out shared *grpc.ClientConn handles. A connection closes when
// its last Conn is closed.
type Conns struct {
	reg *registry.Registry[string, grpc.ClientConn]
	log zerolog.Logger
}

func New(cfg Config) (*Conns, error) {
	log := cfg.Log.With().Str("component", "grpcconn").Logger()
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)

	open := func(_ context.Context, target string) (*grpc.ClientConn, error) {
		cc, err := grpc.NewClient(target, opts...)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("target", target).Msg("client conn created")
		return cc, nil
	}
	reg, err := registry.New("grpc", open,
		registry.WithTracker[grpc.ClientConn](cfg.Tracker),
		registry.WithLinger[grpc.ClientConn](cfg.Linger),
		registry.WithLogger[grpc.ClientConn](cfg.Log),
	)
	if err != nil {
		return nil, err
	}
	return &Conns{reg: reg, log: log}, nil
}

// Dial returns a Conn to target.
func (c *Conns) Dial(ctx context.Context, target string) (*Conn, error) {
	h, err := c.reg.Acquire(ctx, target)
	if err != nil {
		return nil, err
	}
	return &Conn{conns: c, target: target, cc: h}, nil
}

// Open returns the number of open connections.
func (c *Conns) Open() int { return c.reg.Len() }

func (c *Conns) Close() error { return c.reg.Close() }

// Conn is one holder of a shared client connection.
type Conn struct {
	conns  *Conns
	target string
	cc     *ownership.Shared[grpc.ClientConn]
}

var ErrConnClosed = errors.New("grpcconn: conn closed")

func (c *Conn) Target() string { return c.target }

// ClientConn returns the shared connection, nil after Close.
func (c *Conn) ClientConn() *grpc.ClientConn { return c.cc.Get() }

// Close releases this holder. Close is idempotent.
func (c *Conn) Close() error {
	if c.cc.Owning() {
		c.conns.reg.Release(c.cc)
	}
	return nil
}

// Probe asks target's health service about service ("" for the server as
// a whole).
func (c *Conns) Probe(ctx context.Context, target, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := c.Dial(ctx, target)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn.ClientConn()).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, errors.Wrapf(err, "probe %s", target)
	}
	return resp.GetStatus(), nil
}
