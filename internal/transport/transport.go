// Package transport defines the contract between the network front ends and
// the job orchestrator.
//
// Transports (HTTP/WebSocket, gRPC health) only translate requests; admission,
// execution and retention live behind the Jobs interface.
package transport

import (
	"context"

	"github.com/nadzzz/podcastd/internal/jobs"
	"github.com/nadzzz/podcastd/internal/podcast"
)

// Jobs is the orchestrator surface transports depend on.
type Jobs interface {
	Submit(ctx context.Context, clientID string, p jobs.Params) (string, error)
	Status(clientID string) []podcast.Snapshot
	ByArtifact(name string) (podcast.Snapshot, error)
	Subscribe(clientID string) (<-chan jobs.Event, func())
}

// Transport is the interface that every front end must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts serving. It blocks until the context is cancelled.
	Listen(ctx context.Context) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
