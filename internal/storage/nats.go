package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps artifacts in a JetStream object store bucket.
type NATSStore struct {
	nc     *nats.Conn
	bucket string
	store  jetstream.ObjectStore
}

// ConnectNATS dials url and opens (or creates) bucket.
func ConnectNATS(ctx context.Context, url, bucket string) (*NATSStore, error) {
	nc, err := nats.Connect(url, nats.Name("podcastd"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	s, err := NewNATS(ctx, nc, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

// NewNATS binds to bucket on an existing connection, creating it first if it
// does not exist yet.
func NewNATS(ctx context.Context, nc *nats.Conn, bucket string) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	store, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Merged podcast audio.",
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if errors.Is(err, jetstream.ErrBucketExists) {
		store, err = js.ObjectStore(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("binding to object store bucket %q: %w", bucket, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("creating object store bucket %q: %w", bucket, err)
	}

	slog.Info("artifact store ready", "backend", "nats", "bucket", bucket)
	return &NATSStore{nc: nc, bucket: bucket, store: store}, nil
}

func (n *NATSStore) Put(ctx context.Context, name string, r io.Reader) error {
	if err := ValidName(name); err != nil {
		return err
	}
	_, err := n.store.Put(ctx, jetstream.ObjectMeta{Name: name}, r)
	if err != nil {
		return fmt.Errorf("putting %s to bucket %s: %w", name, n.bucket, err)
	}
	return nil
}

func (n *NATSStore) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if err := ValidName(name); err != nil {
		return nil, Info{}, err
	}
	obj, err := n.store.Get(ctx, name)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, Info{}, fmt.Errorf("getting %s from bucket %s: %w", name, n.bucket, err)
	}
	oi, err := obj.Info()
	if err != nil {
		obj.Close()
		return nil, Info{}, fmt.Errorf("reading info of %s: %w", name, err)
	}
	return obj, infoOf(oi), nil
}

func (n *NATSStore) Delete(ctx context.Context, name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	err := n.store.Delete(ctx, name)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("deleting %s from bucket %s: %w", name, n.bucket, err)
	}
	return nil
}

func (n *NATSStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidName(name); err != nil {
		return false, err
	}
	_, err := n.store.GetInfo(ctx, name)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s in bucket %s: %w", name, n.bucket, err)
	}
	return true, nil
}

func (n *NATSStore) List(ctx context.Context) ([]Info, error) {
	objs, err := n.store.List(ctx)
	if errors.Is(err, jetstream.ErrNoObjectsFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing bucket %s: %w", n.bucket, err)
	}
	out := make([]Info, 0, len(objs))
	for _, oi := range objs {
		if oi.Deleted {
			continue
		}
		out = append(out, infoOf(oi))
	}
	return out, nil
}

// Close drains the underlying connection.
func (n *NATSStore) Close() error {
	return n.nc.Drain()
}

func infoOf(oi *jetstream.ObjectInfo) Info {
	return Info{Name: oi.Name, Size: int64(oi.Size), ModTime: oi.ModTime}
}
