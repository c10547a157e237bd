package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// kvBucket is the part of jetstream.KeyValue the mirror uses.
type kvBucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// NATSMirror keeps the log in a JetStream KeyValue bucket.
type NATSMirror struct {
	nc     *nats.Conn
	kv     kvBucket
	bucket string
}

// DialNATSMirror connects to url and opens (or creates) bucket.
func DialNATSMirror(ctx context.Context, url, bucket string) (*NATSMirror, error) {
	nc, err := nats.Connect(url,
		nats.Name("rig-monitor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("history: connect nats: %w", err)
	}
	m, err := NewNATSMirror(ctx, nc, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return m, nil
}

// NewNATSMirror opens bucket on an existing connection, creating it if it
// does not exist yet. The mirror takes ownership of nc.
func NewNATSMirror(ctx context.Context, nc *nats.Conn, bucket string) (*NATSMirror, error) {
	if bucket == "" {
		return nil, errors.New("history: nats bucket required")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("history: jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "rig monitor fault history",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("history: open bucket %s: %w", bucket, err)
	}

	return &NATSMirror{nc: nc, kv: kv, bucket: bucket}, nil
}

// Load returns the value stored under key.
func (m *NATSMirror) Load(ctx context.Context, key string) ([]byte, error) {
	entry, err := m.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

// Store puts data under key.
func (m *NATSMirror) Store(ctx context.Context, key string, data []byte) error {
	_, err := m.kv.Put(ctx, key, data)
	return err
}

// Delete removes key. A missing key is not an error.
func (m *NATSMirror) Delete(ctx context.Context, key string) error {
	err := m.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close drains and closes the NATS connection.
func (m *NATSMirror) Close() error {
	if m.nc == nil {
		return nil
	}
	return m.nc.Drain()
}
