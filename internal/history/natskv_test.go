package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

type kvEntry struct {
	key   string
	value []byte
	rev   uint64
}

func (e kvEntry) Bucket() string                  { return "history" }
func (e kvEntry) Key() string                     { return e.key }
func (e kvEntry) Value() []byte                   { return e.value }
func (e kvEntry) Revision() uint64                { return e.rev }
func (e kvEntry) Created() time.Time              { return t0 }
func (e kvEntry) Delta() uint64                   { return 0 }
func (e kvEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

// memKV behaves like a KeyValue bucket with History: 1.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
	rev  uint64

	getErr error
	putErr error
	delErr error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (k *memKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.getErr != nil {
		return nil, k.getErr
	}
	v, ok := k.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return kvEntry{key: key, value: append([]byte(nil), v...), rev: k.rev}, nil
}

func (k *memKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.putErr != nil {
		return 0, k.putErr
	}
	k.rev++
	k.data[key] = append([]byte(nil), value...)
	return k.rev, nil
}

func (k *memKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.delErr != nil {
		return k.delErr
	}
	if _, ok := k.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(k.data, key)
	return nil
}

func TestNATSMirrorRoundTrip(t *testing.T) {
	kv := newMemKV()
	m := &NATSMirror{kv: kv, bucket: "history"}
	ctx := context.Background()

	_, err := m.Load(ctx, DefaultKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Store(ctx, DefaultKey, []byte(`[]`)))
	require.NoError(t, m.Store(ctx, DefaultKey, []byte(`[{"name":"PIR Sensor"}]`)))
	got, err := m.Load(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"PIR Sensor"}]`, string(got))

	require.NoError(t, m.Delete(ctx, DefaultKey))
	_, err = m.Load(ctx, DefaultKey)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, m.Delete(ctx, DefaultKey), "deleting a missing key is not an error")
	assert.NoError(t, m.Close())
}

func TestNATSMirrorErrors(t *testing.T) {
	kv := newMemKV()
	m := &NATSMirror{kv: kv, bucket: "history"}
	ctx := context.Background()
	unavailable := errors.New("jetstream not available")

	kv.getErr = unavailable
	_, err := m.Load(ctx, DefaultKey)
	assert.ErrorIs(t, err, unavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	kv.putErr = unavailable
	assert.ErrorIs(t, m.Store(ctx, DefaultKey, []byte(`[]`)), unavailable)

	kv.delErr = unavailable
	assert.ErrorIs(t, m.Delete(ctx, DefaultKey), unavailable)
}

func TestNATSMirrorBacksStore(t *testing.T) {
	kv := newMemKV()
	kv.getErr = errors.New("no responders")
	m := &NATSMirror{kv: kv, bucket: "history"}
	s := New(context.Background(), m, zerolog.Nop(), WithStartTime(t0))
	assert.True(t, s.Degraded())

	s.Observe(logic.ExtractFaults(pirFailed(), logic.LivenessUp), t0)
	assert.Empty(t, kv.data, "nothing written while the bucket is unreadable")

	kv.mu.Lock()
	kv.getErr = nil
	kv.mu.Unlock()
	s.Observe(logic.ExtractFaults(nil, logic.LivenessDown), t0.Add(time.Second))
	assert.False(t, s.Degraded())

	entries, err := m.Load(context.Background(), DefaultKey)
	require.NoError(t, err)
	assert.Contains(t, string(entries), `"PIR Sensor"`)
	assert.Contains(t, string(entries), `"Backend Server"`)
}
