package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/epalmerini/soundcheck"
	"github.com/epalmerini/soundcheck/internal/config"
	"github.com/epalmerini/soundcheck/internal/scenariofile"
)

// fakeBroker keeps queues in memory. Receive pops immediately when a
// message is waiting and otherwise sleeps out the wait.
type fakeBroker struct {
	mu     sync.Mutex
	queues map[string][]soundcheck.Message
	purged []string
	closed bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: make(map[string][]soundcheck.Message)}
}

func (b *fakeBroker) Send(_ context.Context, msg soundcheck.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[msg.Queue] = append(b.queues[msg.Queue], msg)
	return nil
}

func (b *fakeBroker) Receive(ctx context.Context, queue string, wait time.Duration) (*soundcheck.Message, error) {
	deadline := time.Now().Add(wait)
	for {
		b.mu.Lock()
		if q := b.queues[queue]; len(q) > 0 {
			msg := q[0]
			b.queues[queue] = q[1:]
			b.mu.Unlock()
			return &msg, nil
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, soundcheck.ErrNoMessage
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (b *fakeBroker) Purge(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purged = append(b.purged, queue)
	delete(b.queues, queue)
	return nil
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte // bucket + "/" + key
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		buckets: make(map[string]bool),
		objects: make(map[string][]byte),
	}
}

func (s *fakeStore) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket] = true
	return nil
}

func (s *fakeStore) Put(_ context.Context, bucket, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
	return nil
}

func (s *fakeStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, soundcheck.ErrNoObject
	}
	return body, nil
}

func (s *fakeStore) Remove(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *fakeStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		rest, ok := strings.CutPrefix(k, bucket+"/")
		if ok && strings.HasPrefix(rest, prefix) {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Broker:      "amqp",
		DBDriver:    "sqlite",
		DBDSN:       filepath.Join(t.TempDir(), "scenario.db"),
		MinioBucket: "exports",
	}
}

func testRunner(cfg config.Config) (*Runner, *fakeBroker, *fakeStore) {
	r := New(cfg, zap.NewNop())
	broker := newFakeBroker()
	store := newFakeStore()
	r.openBroker = func(context.Context, string) (soundcheck.Broker, error) { return broker, nil }
	r.openBlob = func() (soundcheck.BlobStore, error) { return store, nil }
	return r, broker, store
}

func TestRunMessagingRoundTrip(t *testing.T) {
	r, broker, _ := testRunner(testConfig(t))

	def := &scenariofile.Definition{
		Name: "wire-echo",
		Messaging: &scenariofile.MessagingBlock{
			Purge:  true,
			Budget: scenariofile.Duration{Duration: 2 * time.Second},
			Sends: []scenariofile.Send{
				{Queue: "orders.new", Body: `{"id":1}`, Headers: map[string]string{"trace-id": "t-1"}},
			},
			Expects: []scenariofile.Expect{
				{Queue: "orders.new", NotEmpty: true, Contains: []string{"id"}},
			},
		},
	}

	rep, err := r.Run(context.Background(), def)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.True(t, rep.OK())
	assert.Equal(t, 2, rep.Len()) // not-empty + contains

	assert.Contains(t, broker.purged, "orders.new")
	assert.True(t, broker.closed, "broker not closed after run")
}

func TestRunDatabaseChecks(t *testing.T) {
	r, _, _ := testRunner(testConfig(t))

	want := "settled"
	def := &scenariofile.Definition{
		Name: "db-state",
		Database: &scenariofile.DatabaseBlock{
			Before: []string{
				`CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT)`,
				`INSERT INTO orders (status) VALUES ('settled'), ('settled')`,
			},
			Checks: []scenariofile.Check{
				{Name: "all settled", Query: `SELECT status FROM orders`, Want: &want},
				{Name: "two orders", Query: `SELECT id FROM orders`, MinRows: 2},
				{Name: "any order", Query: `SELECT id FROM orders`},
			},
		},
	}

	rep, err := r.Run(context.Background(), def)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 3, rep.Len())
}

func TestRunDatabaseWantMismatch(t *testing.T) {
	r, _, _ := testRunner(testConfig(t))

	want := "settled"
	def := &scenariofile.Definition{
		Name: "db-mismatch",
		Database: &scenariofile.DatabaseBlock{
			Before: []string{
				`CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT)`,
				`INSERT INTO orders (status) VALUES ('pending')`,
			},
			Checks: []scenariofile.Check{
				{Name: "all settled", Query: `SELECT status FROM orders`, Want: &want},
			},
		},
	}

	rep, err := r.Run(context.Background(), def)
	var verdict *soundcheck.VerdictError
	require.ErrorAs(t, err, &verdict)
	require.NotNil(t, rep)
	require.Len(t, rep.Failed(), 1)
	assert.Equal(t, "pending", rep.Failed()[0].Actual)
}

func TestRunObjectStoreSeedsAndExpects(t *testing.T) {
	r, _, store := testRunner(testConfig(t))

	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.json")
	require.NoError(t, os.WriteFile(fixture, []byte(`{"kind":"export"}`), 0o644))
	schema := filepath.Join(dir, "export.schema.json")
	require.NoError(t, os.WriteFile(schema, []byte(`{"type":"object"}`), 0o644))

	def := &scenariofile.Definition{
		Name: "blob-seed",
		ObjectStore: &scenariofile.ObjectStoreBlock{
			// No bucket: the profile's bucket applies.
			Purge: []string{"tmp/"},
			Seeds: []scenariofile.Seed{
				{Key: "in/inline.txt", Body: "hello", ContentType: "text/plain"},
				{Key: "in/fixture.json", File: fixture, ContentType: "application/json"},
			},
			Expects: []scenariofile.ExpectObject{
				{Key: "in/fixture.json", Contains: []string{"export"}, JSONSchema: schema},
			},
		},
	}

	rep, err := r.Run(context.Background(), def)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 3, rep.Len()) // exists + contains + schema

	assert.True(t, store.buckets["exports"], "profile bucket not ensured")
	assert.Equal(t, []byte(`{"kind":"export"}`), store.objects["exports/in/fixture.json"])
	assert.Equal(t, []byte("hello"), store.objects["exports/in/inline.txt"])
}

func TestRunTimeoutVerdict(t *testing.T) {
	r, _, _ := testRunner(testConfig(t))

	def := &scenariofile.Definition{
		Name: "silent-queue",
		Messaging: &scenariofile.MessagingBlock{
			Budget: scenariofile.Duration{Duration: 100 * time.Millisecond},
			Expects: []scenariofile.Expect{
				{Queue: "never.arrives"},
			},
		},
	}

	rep, err := r.Run(context.Background(), def)
	var verdict *soundcheck.VerdictError
	require.ErrorAs(t, err, &verdict)
	require.NotNil(t, rep)
	require.Len(t, rep.Failed(), 1)
	assert.Equal(t, soundcheck.KindTimeout, rep.Failed()[0].Kind)
}

func TestRunBrokerKindOverride(t *testing.T) {
	cfg := testConfig(t)
	r, _, _ := testRunner(cfg)

	var kinds []string
	broker := newFakeBroker()
	r.openBroker = func(_ context.Context, kind string) (soundcheck.Broker, error) {
		kinds = append(kinds, kind)
		return broker, nil
	}

	base := scenariofile.MessagingBlock{
		Budget: scenariofile.Duration{Duration: time.Second},
		Sends:  []scenariofile.Send{{Queue: "q", Body: "x"}},
	}

	withOverride := base
	withOverride.Broker = "nats"
	_, err := r.Run(context.Background(), &scenariofile.Definition{Name: "a", Messaging: &withOverride})
	require.NoError(t, err)

	plain := base
	_, err = r.Run(context.Background(), &scenariofile.Definition{Name: "b", Messaging: &plain})
	require.NoError(t, err)

	assert.Equal(t, []string{"nats", "amqp"}, kinds)
}

func TestRunUnknownBrokerKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker = "kafka"
	r := New(cfg, nil)

	def := &scenariofile.Definition{
		Name: "bad-broker",
		Messaging: &scenariofile.MessagingBlock{
			Sends: []scenariofile.Send{{Queue: "q", Body: "x"}},
		},
	}

	_, err := r.Run(context.Background(), def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown broker "kafka"`)
}

func TestRunFile(t *testing.T) {
	r, _, _ := testRunner(testConfig(t))

	doc := `
name = "wire-echo"
description = "send one message and read it back"

[messaging]
purge = true
budget = "2s"

[[messaging.send]]
queue = "audit.events"
body = '{"event":"ping"}'

[[messaging.expect]]
queue = "audit.events"
body = '{"event":"ping"}'
`
	path := filepath.Join(t.TempDir(), "wire-echo.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	rep, err := r.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	require.Equal(t, 1, rep.Len())
	assert.Equal(t, soundcheck.KindMismatch, rep.Findings()[0].Kind)
	assert.True(t, rep.Findings()[0].OK)
}

func TestRunFileRejectsBrokenDocument(t *testing.T) {
	r, _, _ := testRunner(testConfig(t))

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte(`name = `), 0o644))

	_, err := r.RunFile(context.Background(), path)
	require.Error(t, err)
}

func TestExpectOptionsProtoNeedsDirectory(t *testing.T) {
	_, err := expectOptions(scenariofile.Expect{Queue: "q", Proto: "orders.Order"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proto directory")
}

func TestPostConditionMapping(t *testing.T) {
	want := "5"
	byWant := postCondition(scenariofile.Check{Name: "w", Query: "SELECT 1", Want: &want})
	assert.Equal(t, "w", byWant.Name())

	byCount := postCondition(scenariofile.Check{Name: "c", Query: "SELECT 1", MinRows: 3})
	assert.Equal(t, "SELECT 1", byCount.Query())
}

type fakeRows struct {
	vals []any
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.vals)
}

func (r *fakeRows) Scan(dest ...any) error {
	p, ok := dest[0].(*any)
	if !ok {
		return errors.New("want *any destination")
	}
	*p = r.vals[r.idx-1]
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

func TestScanValue(t *testing.T) {
	rows := &fakeRows{vals: []any{int64(42), []byte("raw"), "text", nil}}
	var got []string
	for rows.Next() {
		v, err := scanValue(rows)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []string{"42", "raw", "text", ""}, got)
}

func TestTarantoolConfigDSN(t *testing.T) {
	cfg, err := tarantoolConfig("app:secret@db:3301")
	require.NoError(t, err)
	assert.Equal(t, "db:3301", cfg.Address)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "secret", cfg.Password)

	cfg, err = tarantoolConfig("localhost:3301")
	require.NoError(t, err)
	assert.Equal(t, "localhost:3301", cfg.Address)
	assert.Empty(t, cfg.User)

	_, err = tarantoolConfig("")
	require.Error(t, err)
}
