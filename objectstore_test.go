package soundcheck

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epalmerini/soundcheck/rule"
)

// fakeBlob is an in-memory BlobStore.
type fakeBlob struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]map[string][]byte
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{
		buckets: make(map[string]bool),
		objects: make(map[string]map[string][]byte),
	}
}

func (b *fakeBlob) EnsureBucket(_ context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets[bucket] = true
	if b.objects[bucket] == nil {
		b.objects[bucket] = make(map[string][]byte)
	}
	return nil
}

func (b *fakeBlob) Put(_ context.Context, bucket, key string, body []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects[bucket] == nil {
		b.objects[bucket] = make(map[string][]byte)
	}
	b.objects[bucket][key] = body
	return nil
}

func (b *fakeBlob) Get(_ context.Context, bucket, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[bucket][key]
	if !ok {
		return nil, ErrNoObject
	}
	return body, nil
}

func (b *fakeBlob) Remove(_ context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects[bucket], key)
	return nil
}

func (b *fakeBlob) List(_ context.Context, bucket, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for key := range b.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func newTestObjectStore(t *testing.T, cfg ObjectStoreConfig) *ObjectStore {
	t.Helper()
	o, err := NewObjectStore(cfg)
	require.NoError(t, err)
	return o
}

func TestNewObjectStoreValidation(t *testing.T) {
	var cfgErr *ConfigError
	_, err := NewObjectStore(ObjectStoreConfig{Bucket: "b"})
	require.ErrorAs(t, err, &cfgErr)
	_, err = NewObjectStore(ObjectStoreConfig{Store: newFakeBlob()})
	require.ErrorAs(t, err, &cfgErr)

	o := newTestObjectStore(t, ObjectStoreConfig{Store: newFakeBlob(), Bucket: "b"})
	assert.Equal(t, 80, o.StartPriority())
	assert.Equal(t, 80, o.EndPriority())
}

func TestObjectStoreSeedAndExpect(t *testing.T) {
	blob := newFakeBlob()
	o := newTestObjectStore(t, ObjectStoreConfig{Store: blob, Bucket: "uploads"})
	require.NoError(t, o.Seed("in/request.json", []byte(`{"id":7}`), "application/json"))
	require.NoError(t, o.ExpectObject("in/request.json", rule.Contains(`"id"`)))

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	require.NoError(t, o.Execute(ctx))
	rep := &Report{}
	require.NoError(t, o.End(ctx, rep))

	assert.True(t, blob.buckets["uploads"])
	require.Equal(t, 2, rep.Len())
	assert.True(t, rep.Findings()[0].OK) // exists
	assert.True(t, rep.Findings()[1].OK) // rule
	assert.True(t, rep.OK())
}

func TestObjectStoreMissingObjectFails(t *testing.T) {
	o := newTestObjectStore(t, ObjectStoreConfig{Store: newFakeBlob(), Bucket: "b"})
	require.NoError(t, o.ExpectObject("never/created"))

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	require.NoError(t, o.Execute(ctx))
	rep := &Report{}
	require.NoError(t, o.End(ctx, rep))

	require.Equal(t, 1, rep.Len())
	f := rep.Findings()[0]
	assert.False(t, f.OK)
	assert.Equal(t, KindPostCondition, f.Kind)
	assert.Equal(t, "object not found", f.Detail)
}

func TestObjectStorePurgeRemovesOnlyPrefix(t *testing.T) {
	blob := newFakeBlob()
	ctx := context.Background()
	require.NoError(t, blob.EnsureBucket(ctx, "b"))
	require.NoError(t, blob.Put(ctx, "b", "tmp/a", []byte("x"), ""))
	require.NoError(t, blob.Put(ctx, "b", "tmp/b", []byte("y"), ""))
	require.NoError(t, blob.Put(ctx, "b", "keep/c", []byte("z"), ""))

	o := newTestObjectStore(t, ObjectStoreConfig{Store: blob, Bucket: "b", Purge: []string{"tmp/"}})
	require.NoError(t, o.Start(ctx))

	_, err := blob.Get(ctx, "b", "tmp/a")
	assert.ErrorIs(t, err, ErrNoObject)
	_, err = blob.Get(ctx, "b", "keep/c")
	assert.NoError(t, err)
}

func TestObjectStoreRuleFailureRecorded(t *testing.T) {
	blob := newFakeBlob()
	o := newTestObjectStore(t, ObjectStoreConfig{Store: blob, Bucket: "b"})
	require.NoError(t, o.Seed("doc", []byte("plain text"), "text/plain"))
	require.NoError(t, o.ExpectObject("doc", rule.Contains("json")))

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	require.NoError(t, o.Execute(ctx))
	rep := &Report{}
	require.NoError(t, o.End(ctx, rep))

	require.Equal(t, 2, rep.Len())
	assert.True(t, rep.Findings()[0].OK)
	assert.False(t, rep.Findings()[1].OK)
	assert.Equal(t, KindRule, rep.Findings()[1].Kind)
}

func TestObjectStoreSealedAfterStart(t *testing.T) {
	o := newTestObjectStore(t, ObjectStoreConfig{Store: newFakeBlob(), Bucket: "b"})
	require.NoError(t, o.Start(context.Background()))

	var cfgErr *ConfigError
	err := o.Seed("k", nil, "")
	require.ErrorAs(t, err, &cfgErr)
	err = o.ExpectObject("k")
	require.ErrorAs(t, err, &cfgErr)
	err = o.SetPriorities(10, 10)
	require.ErrorAs(t, err, &cfgErr)
}
