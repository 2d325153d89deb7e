package soundcheck

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/epalmerini/soundcheck/rule"
)

const (
	defaultObjectStoreStartPriority = 80
	defaultObjectStoreEndPriority   = 80
)

// ErrNoObject is returned by BlobStore.Get when the key does not exist.
var ErrNoObject = errors.New("object not found")

// BlobStore is the object-storage collaborator boundary; blob/minio
// implements it, tests use in-memory fakes.
type BlobStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Remove(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ObjectStoreConfig assembles an ObjectStore subsystem.
type ObjectStoreConfig struct {
	// Store is the object-storage collaborator. Required.
	Store BlobStore
	// Bucket scopes every seed and check. Required.
	Bucket string
	// Purge lists key prefixes whose objects are removed in the start
	// phase.
	Purge  []string
	Logger *zap.Logger
}

type seedObject struct {
	key         string
	body        []byte
	contentType string
}

type objectCheck struct {
	key   string
	rules []rule.Rule
}

// ObjectStore seeds objects before the backend runs and asserts on
// objects the backend should have produced. Start ensures the bucket and
// removes purge prefixes, Execute uploads seeds, End fetches each
// expected key and evaluates its rules.
type ObjectStore struct {
	store  BlobStore
	bucket string
	purge  []string
	log    *zap.Logger

	seeds  []seedObject
	checks []objectCheck

	startPrio int
	endPrio   int
	sealed    bool
}

// NewObjectStore validates cfg and builds the subsystem with priorities
// 80/80.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Store == nil {
		return nil, configErrorf("objectstore requires a store")
	}
	if cfg.Bucket == "" {
		return nil, configErrorf("objectstore bucket must not be empty")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ObjectStore{
		store:     cfg.Store,
		bucket:    cfg.Bucket,
		purge:     cfg.Purge,
		log:       log,
		startPrio: defaultObjectStoreStartPriority,
		endPrio:   defaultObjectStoreEndPriority,
	}, nil
}

// SetPriorities overrides the default start/end priorities.
func (o *ObjectStore) SetPriorities(start, end int) error {
	if o.sealed {
		return configErrorf("objectstore already ran")
	}
	if !validPriority(start) || !validPriority(end) {
		return configErrorf("objectstore priorities %d/%d out of range [%d,%d]",
			start, end, MinPriority, MaxPriority)
	}
	o.startPrio = start
	o.endPrio = end
	return nil
}

func (o *ObjectStore) Name() string       { return "objectstore" }
func (o *ObjectStore) StartPriority() int { return o.startPrio }
func (o *ObjectStore) EndPriority() int   { return o.endPrio }

// Seed queues an object upload for the execution phase.
func (o *ObjectStore) Seed(key string, body []byte, contentType string) error {
	if o.sealed {
		return configErrorf("objectstore already ran, cannot add seeds")
	}
	if key == "" {
		return configErrorf("seed key must not be empty")
	}
	o.seeds = append(o.seeds, seedObject{key: key, body: body, contentType: contentType})
	return nil
}

// ExpectObject declares that key must exist after the run, optionally
// validated by rules.
func (o *ObjectStore) ExpectObject(key string, rules ...rule.Rule) error {
	if o.sealed {
		return configErrorf("objectstore already ran, cannot add checks")
	}
	if key == "" {
		return configErrorf("expected object key must not be empty")
	}
	o.checks = append(o.checks, objectCheck{key: key, rules: rules})
	return nil
}

// Start ensures the bucket exists and removes every object under the
// configured purge prefixes.
func (o *ObjectStore) Start(ctx context.Context) error {
	o.sealed = true
	if err := o.store.EnsureBucket(ctx, o.bucket); err != nil {
		return fmt.Errorf("ensure bucket %q: %w", o.bucket, err)
	}
	for _, prefix := range o.purge {
		keys, err := o.store.List(ctx, o.bucket, prefix)
		if err != nil {
			return fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, key := range keys {
			if err := o.store.Remove(ctx, o.bucket, key); err != nil {
				return fmt.Errorf("remove %q: %w", key, err)
			}
		}
		o.log.Debug("purged prefix",
			zap.String("bucket", o.bucket),
			zap.String("prefix", prefix),
			zap.Int("objects", len(keys)))
	}
	return nil
}

// Execute uploads the seed objects in declaration order.
func (o *ObjectStore) Execute(ctx context.Context) error {
	for _, s := range o.seeds {
		if err := o.store.Put(ctx, o.bucket, s.key, s.body, s.contentType); err != nil {
			return fmt.Errorf("put %q: %w", s.key, err)
		}
		o.log.Debug("seeded object",
			zap.String("bucket", o.bucket),
			zap.String("key", s.key),
			zap.Int("bytes", len(s.body)))
	}
	return nil
}

// End fetches each expected object: a missing key is a failed finding,
// a present one yields a presence finding plus one finding per rule.
func (o *ObjectStore) End(ctx context.Context, rep *Report) error {
	for _, c := range o.checks {
		body, err := o.store.Get(ctx, o.bucket, c.key)
		if errors.Is(err, ErrNoObject) {
			rep.Append(Finding{
				Subsystem: o.Name(),
				Target:    c.key,
				Check:     "object exists",
				Kind:      KindPostCondition,
				OK:        false,
				Detail:    "object not found",
			})
			continue
		}
		if err != nil {
			return fmt.Errorf("get %q: %w", c.key, err)
		}

		rep.Append(Finding{
			Subsystem: o.Name(),
			Target:    c.key,
			Check:     "object exists",
			Kind:      KindPresence,
			OK:        true,
		})
		for _, r := range c.rules {
			f := Finding{
				Subsystem: o.Name(),
				Target:    c.key,
				Check:     r.Name(),
				Kind:      KindRule,
				OK:        true,
				Actual:    string(body),
			}
			if err := r.Check(body); err != nil {
				f.OK = false
				f.Detail = err.Error()
			}
			rep.Append(f)
		}
	}
	return nil
}
