// Package runner assembles executable scenarios from declarative
// documents and the resolved profile, dialing whichever side channels
// each document asks for.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/epalmerini/soundcheck"
	"github.com/epalmerini/soundcheck/blob/minio"
	"github.com/epalmerini/soundcheck/broker/amqp"
	"github.com/epalmerini/soundcheck/broker/nats"
	"github.com/epalmerini/soundcheck/broker/sqs"
	"github.com/epalmerini/soundcheck/db/tarantool"
	"github.com/epalmerini/soundcheck/internal/config"
	"github.com/epalmerini/soundcheck/internal/scenariofile"
	"github.com/epalmerini/soundcheck/rule"
)

// Runner turns scenario definitions into scenario runs. It is safe to
// reuse for several runs; each run dials fresh connections and closes
// them when the run ends.
type Runner struct {
	cfg config.Config
	log *zap.Logger

	// Dial seams, swapped for fakes in tests.
	openBroker func(ctx context.Context, kind string) (soundcheck.Broker, error)
	openDB     func(ctx context.Context) (soundcheck.DB, io.Closer, error)
	openBlob   func() (soundcheck.BlobStore, error)
}

func New(cfg config.Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{cfg: cfg, log: log}
	r.openBroker = r.dialBroker
	r.openDB = r.dialDB
	r.openBlob = r.dialBlob
	return r
}

// RunFile loads the scenario document at path and runs it.
func (r *Runner) RunFile(ctx context.Context, path string) (*soundcheck.Report, error) {
	def, err := scenariofile.Load(path)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, def)
}

// Run dials every side channel the definition references, registers the
// matching subsystems and executes the scenario. Connections are closed
// before Run returns; close errors join whatever Run was already
// returning. A failed verdict surfaces as soundcheck.VerdictError with
// the report still attached.
func (r *Runner) Run(ctx context.Context, def *scenariofile.Definition) (_ *soundcheck.Report, err error) {
	s := soundcheck.NewScenario(def.Name, soundcheck.WithLogger(r.log))

	var open []io.Closer
	defer func() {
		for i := len(open) - 1; i >= 0; i-- {
			err = errors.Join(err, open[i].Close())
		}
	}()

	if def.Messaging != nil {
		kind := def.Messaging.Broker
		if kind == "" {
			kind = r.cfg.Broker
		}
		broker, err := r.openBroker(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("connect %s broker: %w", kind, err)
		}
		open = append(open, broker)

		m, err := buildMessaging(broker, def.Messaging, r.cfg.ProtoPath, r.log)
		if err != nil {
			return nil, err
		}
		if err := s.Register(m); err != nil {
			return nil, err
		}
	}

	if def.Database != nil {
		db, closer, err := r.openDB(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect %s database: %w", r.cfg.DBDriver, err)
		}
		open = append(open, closer)

		d, err := buildDatabase(db, def.Database, r.log)
		if err != nil {
			return nil, err
		}
		if err := s.Register(d); err != nil {
			return nil, err
		}
	}

	if def.ObjectStore != nil {
		store, err := r.openBlob()
		if err != nil {
			return nil, fmt.Errorf("connect object store: %w", err)
		}
		bucket := def.ObjectStore.Bucket
		if bucket == "" {
			bucket = r.cfg.MinioBucket
		}
		o, err := buildObjectStore(store, def.ObjectStore, bucket, r.log)
		if err != nil {
			return nil, err
		}
		if err := s.Register(o); err != nil {
			return nil, err
		}
	}

	r.log.Debug("scenario assembled",
		zap.String("scenario", def.Name),
		zap.Bool("messaging", def.Messaging != nil),
		zap.Bool("database", def.Database != nil),
		zap.Bool("objectstore", def.ObjectStore != nil))

	return s.Run(ctx)
}

func buildMessaging(broker soundcheck.Broker, block *scenariofile.MessagingBlock, protoDir string, log *zap.Logger) (*soundcheck.Messaging, error) {
	m, err := soundcheck.NewMessaging(soundcheck.MessagingConfig{
		Broker: broker,
		Purge:  block.Purge,
		Budget: block.Budget.Duration,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	for _, s := range block.Sends {
		msg := soundcheck.Message{
			Queue:   s.Queue,
			Body:    []byte(s.Body),
			Headers: s.Headers,
		}
		if err := m.Send(msg); err != nil {
			return nil, err
		}
	}
	for i, e := range block.Expects {
		opts, err := expectOptions(e, protoDir)
		if err != nil {
			return nil, fmt.Errorf("messaging.expect[%d] %s: %w", i, e.Queue, err)
		}
		if _, err := m.ExpectFrom(e.Queue, opts...); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func expectOptions(e scenariofile.Expect, protoDir string) ([]soundcheck.ExpectOption, error) {
	var opts []soundcheck.ExpectOption
	if e.Body != nil {
		opts = append(opts, soundcheck.ExpectBody(*e.Body))
	}

	rules, err := payloadRules(e.NotEmpty, e.Contains, e.JSONSchema)
	if err != nil {
		return nil, err
	}
	if e.Proto != "" {
		if protoDir == "" {
			return nil, fmt.Errorf("proto rule needs a proto directory (set proto in the config)")
		}
		pr, err := rule.ProtoDecodes(protoDir, e.Proto)
		if err != nil {
			return nil, err
		}
		rules = append(rules, pr)
	}
	if len(rules) > 0 {
		opts = append(opts, soundcheck.ExpectRule(rules...))
	}
	return opts, nil
}

// payloadRules builds the rule set shared by message and object
// expectations.
func payloadRules(notEmpty bool, contains []string, schemaPath string) ([]rule.Rule, error) {
	var rules []rule.Rule
	if notEmpty {
		rules = append(rules, rule.NotEmpty())
	}
	for _, s := range contains {
		rules = append(rules, rule.Contains(s))
	}
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		jr, err := rule.JSONSchema(filepath.Base(schemaPath), string(data))
		if err != nil {
			return nil, err
		}
		rules = append(rules, jr)
	}
	return rules, nil
}

func buildDatabase(db soundcheck.DB, block *scenariofile.DatabaseBlock, log *zap.Logger) (*soundcheck.Database, error) {
	d, err := soundcheck.NewDatabase(soundcheck.DatabaseConfig{DB: db, Logger: log})
	if err != nil {
		return nil, err
	}
	for _, stmt := range block.Before {
		if err := d.BeforeRun(soundcheck.Stmt(stmt)); err != nil {
			return nil, err
		}
	}
	for _, c := range block.Checks {
		if err := d.AfterRun(postCondition(c)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// postCondition maps one declarative check onto an engine check: want
// asserts every row's first column, min_rows asserts a count floor, and
// with neither set any non-empty result passes.
func postCondition(c scenariofile.Check) soundcheck.PostCondition {
	switch {
	case c.Want != nil:
		want := *c.Want
		return soundcheck.QueryCheck(c.Name, c.Query, scanValue,
			func(got string) bool { return got == want })
	case c.MinRows > 0:
		return soundcheck.MinRows(c.Name, c.Query, c.MinRows)
	default:
		return soundcheck.QueryCheck(c.Name, c.Query, scanValue,
			func(string) bool { return true })
	}
}

// scanValue reads the first column as text whatever its database type;
// both the sql and tarantool adapters accept an *any destination.
func scanValue(r soundcheck.Rows) (string, error) {
	var v any
	if err := r.Scan(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case []byte:
		return string(t), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func buildObjectStore(store soundcheck.BlobStore, block *scenariofile.ObjectStoreBlock, bucket string, log *zap.Logger) (*soundcheck.ObjectStore, error) {
	o, err := soundcheck.NewObjectStore(soundcheck.ObjectStoreConfig{
		Store:  store,
		Bucket: bucket,
		Purge:  block.Purge,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	for i, s := range block.Seeds {
		body := []byte(s.Body)
		if s.File != "" {
			data, err := os.ReadFile(s.File)
			if err != nil {
				return nil, fmt.Errorf("objectstore.seed[%d] %s: %w", i, s.Key, err)
			}
			body = data
		}
		if err := o.Seed(s.Key, body, s.ContentType); err != nil {
			return nil, err
		}
	}
	for i, e := range block.Expects {
		rules, err := payloadRules(e.NotEmpty, e.Contains, e.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("objectstore.expect[%d] %s: %w", i, e.Key, err)
		}
		if err := o.ExpectObject(e.Key, rules...); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (r *Runner) dialBroker(ctx context.Context, kind string) (soundcheck.Broker, error) {
	switch kind {
	case "amqp":
		return amqp.New(amqp.Config{URL: r.cfg.AMQPURL})
	case "nats":
		return nats.New(nats.Config{URL: r.cfg.NATSURL, Stream: r.cfg.NATSStream})
	case "sqs":
		return sqs.NewFromConfig(ctx, r.cfg.SQSRegion)
	default:
		return nil, fmt.Errorf("unknown broker %q (want amqp, nats or sqs)", kind)
	}
}

func (r *Runner) dialDB(ctx context.Context) (soundcheck.DB, io.Closer, error) {
	switch r.cfg.DBDriver {
	case "sqlite":
		if r.cfg.DBDSN == "" {
			return nil, nil, fmt.Errorf("sqlite requires a db_dsn")
		}
		db, err := sql.Open("sqlite", r.cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		// One writer; modernc sqlite returns SQLITE_BUSY under a pool.
		db.SetMaxOpenConns(1)
		return soundcheck.SQLDB(db), db, nil
	case "tarantool":
		tcfg, err := tarantoolConfig(r.cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		db, err := tarantool.Connect(ctx, tcfg)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown db driver %q (want sqlite or tarantool)", r.cfg.DBDriver)
	}
}

// tarantoolConfig splits a [user[:pass]@]host:port DSN.
func tarantoolConfig(dsn string) (tarantool.Config, error) {
	if dsn == "" {
		return tarantool.Config{}, fmt.Errorf("tarantool requires a db_dsn (user:pass@host:port)")
	}
	cfg := tarantool.Config{Address: dsn}
	if creds, addr, ok := strings.Cut(dsn, "@"); ok {
		cfg.Address = addr
		cfg.User, cfg.Password, _ = strings.Cut(creds, ":")
	}
	return cfg, nil
}

func (r *Runner) dialBlob() (soundcheck.BlobStore, error) {
	return minio.New(minio.Config{
		Endpoint:  r.cfg.MinioEndpoint,
		AccessKey: r.cfg.MinioAccessKey,
		SecretKey: r.cfg.MinioSecretKey,
		UseSSL:    r.cfg.MinioUseSSL,
	})
}
