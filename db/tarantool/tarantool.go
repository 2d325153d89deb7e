// Package tarantool adapts a Tarantool connection to the soundcheck DB
// interface using the SQL execute protocol.
package tarantool

import (
	"context"
	"fmt"
	"time"

	tnt "github.com/tarantool/go-tarantool/v2"

	"github.com/epalmerini/soundcheck"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	Address  string
	User     string
	Password string
	Timeout  time.Duration
}

type DB struct {
	conn *tnt.Connection
}

func Connect(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("tarantool address required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	dialer := tnt.NetDialer{
		Address:  cfg.Address,
		User:     cfg.User,
		Password: cfg.Password,
	}
	opts := tnt.Opts{
		Timeout: timeout,
	}

	conn, err := tnt.Connect(ctx, dialer, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Tarantool: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (d *DB) Exec(ctx context.Context, stmt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := tnt.NewExecuteRequest(stmt)
	if _, err := d.conn.Do(req).Get(); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

func (d *DB) Query(ctx context.Context, query string) (soundcheck.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := tnt.NewExecuteRequest(query)
	data, err := d.conn.Do(req).Get()
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	tuples := make([][]interface{}, 0, len(data))
	for _, raw := range data {
		tuple, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected row shape %T", raw)
		}
		tuples = append(tuples, tuple)
	}
	return &rows{tuples: tuples, idx: -1}, nil
}

func (d *DB) Ping() error {
	_, err := d.conn.Ping()
	return err
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// rows walks the tuples of one response. The whole result set is already
// in memory, so Err and Close have nothing to report.
type rows struct {
	tuples [][]interface{}
	idx    int
}

func (r *rows) Next() bool {
	r.idx++
	return r.idx < len(r.tuples)
}

func (r *rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.tuples) {
		return fmt.Errorf("scan called outside a row")
	}
	tuple := r.tuples[r.idx]
	if len(dest) > len(tuple) {
		return fmt.Errorf("%d scan destinations for %d columns", len(dest), len(tuple))
	}
	for i, d := range dest {
		if err := assign(d, tuple[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func (r *rows) Err() error { return nil }

func (r *rows) Close() error { return nil }

// assign converts a msgpack-decoded value into the scan destination.
// Integers arrive in whatever width the encoder picked, so every numeric
// destination accepts the full family.
func assign(dest any, val any) error {
	switch d := dest.(type) {
	case *string:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into *string", val)
		}
		*d = s
	case *int:
		n, ok := toInt64(val)
		if !ok {
			return fmt.Errorf("cannot scan %T into *int", val)
		}
		*d = int(n)
	case *int64:
		n, ok := toInt64(val)
		if !ok {
			return fmt.Errorf("cannot scan %T into *int64", val)
		}
		*d = n
	case *float64:
		switch v := val.(type) {
		case float64:
			*d = v
		case float32:
			*d = float64(v)
		default:
			n, ok := toInt64(val)
			if !ok {
				return fmt.Errorf("cannot scan %T into *float64", val)
			}
			*d = float64(n)
		}
	case *bool:
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("cannot scan %T into *bool", val)
		}
		*d = b
	case *[]byte:
		switch v := val.(type) {
		case []byte:
			*d = v
		case string:
			*d = []byte(v)
		default:
			return fmt.Errorf("cannot scan %T into *[]byte", val)
		}
	case *any:
		*d = val
	default:
		return fmt.Errorf("unsupported scan destination %T", dest)
	}
	return nil
}

func toInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}
