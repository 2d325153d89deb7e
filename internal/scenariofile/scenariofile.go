// Package scenariofile loads declarative scenario documents from TOML.
//
// A document names the scenario and describes up to three blocks:
// messaging traffic, database side effects, and object-store seeds and
// checks. Loading is strict: unknown keys are rejected so typos fail fast
// instead of silently dropping an assertion.
package scenariofile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML can express budgets as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Definition is one scenario document.
type Definition struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`

	Messaging   *MessagingBlock   `toml:"messaging"`
	Database    *DatabaseBlock    `toml:"database"`
	ObjectStore *ObjectStoreBlock `toml:"objectstore"`

	// Dir is the directory the definition was loaded from. Relative
	// paths inside the document resolve against it.
	Dir string `toml:"-"`
}

// MessagingBlock drives the messaging subsystem: what to send and what
// to expect back.
type MessagingBlock struct {
	// Broker overrides the profile's broker kind for this scenario.
	Broker  string   `toml:"broker"`
	Purge   bool     `toml:"purge"`
	Budget  Duration `toml:"budget"`
	Sends   []Send   `toml:"send"`
	Expects []Expect `toml:"expect"`
}

type Send struct {
	Queue   string            `toml:"queue"`
	Body    string            `toml:"body"`
	Headers map[string]string `toml:"headers"`
}

// Expect declares one awaited message. Body is a pointer so an explicit
// empty string still means "match exactly the empty payload".
type Expect struct {
	Queue      string   `toml:"queue"`
	Body       *string  `toml:"body"`
	JSONSchema string   `toml:"json_schema"`
	NotEmpty   bool     `toml:"not_empty"`
	Contains   []string `toml:"contains"`
	Proto      string   `toml:"proto"`
}

// DatabaseBlock lists statements run before the scenario and checks run
// after it.
type DatabaseBlock struct {
	Before []string `toml:"before"`
	Checks []Check  `toml:"check"`
}

// Check is one post-condition. Want asserts every row's first column
// equals the value; MinRows asserts a row count floor; with neither set
// any non-empty result passes.
type Check struct {
	Name    string  `toml:"name"`
	Query   string  `toml:"query"`
	Want    *string `toml:"want"`
	MinRows int     `toml:"min_rows"`
}

// ObjectStoreBlock seeds objects and asserts on produced ones. An empty
// bucket falls back to the profile's bucket.
type ObjectStoreBlock struct {
	Bucket  string         `toml:"bucket"`
	Purge   []string       `toml:"purge"`
	Seeds   []Seed         `toml:"seed"`
	Expects []ExpectObject `toml:"expect"`
}

// Seed uploads one object before execution, either inline or from a
// file next to the scenario document.
type Seed struct {
	Key         string `toml:"key"`
	Body        string `toml:"body"`
	File        string `toml:"file"`
	ContentType string `toml:"content_type"`
}

type ExpectObject struct {
	Key        string   `toml:"key"`
	NotEmpty   bool     `toml:"not_empty"`
	Contains   []string `toml:"contains"`
	JSONSchema string   `toml:"json_schema"`
}

// Load reads and parses a scenario TOML file. Unknown keys, malformed
// TOML, and missing required fields are all errors.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var def Definition
	md, err := toml.Decode(string(data), &def)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", filepath.Base(path), strings.Join(keys, ", "))
	}

	def.Dir = filepath.Dir(path)
	resolvePaths(&def)

	if err := Validate(&def); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", filepath.Base(path), err)
	}
	return &def, nil
}

// resolvePaths turns document-relative paths into absolute ones.
func resolvePaths(def *Definition) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(def.Dir, p)
	}

	if def.Messaging != nil {
		for i := range def.Messaging.Expects {
			def.Messaging.Expects[i].JSONSchema = resolve(def.Messaging.Expects[i].JSONSchema)
		}
	}
	if def.ObjectStore != nil {
		for i := range def.ObjectStore.Seeds {
			def.ObjectStore.Seeds[i].File = resolve(def.ObjectStore.Seeds[i].File)
		}
		for i := range def.ObjectStore.Expects {
			def.ObjectStore.Expects[i].JSONSchema = resolve(def.ObjectStore.Expects[i].JSONSchema)
		}
	}
}

// Validate checks that required fields are present and consistent.
func Validate(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("name is required")
	}
	if def.Messaging == nil && def.Database == nil && def.ObjectStore == nil {
		return fmt.Errorf("at least one of [messaging], [database], [objectstore] is required")
	}

	if def.Messaging != nil {
		if err := validateMessaging(def.Messaging); err != nil {
			return err
		}
	}
	if def.Database != nil {
		if err := validateDatabase(def.Database); err != nil {
			return err
		}
	}
	if def.ObjectStore != nil {
		if err := validateObjectStore(def.ObjectStore); err != nil {
			return err
		}
	}
	return nil
}

func validateMessaging(m *MessagingBlock) error {
	switch m.Broker {
	case "", "amqp", "nats", "sqs":
	default:
		return fmt.Errorf("messaging: unknown broker %q (want amqp, nats or sqs)", m.Broker)
	}
	if m.Budget.Duration < 0 {
		return fmt.Errorf("messaging: budget must not be negative")
	}
	if len(m.Sends) == 0 && len(m.Expects) == 0 {
		return fmt.Errorf("messaging: at least one send or expect is required")
	}

	for i, s := range m.Sends {
		if s.Queue == "" {
			return fmt.Errorf("messaging.send[%d]: queue is required", i)
		}
	}
	for i, e := range m.Expects {
		if e.Queue == "" {
			return fmt.Errorf("messaging.expect[%d]: queue is required", i)
		}
		if e.JSONSchema != "" {
			if _, err := os.Stat(e.JSONSchema); err != nil {
				return fmt.Errorf("messaging.expect[%d]: schema file not found: %s", i, e.JSONSchema)
			}
		}
	}
	return nil
}

func validateDatabase(d *DatabaseBlock) error {
	if len(d.Before) == 0 && len(d.Checks) == 0 {
		return fmt.Errorf("database: at least one before statement or check is required")
	}
	for i, stmt := range d.Before {
		if strings.TrimSpace(stmt) == "" {
			return fmt.Errorf("database.before[%d]: statement is empty", i)
		}
	}
	for i, c := range d.Checks {
		if c.Name == "" {
			return fmt.Errorf("database.check[%d]: name is required", i)
		}
		if strings.TrimSpace(c.Query) == "" {
			return fmt.Errorf("database.check[%d]: query is required", i)
		}
		if c.Want != nil && c.MinRows > 0 {
			return fmt.Errorf("database.check[%d]: want and min_rows are mutually exclusive", i)
		}
		if c.MinRows < 0 {
			return fmt.Errorf("database.check[%d]: min_rows must not be negative", i)
		}
	}
	return nil
}

func validateObjectStore(o *ObjectStoreBlock) error {
	if len(o.Seeds) == 0 && len(o.Expects) == 0 && len(o.Purge) == 0 {
		return fmt.Errorf("objectstore: at least one seed, expect or purge prefix is required")
	}
	for i, s := range o.Seeds {
		if s.Key == "" {
			return fmt.Errorf("objectstore.seed[%d]: key is required", i)
		}
		if (s.Body == "") == (s.File == "") {
			return fmt.Errorf("objectstore.seed[%d]: exactly one of body or file is required", i)
		}
		if s.File != "" {
			if _, err := os.Stat(s.File); err != nil {
				return fmt.Errorf("objectstore.seed[%d]: file not found: %s", i, s.File)
			}
		}
	}
	for i, e := range o.Expects {
		if e.Key == "" {
			return fmt.Errorf("objectstore.expect[%d]: key is required", i)
		}
		if e.JSONSchema != "" {
			if _, err := os.Stat(e.JSONSchema); err != nil {
				return fmt.Errorf("objectstore.expect[%d]: schema file not found: %s", i, e.JSONSchema)
			}
		}
	}
	return nil
}

// List returns the scenario documents under dir, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
