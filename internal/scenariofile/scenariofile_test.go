package scenariofile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFullDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "order.schema.json"), []byte(`{"type":"object"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.json"), []byte(`{"seed":true}`), 0644))

	path := writeScenario(t, dir, "order-flow.toml", `
name = "order-flow"
description = "order settles end to end"

[messaging]
purge = true
budget = "15s"

[[messaging.send]]
queue = "orders.in"
body = '{"id":"ord-1"}'

[messaging.send.headers]
trace-id = "t-1"

[[messaging.expect]]
queue = "orders.out"
body = '{"ok":true}'

[[messaging.expect]]
queue = "audit.out"
json_schema = "order.schema.json"
not_empty = true
contains = ["ord-1"]

[database]
before = ["DELETE FROM orders"]

[[database.check]]
name = "all settled"
query = "SELECT status FROM orders"
want = "settled"

[objectstore]
bucket = "exports"
purge = ["tmp/"]

[[objectstore.seed]]
key = "in/fixture.json"
file = "fixture.json"
content_type = "application/json"

[[objectstore.expect]]
key = "exports/report.json"
not_empty = true
`)

	def, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "order-flow", def.Name)
	assert.Equal(t, dir, def.Dir)

	require.NotNil(t, def.Messaging)
	assert.True(t, def.Messaging.Purge)
	assert.Equal(t, 15*time.Second, def.Messaging.Budget.Duration)
	require.Len(t, def.Messaging.Sends, 1)
	assert.Equal(t, "orders.in", def.Messaging.Sends[0].Queue)
	assert.Equal(t, "t-1", def.Messaging.Sends[0].Headers["trace-id"])

	require.Len(t, def.Messaging.Expects, 2)
	require.NotNil(t, def.Messaging.Expects[0].Body)
	assert.Equal(t, `{"ok":true}`, *def.Messaging.Expects[0].Body)
	assert.Nil(t, def.Messaging.Expects[1].Body)
	assert.Equal(t, filepath.Join(dir, "order.schema.json"), def.Messaging.Expects[1].JSONSchema)
	assert.Equal(t, []string{"ord-1"}, def.Messaging.Expects[1].Contains)

	require.NotNil(t, def.Database)
	require.Len(t, def.Database.Checks, 1)
	require.NotNil(t, def.Database.Checks[0].Want)
	assert.Equal(t, "settled", *def.Database.Checks[0].Want)

	require.NotNil(t, def.ObjectStore)
	assert.Equal(t, filepath.Join(dir, "fixture.json"), def.ObjectStore.Seeds[0].File)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "typo.toml", `
name = "typo"

[messaging]
budgit = "5s"

[[messaging.send]]
queue = "q"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "budgit")
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "broken.toml", "not valid [[[ toml")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse TOML")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestEmptyBodyIsExactMatch(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "empty.toml", `
name = "empty-body"

[[messaging.expect]]
queue = "out"
body = ""
`)

	def, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, def.Messaging.Expects[0].Body)
	assert.Equal(t, "", *def.Messaging.Expects[0].Body)
}

func TestValidateErrors(t *testing.T) {
	want := func(s string) *string { return &s }

	tests := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{
			"missing name",
			Definition{},
			"name is required",
		},
		{
			"no blocks",
			Definition{Name: "x"},
			"at least one of",
		},
		{
			"unknown broker",
			Definition{Name: "x", Messaging: &MessagingBlock{
				Broker: "kafka",
				Sends:  []Send{{Queue: "q"}},
			}},
			`unknown broker "kafka"`,
		},
		{
			"negative budget",
			Definition{Name: "x", Messaging: &MessagingBlock{
				Budget: Duration{-time.Second},
				Sends:  []Send{{Queue: "q"}},
			}},
			"budget must not be negative",
		},
		{
			"empty messaging block",
			Definition{Name: "x", Messaging: &MessagingBlock{}},
			"at least one send or expect",
		},
		{
			"send without queue",
			Definition{Name: "x", Messaging: &MessagingBlock{
				Sends: []Send{{Body: "b"}},
			}},
			"messaging.send[0]: queue is required",
		},
		{
			"expect without queue",
			Definition{Name: "x", Messaging: &MessagingBlock{
				Expects: []Expect{{NotEmpty: true}},
			}},
			"messaging.expect[0]: queue is required",
		},
		{
			"check without query",
			Definition{Name: "x", Database: &DatabaseBlock{
				Checks: []Check{{Name: "c"}},
			}},
			"database.check[0]: query is required",
		},
		{
			"want and min_rows together",
			Definition{Name: "x", Database: &DatabaseBlock{
				Checks: []Check{{Name: "c", Query: "SELECT 1", Want: want("1"), MinRows: 2}},
			}},
			"mutually exclusive",
		},
		{
			"objectstore with nothing to do",
			Definition{Name: "x", ObjectStore: &ObjectStoreBlock{
				Bucket: "exports",
			}},
			"at least one seed, expect or purge",
		},
		{
			"seed with both body and file",
			Definition{Name: "x", ObjectStore: &ObjectStoreBlock{
				Bucket: "b",
				Seeds:  []Seed{{Key: "k", Body: "x", File: "/tmp/f"}},
			}},
			"exactly one of body or file",
		},
		{
			"seed with neither body nor file",
			Definition{Name: "x", ObjectStore: &ObjectStoreBlock{
				Bucket: "b",
				Seeds:  []Seed{{Key: "k"}},
			}},
			"exactly one of body or file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateMissingSchemaFile(t *testing.T) {
	def := Definition{
		Name: "x",
		Messaging: &MessagingBlock{
			Expects: []Expect{{Queue: "q", JSONSchema: "/nonexistent/schema.json"}},
		},
	}

	err := Validate(&def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema file not found")
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.toml", `name = "b"`)
	writeScenario(t, dir, "a.toml", `name = "a"`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.toml"), 0755))

	paths, err := List(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "a.toml"), paths[0])
	assert.Equal(t, filepath.Join(dir, "b.toml"), paths[1])
}

func TestListMissingDir(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
