package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc(t *testing.T) {
	yes := Func("yes", func([]byte) bool { return true })
	assert.Equal(t, "yes", yes.Name())
	assert.NoError(t, yes.Check([]byte("anything")))

	no := Func("no", func([]byte) bool { return false })
	err := no.Check([]byte("anything"))
	require.Error(t, err)
	assert.Equal(t, "predicate returned false", err.Error())
}

func TestNotEmpty(t *testing.T) {
	r := NotEmpty()
	assert.Equal(t, "not-empty", r.Name())
	assert.NoError(t, r.Check([]byte("x")))
	assert.Error(t, r.Check(nil))
	assert.Error(t, r.Check([]byte{}))
}

func TestContains(t *testing.T) {
	r := Contains("order")
	assert.Equal(t, `contains "order"`, r.Name())
	assert.NoError(t, r.Check([]byte(`{"order":1}`)))

	err := r.Check([]byte(`{"invoice":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `does not contain "order"`)
}
