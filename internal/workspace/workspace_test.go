package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"", true},
		{"alpha", false},
		{"a/b", true},
		{"a\\b", true},
		{"../escape", true},
		{string(make([]byte, 65)), true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if c.wantErr {
			assert.Error(t, err, c.name)
		} else {
			assert.NoError(t, err, c.name)
		}
	}
}

func TestResolveDisjointAgents(t *testing.T) {
	a, err := Resolve("/home/x/.autopoiesis", "alpha")
	require.NoError(t, err)
	b, err := Resolve("/home/x/.autopoiesis", "beta")
	require.NoError(t, err)

	assert.NotEqual(t, a.Root, b.Root)
	assert.False(t, hasPrefixPath(b.Root, a.Root))
	assert.False(t, hasPrefixPath(a.Root, b.Root))
}

func TestResolveNamePrecedence(t *testing.T) {
	t.Setenv("AUTOPOIESIS_AGENT", "from-env")
	assert.Equal(t, "explicit", ResolveName("explicit"))
	assert.Equal(t, "from-env", ResolveName(""))
}

func hasPrefixPath(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix && (len(path) == len(prefix) || path[len(prefix)] == '/')
}
