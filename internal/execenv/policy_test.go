package execenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeVars(pairs ...string) []envVar {
	out := make([]envVar, 0, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		out = append(out, envVar{pairs[i], pairs[i+1]})
	}
	return out
}

func TestDefaultIsCoreInheritWithExcludes(t *testing.T) {
	vars := makeVars(
		"PATH", "/usr/bin",
		"HOME", "/home/user",
		"API_KEY", "secret",
		"CUSTOM_VAR", "value",
	)

	result := populate(vars, Default())

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.Equal(t, "/home/user", result["HOME"])
	assert.NotContains(t, result, "API_KEY")
	assert.NotContains(t, result, "CUSTOM_VAR")
}

func TestInheritAllWithDefaultExcludes(t *testing.T) {
	vars := makeVars(
		"PATH", "/usr/bin",
		"HOME", "/home/user",
		"API_KEY", "secret",
		"SECRET_TOKEN", "t",
	)

	policy := Policy{Inherit: InheritAll}
	result := populate(vars, policy)

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.Equal(t, "/home/user", result["HOME"])
	assert.NotContains(t, result, "API_KEY")
	assert.NotContains(t, result, "SECRET_TOKEN")
	assert.Len(t, result, 2)
}

func TestInheritAllIgnoringDefaultExcludes(t *testing.T) {
	vars := makeVars(
		"PATH", "/usr/bin",
		"API_KEY", "secret",
	)

	policy := Policy{Inherit: InheritAll, IgnoreDefaultExcludes: true}
	result := populate(vars, policy)

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.Equal(t, "secret", result["API_KEY"])
	assert.Len(t, result, 2)
}

func TestIncludeOnly(t *testing.T) {
	vars := makeVars("PATH", "/usr/bin", "FOO", "bar")

	policy := Policy{
		Inherit:               InheritAll,
		IgnoreDefaultExcludes: true,
		IncludeOnly:           []string{"*PATH"},
	}
	result := populate(vars, policy)

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.NotContains(t, result, "FOO")
	assert.Len(t, result, 1)
}

func TestSetOverrides(t *testing.T) {
	vars := makeVars("PATH", "/usr/bin")

	policy := Policy{
		Inherit:               InheritAll,
		IgnoreDefaultExcludes: true,
		Set:                   map[string]string{"NEW_VAR": "42"},
	}
	result := populate(vars, policy)

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.Equal(t, "42", result["NEW_VAR"])
	assert.Len(t, result, 2)
}

func TestInheritNone(t *testing.T) {
	vars := makeVars("PATH", "/usr/bin", "HOME", "/home")

	policy := Policy{
		Inherit:               InheritNone,
		IgnoreDefaultExcludes: true,
		Set:                   map[string]string{"ONLY_VAR": "yes"},
	}
	result := populate(vars, policy)

	assert.Equal(t, "yes", result["ONLY_VAR"])
	assert.NotContains(t, result, "PATH")
	assert.NotContains(t, result, "HOME")
	assert.Len(t, result, 1)
}

func TestInheritCoreKeepsOnlyCoreVars(t *testing.T) {
	vars := makeVars(
		"PATH", "/usr/bin",
		"HOME", "/home/user",
		"USER", "testuser",
		"CUSTOM_VAR", "value",
		"API_KEY", "secret",
	)

	policy := Policy{Inherit: InheritCore, IgnoreDefaultExcludes: true}
	result := populate(vars, policy)

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.Equal(t, "/home/user", result["HOME"])
	assert.Equal(t, "testuser", result["USER"])
	assert.NotContains(t, result, "CUSTOM_VAR")
	assert.NotContains(t, result, "API_KEY")
	assert.Len(t, result, 3)
}

func TestInheritCoreWithDefaultExcludes(t *testing.T) {
	vars := makeVars(
		"PATH", "/usr/bin",
		"HOME", "/home/user",
		"SECRET_TOKEN", "hidden",
	)

	result := populate(vars, Policy{Inherit: InheritCore})

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.Equal(t, "/home/user", result["HOME"])
	// SECRET_TOKEN is not a core var, so it never enters the starting set.
	assert.NotContains(t, result, "SECRET_TOKEN")
}

func TestCustomExclude(t *testing.T) {
	vars := makeVars(
		"PATH", "/usr/bin",
		"AWS_ACCESS_KEY_ID", "AKIA...",
		"AWS_SECRET_ACCESS_KEY", "secret",
		"HOME", "/home/user",
	)

	policy := Policy{
		Inherit:               InheritAll,
		IgnoreDefaultExcludes: true,
		Exclude:               []string{"AWS_*"},
	}
	result := populate(vars, policy)

	assert.Equal(t, "/usr/bin", result["PATH"])
	assert.Equal(t, "/home/user", result["HOME"])
	assert.NotContains(t, result, "AWS_ACCESS_KEY_ID")
	assert.NotContains(t, result, "AWS_SECRET_ACCESS_KEY")
	assert.Len(t, result, 2)
}

func TestSetOverridesExcluded(t *testing.T) {
	vars := makeVars("API_KEY", "old_secret")

	policy := Policy{
		Inherit: InheritAll,
		Set:     map[string]string{"API_KEY": "new_value"},
	}
	result := populate(vars, policy)

	// API_KEY is removed by default excludes, but Set re-inserts it.
	assert.Equal(t, "new_value", result["API_KEY"])
}

func TestIncludeOnlyAppliesAfterSet(t *testing.T) {
	vars := makeVars("PATH", "/usr/bin")

	policy := Policy{
		Inherit:               InheritAll,
		IgnoreDefaultExcludes: true,
		Set:                   map[string]string{"NEW_VAR": "42", "KEEP_ME": "yes"},
		IncludeOnly:           []string{"KEEP_*"},
	}
	result := populate(vars, policy)

	assert.Equal(t, "yes", result["KEEP_ME"])
	assert.NotContains(t, result, "PATH")
	assert.NotContains(t, result, "NEW_VAR")
	assert.Len(t, result, 1)
}

func TestToSlice(t *testing.T) {
	env := map[string]string{"FOO": "bar", "BAZ": "qux"}
	slice := ToSlice(env)
	assert.Len(t, slice, 2)
	assert.Contains(t, slice, "FOO=bar")
	assert.Contains(t, slice, "BAZ=qux")
}

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		s       string
		pattern string
		want    bool
	}{
		{"foo", "foo", true},
		{"foo", "bar", false},

		{"api_key", "*key*", true},
		{"API_KEY", "*key*", false}, // case-sensitive at this level
		{"secret_token", "*token*", true},
		{"path", "*key*", false},

		{"foobar", "foo*", true},
		{"foobar", "*bar", true},
		{"foobar", "*", true},
		{"", "*", true},
		{"", "", true},

		{"foo", "f?o", true},
		{"foo", "f??", true},
		{"fo", "f??", false},

		{"api_secret_key", "*secret*", true},
		{"my_token_123", "*token*", true},
		{"nothing_here", "*key*", false},
	}

	for _, tt := range tests {
		t.Run(tt.s+"_"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, wildcardMatch(tt.s, tt.pattern))
		})
	}
}

func TestMatchesAnyCaseInsensitive(t *testing.T) {
	patterns := []string{"*KEY*", "*SECRET*", "*TOKEN*"}

	assert.True(t, matchesAny("API_KEY", patterns))
	assert.True(t, matchesAny("api_key", patterns))
	assert.True(t, matchesAny("My_Secret_Value", patterns))
	assert.True(t, matchesAny("GITHUB_TOKEN", patterns))
	assert.True(t, matchesAny("github_token", patterns))
	assert.False(t, matchesAny("PATH", patterns))
	assert.False(t, matchesAny("HOME", patterns))
	assert.False(t, matchesAny("SHELL", patterns))
}
