package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("ROLEWISE_TEST_TOKEN", "sekrit")

	t.Run("substitutes set variables", func(t *testing.T) {
		out := ExpandEnv([]byte("token: {{.ROLEWISE_TEST_TOKEN}}"))
		assert.Equal(t, "token: sekrit", string(out))
	})

	t.Run("unset variables expand to empty", func(t *testing.T) {
		out := ExpandEnv([]byte("token: {{.ROLEWISE_TEST_UNSET_VAR}}"))
		assert.Equal(t, "token: ", string(out))
	})

	t.Run("plain text passes through", func(t *testing.T) {
		in := []byte("roles:\n  developer:\n    name: Developer\n")
		assert.Equal(t, in, ExpandEnv(in))
	})
}
