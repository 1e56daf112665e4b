package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Require(t *testing.T) {
	e := Event{Command: ":REGISTER:", Args: []string{"crate", "1", "2"}}

	assert.NoError(t, e.Require(3))
	err := e.Require(4)
	assert.ErrorIs(t, err, ErrArgs)
	assert.Contains(t, err.Error(), ":REGISTER: expects 4, got 3")
}

func TestEvent_Parsers(t *testing.T) {
	e := Event{Command: ":HEAT:ADD:", Args: []string{`"crate"`, " 3 ", "2.0", "12.5", "TRUE", "x"}}

	s, err := e.Arg(0)
	require.NoError(t, err)
	assert.Equal(t, "crate", s)

	i, err := e.Int(1)
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	i, err = e.Int(2)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = e.Int(3)
	assert.ErrorIs(t, err, ErrArgs)

	f, err := e.Float(3)
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	b, err := e.Bool(4)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = e.Float(5)
	assert.ErrorIs(t, err, ErrArgs)
	_, err = e.Bool(5)
	assert.ErrorIs(t, err, ErrArgs)
	_, err = e.Arg(6)
	assert.ErrorIs(t, err, ErrArgs)
	_, err = e.Arg(-1)
	assert.ErrorIs(t, err, ErrArgs)
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "a", Unquote(`"a"`))
	assert.Equal(t, `"`, Unquote(`"`))
	assert.Equal(t, "", Unquote(`""`))
	assert.Equal(t, "b", Unquote("  b  "))
}
