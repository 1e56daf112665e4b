package dispatcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrArgs is wrapped by every argument parsing failure.
var ErrArgs = errors.New("invalid arguments")

// Require fails unless e carries at least n arguments.
func (e Event) Require(n int) error {
	if len(e.Args) < n {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrArgs, e.Command, n, len(e.Args))
	}
	return nil
}

// Arg returns argument i with surrounding quotes and spaces removed.
func (e Event) Arg(i int) (string, error) {
	if i < 0 || i >= len(e.Args) {
		return "", fmt.Errorf("%w: %s missing argument %d", ErrArgs, e.Command, i)
	}
	return Unquote(e.Args[i]), nil
}

// Int parses argument i as an integer.
func (e Event) Int(i int) (int, error) {
	s, err := e.Arg(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Host scripts send whole numbers as floats ("3.0").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("%w: %s argument %d %q is not an integer", ErrArgs, e.Command, i, s)
		}
		v = int(f)
	}
	return v, nil
}

// Float parses argument i as a float.
func (e Event) Float(i int) (float64, error) {
	s, err := e.Arg(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s argument %d %q is not a number", ErrArgs, e.Command, i, s)
	}
	return v, nil
}

// Bool parses argument i as a boolean.
func (e Event) Bool(i int) (bool, error) {
	s, err := e.Arg(i)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, fmt.Errorf("%w: %s argument %d %q is not a boolean", ErrArgs, e.Command, i, s)
	}
	return v, nil
}

// Unquote trims whitespace and one pair of surrounding double quotes.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}
