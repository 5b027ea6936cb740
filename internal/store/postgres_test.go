package store

import (
	"errors"
	"fmt"
	"testing"
)

type stateError struct {
	state string
}

func (e *stateError) Error() string    { return "pq: constraint violated" }
func (e *stateError) SQLState() string { return e.state }

func TestIsUniqueViolation(t *testing.T) {
	unique := &stateError{state: "23505"}

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unique violation", unique, true},
		{"wrapped unique violation", fmt.Errorf("insert version: %w", unique), true},
		{"other sql state", &stateError{state: "23503"}, false},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: IsUniqueViolation = %v, want %v", tc.name, got, tc.want)
		}
	}
}
