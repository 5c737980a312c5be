package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			"Generic NotFound",
			errors.NotFound("not found"),
			true,
		},
		{
			"Document NotFound",
			errors.New(errors.ErrCodeDocumentNotFound, "document not found"),
			true,
		},
		{
			"Run NotFound",
			errors.New(errors.ErrCodeRunNotFound, "extraction run not found"),
			true,
		},
		{
			"Internal Error",
			errors.Internal("internal error"),
			false,
		},
		{
			"Wrapped NotFound",
			errors.Wrap(errors.NotFound("not found"), errors.CodeInternal, "wrapped"),
			true,
		},
		{
			"Plain error",
			fmt.Errorf("plain error"),
			false,
		},
		{
			"Nil error",
			nil,
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, errors.IsNotFound(tc.err))
		})
	}
}
