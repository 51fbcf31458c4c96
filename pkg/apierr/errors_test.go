package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"validation", Invalid("symbol", "missing market suffix"), ErrValidation},
		{"wrapped validation", fmt.Errorf("submit: %w", Invalid("quantity", "must be positive")), ErrValidation},
		{"server", &ServerError{Code: 301600, Message: "invalid symbol"}, ErrServer},
		{"partial", &PartialFailure{Failed: []string{"BAD.US"}}, ErrPartialFailure},
		{"partial cause", &PartialFailure{Failed: []string{"BAD.US"}, Cause: ErrTimeout}, ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.target))
		})
	}
}

func TestFailedItems(t *testing.T) {
	err := fmt.Errorf("subscribe: %w", &PartialFailure{Failed: []string{"X.US", "Y.HK"}})
	assert.Equal(t, []string{"X.US", "Y.HK"}, FailedItems(err))
	assert.Nil(t, FailedItems(ErrTimeout))
	assert.Contains(t, err.Error(), "2 rejected [X.US,Y.HK]")
}

func TestServerErrorMessage(t *testing.T) {
	err := &ServerError{Code: 7, Message: "boom", TraceID: "abc"}
	assert.Equal(t, "server error 7: boom (trace abc)", err.Error())
	var se *ServerError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &se))
	assert.Equal(t, int64(7), se.Code)
}
