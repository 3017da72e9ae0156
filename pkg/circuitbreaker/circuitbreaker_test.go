package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/logger"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("provider")
	cfg.ConsecutiveFailures = 3
	cfg.OpenTimeout = time.Minute
	cb := New[string](cfg, logger.Nop())

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (string, error) { return "", errBoom })
		assert.ErrorIs(t, err, errBoom)
	}

	called := false
	_, err := cb.Execute(func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.False(t, called)
	assert.True(t, IsOpen(err))
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestBreaker_IgnoresSuccessfulErrors(t *testing.T) {
	errClient := errors.New("bad request")
	cfg := DefaultConfig("provider")
	cfg.ConsecutiveFailures = 1
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errClient) }
	cb := New[int](cfg, logger.Nop())

	_, err := cb.Execute(func() (int, error) { return 0, errClient })
	assert.ErrorIs(t, err, errClient)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestIsOpen(t *testing.T) {
	assert.True(t, IsOpen(gobreaker.ErrOpenState))
	assert.False(t, IsOpen(errBoom))
}
