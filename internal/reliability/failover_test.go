package reliability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldAllow(t *testing.T) {
	outage := errors.New("redis: connection refused")

	assert.True(t, ShouldAllow(FailOpen, nil))
	assert.True(t, ShouldAllow(FailClosed, nil))
	assert.True(t, ShouldAllow(FailOpen, outage))
	assert.False(t, ShouldAllow(FailClosed, outage))
}
