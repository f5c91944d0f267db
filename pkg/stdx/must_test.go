package stdx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTest = errors.New("test error")

func TestMust0(t *testing.T) {
	assert.NotPanics(t, func() { Must0(nil) })
	assert.PanicsWithError(t, errTest.Error(), func() { Must0(errTest) })
}

func TestMust1(t *testing.T) {
	assert.Equal(t, "test", Must1("test", nil))
	assert.PanicsWithError(t, errTest.Error(), func() { Must1("test", errTest) })
}
