package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootPath(t *testing.T) {
	m := Compile("/")
	params, ok := m.Match("/")
	assert.True(t, ok)
	assert.Empty(t, params)
}

func TestLiteralMatch(t *testing.T) {
	m := Compile("/api/test")
	_, ok := m.Match("/api/test")
	assert.True(t, ok)
	_, ok = m.Match("/api/test/extra")
	assert.False(t, ok)
	_, ok = m.Match("/api/other")
	assert.False(t, ok)
}

func TestSingleCapture(t *testing.T) {
	m := Compile("/api/test/:id")
	params, ok := m.Match("/api/test/42")
	assert.True(t, ok)
	assert.Equal(t, "42", params["id"])
}

func TestTwoCaptures(t *testing.T) {
	m := Compile(":a/:b")
	params, ok := m.Match("/x/y")
	assert.True(t, ok)
	assert.Equal(t, "x", params["a"])
	assert.Equal(t, "y", params["b"])
}

func TestRepeatedNameLastCaptureWins(t *testing.T) {
	m := Compile("/:a/:a")
	params, ok := m.Match("/x/y")
	assert.True(t, ok)
	assert.Equal(t, "y", params["a"])
}

func TestAnchored(t *testing.T) {
	m := Compile("/api/docs")
	_, ok := m.Match("/api/docsomething")
	assert.False(t, ok)
}

func TestEmptySegmentDoesNotMatchCapture(t *testing.T) {
	m := Compile("/api/:id")
	_, ok := m.Match("/api/")
	assert.False(t, ok)
}
