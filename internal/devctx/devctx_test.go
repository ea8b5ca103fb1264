package devctx

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWraparoundOverwritesOldest(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.add(Entry{Kind: "x", Data: map[string]any{"i": i}})
	}
	got := r.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Data["i"])
	assert.Equal(t, 3, got[1].Data["i"])
	assert.Equal(t, 4, got[2].Data["i"])
}

func TestRingBeforeFillReturnsInOrder(t *testing.T) {
	r := newRing(5)
	r.add(Entry{Kind: "x", Data: map[string]any{"i": 0}})
	r.add(Entry{Kind: "x", Data: map[string]any{"i": 1}})
	got := r.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Data["i"])
	assert.Equal(t, 1, got[1].Data["i"])
}

func TestSinkHTTPRingCapacity500(t *testing.T) {
	s := New()
	for i := 0; i < 510; i++ {
		s.AddHTTP(map[string]any{"i": i})
	}
	got := s.HTTPEvents()
	require.Len(t, got, 500)
	assert.Equal(t, 10, got[0].Data["i"])
	assert.Equal(t, 509, got[499].Data["i"])
}

func TestSinkErrorRingCapacity200(t *testing.T) {
	s := New()
	for i := 0; i < 210; i++ {
		s.AddError(map[string]any{"i": i})
	}
	got := s.ErrorEvents()
	require.Len(t, got, 200)
	assert.Equal(t, 10, got[0].Data["i"])
	assert.Equal(t, 209, got[199].Data["i"])
}

type fakeFanout struct {
	subjects []string
	entries  []Entry
}

func (f *fakeFanout) Publish(subject string, e Entry) {
	f.subjects = append(f.subjects, subject)
	f.entries = append(f.entries, e)
}

func TestSinkPublishesToFanoutPerKind(t *testing.T) {
	s := New()
	f := &fakeFanout{}
	s.SetFanout(f)

	s.AddHTTP(map[string]any{"a": 1})
	s.AddWS(map[string]any{"b": 2})
	s.AddLog(map[string]any{"c": 3})
	s.AddError(map[string]any{"d": 4})

	require.Len(t, f.subjects, 4)
	assert.Equal(t, []string{
		"wsrelay.devctx.http",
		"wsrelay.devctx.ws",
		"wsrelay.devctx.log",
		"wsrelay.devctx.error",
	}, f.subjects)
	assert.Equal(t, "http", f.entries[0].Kind)
	assert.Equal(t, "error", f.entries[3].Kind)
}

func TestSinkWithoutFanoutDoesNotPanic(t *testing.T) {
	s := New()
	assert.NotPanics(t, func() {
		s.AddLog(map[string]any{"msg": fmt.Sprintf("ok")})
	})
}
