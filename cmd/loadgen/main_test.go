package main

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpipe/internal/types"
)

func testGenerator(opts options) *generator {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return newGenerator(opts, rand.New(rand.NewPCG(1, 2)), func() time.Time { return fixed })
}

func TestGenerator_EventsPassValidation(t *testing.T) {
	g := testGenerator(options{count: 200, critical: 0.3, app: "shop"})
	v := types.NewPayloadValidator()

	for range 200 {
		var ev types.Event
		require.NoError(t, json.Unmarshal(g.next(), &ev))
		require.NoError(t, v.Event(&ev))
		assert.Equal(t, "shop", ev.AppName)
		assert.Equal(t, int64(1777636800000), ev.Timestamp)
		if ev.Severity.Critical() {
			assert.NotEmpty(t, ev.Stack)
		}
	}
	assert.Zero(t, g.invalid)
	assert.Greater(t, g.critical, 0)
	assert.Less(t, g.critical, 200)
}

func TestGenerator_AllCritical(t *testing.T) {
	g := testGenerator(options{critical: 1, app: "shop"})
	for range 50 {
		g.next()
	}
	assert.Equal(t, 50, g.critical)
}

func TestGenerator_InvalidPayloads(t *testing.T) {
	g := testGenerator(options{invalid: 1, app: "shop"})
	v := types.NewPayloadValidator()

	for range 20 {
		var ev types.Event
		if err := json.Unmarshal(g.next(), &ev); err != nil {
			continue
		}
		assert.Error(t, v.Event(&ev))
	}
	assert.Equal(t, 20, g.invalid)
}

func TestOptions_Validate(t *testing.T) {
	valid := options{count: 1, critical: 0.1, channel: "events_channel"}
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(o *options)
	}{
		{"zero count", func(o *options) { o.count = 0 }},
		{"critical above one", func(o *options) { o.critical = 1.5 }},
		{"negative invalid", func(o *options) { o.invalid = -0.1 }},
		{"empty channel", func(o *options) { o.channel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			assert.Error(t, o.validate())
		})
	}
}
