package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoint(t *testing.T) {
	t.Parallel()

	p, err := parsePoint("25.0330, 121.5654")
	require.NoError(t, err)
	assert.InDelta(t, 25.0330, p.Lat, 1e-9)
	assert.InDelta(t, 121.5654, p.Lng, 1e-9)

	for _, bad := range []string{"", "25.0", "a,b", "91,0", "0,181"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestEstimateCommand(t *testing.T) {
	t.Setenv("FARE_BASE", "50000")
	t.Setenv("FARE_PER_KM", "10000")
	t.Setenv("FARE_PER_MINUTE", "1000")
	t.Setenv("FARE_PLATFORM_FEE_BPS", "1000")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"estimate", "--from", "25.0330,121.5654", "--to", "25.0330,121.5654"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "total:         56100")
}

func TestEstimateCommand_RequiresPoints(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"estimate", "--from", "25.0330,121.5654"})

	assert.Error(t, cmd.Execute())
}
