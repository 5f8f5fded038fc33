package node

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tfl-research/simtfl"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func runSimulation(t *testing.T, cfg simtfl.Config, until simtfl.Time) *Simulation {
	t.Helper()
	s, err := NewSimulation(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Run(until))
	return s
}
