package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuitesPass(t *testing.T) {
	for _, name := range suiteNames() {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, suites[name].run(context.Background(), scratch(t.TempDir(), name)))
		})
	}
}

func TestRunSuites(t *testing.T) {
	assert.True(t, runSuites(context.Background(), t.TempDir(), []string{"fingerprint", "retry"}))
}

func TestSuiteNamesSorted(t *testing.T) {
	names := suiteNames()
	assert.Len(t, names, len(suites))
	assert.IsIncreasing(t, names)
}
