package toolchain

import (
	"context"
	"fmt"
	"testing"

	"forge/internal/config"
	"forge/internal/shell"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(found map[string]bool) *Manager {
	cfg := config.Default()
	m := NewManager(cfg, shell.NewRunner())
	m.lookPath = func(binary string) (string, error) {
		if found[binary] {
			return "/usr/bin/" + binary, nil
		}
		return "", fmt.Errorf("%s: not found", binary)
	}
	return m
}

func TestProbe(t *testing.T) {
	m := newTestManager(map[string]bool{"go": true, "gofmt": true})

	statuses := m.Probe(context.Background())
	require.Len(t, statuses, 3)

	byName := make(map[string]Status)
	for _, s := range statuses {
		byName[s.Tool.Name] = s
	}

	assert.True(t, byName["go"].Found)
	assert.Equal(t, "/usr/bin/go", byName["go"].Path)
	assert.True(t, byName["gofmt"].Found)
	assert.False(t, byName["lint"].Found)
}

func TestEnsure_RequiredMissing(t *testing.T) {
	m := newTestManager(map[string]bool{"gofmt": true})

	err := m.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"go" not found`)
}

func TestEnsure_OptionalMissingWithoutBootstrap(t *testing.T) {
	m := newTestManager(map[string]bool{"go": true, "gofmt": true})
	m.cfg.Toolchain.Bootstrap = false

	// Missing optional tool is tolerated when bootstrap is off.
	assert.NoError(t, m.Ensure(context.Background()))
}

func TestEnsure_AllPresent(t *testing.T) {
	m := newTestManager(map[string]bool{"go": true, "gofmt": true, "golangci-lint": true})
	assert.NoError(t, m.Ensure(context.Background()))
}

func TestTools_UsesConfiguredBinaries(t *testing.T) {
	cfg := config.Default()
	cfg.Toolchain.Go = "/opt/go/bin/go"
	cfg.Toolchain.Lint = "staticcheck"
	m := NewManager(cfg, shell.NewRunner())

	tools := m.Tools()
	require.Len(t, tools, 3)
	assert.Equal(t, "/opt/go/bin/go", tools[0].Binary)
	assert.Equal(t, "staticcheck", tools[2].Binary)
	assert.True(t, tools[0].Required)
	assert.False(t, tools[2].Required)
}
