package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ospace"
)

const model = `
namespace: Shop
entities:
  - name: Customer
    key: [ID]
    properties:
      - {name: ID, type: int}
      - {name: Name, type: string}
    navigations:
      - {name: Orders, type: dataclasses.Collection, multiplicity: many, target: Order}
  - name: Order
    key: [ID]
    properties:
      - {name: ID, type: int}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateCmd(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(model), 0o644))
	out := filepath.Join(dir, "proxies")

	stdout, err := run(t, "generate",
		"--metadata", modelPath,
		"--out", out,
		"--base-import", "example.com/shop",
		"--workers", "1",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "proxies written to "+out)
	assert.FileExists(t, filepath.Join(out, "customer_proxy.go"))
	assert.FileExists(t, filepath.Join(out, "order_proxy.go"))

	src, err := os.ReadFile(filepath.Join(out, "customer_proxy.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "package proxies")
}

func TestGenerateCmd_Config(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(model), 0o644))
	out := filepath.Join(dir, "gen")
	cfgPath := filepath.Join(dir, "ospace.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"metadata:\n  path: "+modelPath+"\ngenerate:\n  out: "+out+"\n  package: shopproxies\n  base_import: example.com/shop\n"), 0o644))

	_, err := run(t, "generate", "--config", cfgPath)
	require.NoError(t, err)
	src, err := os.ReadFile(filepath.Join(out, "customer_proxy.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "package shopproxies")
}

func TestGenerateCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(model), 0o644))

	t.Run("missing metadata", func(t *testing.T) {
		_, err := run(t, "generate", "--metadata", filepath.Join(dir, "none.yaml"), "--out", t.TempDir())
		assert.Error(t, err)
	})

	t.Run("no base import", func(t *testing.T) {
		_, err := run(t, "generate", "--metadata", modelPath, "--out", t.TempDir())
		assert.True(t, ospace.IsConfigurationError(err))
	})

	t.Run("negative workers", func(t *testing.T) {
		_, err := run(t, "generate", "--metadata", modelPath, "--workers", "-2")
		assert.True(t, ospace.IsConfigurationError(err))
	})

	t.Run("arguments", func(t *testing.T) {
		_, err := run(t, "generate", "extra")
		assert.Error(t, err)
	})
}

func TestVersionCmd(t *testing.T) {
	stdout, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ospacegen version: dev")
	assert.Contains(t, stdout, "Go version: go")
}
