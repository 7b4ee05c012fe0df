package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomosirt/pkg/volumeio"
)

func TestSimulateThenReconstruct(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end CLI run in short mode")
	}
	dir := t.TempDir()
	scan := filepath.Join(dir, "scan")
	recon := filepath.Join(dir, "recon")
	slices := filepath.Join(dir, "slices")
	t.Setenv("SIRT_NUM_THREADS", "2")

	var stdout, stderr bytes.Buffer
	code := run([]string{"simulate", "--phantom", "square", "--size", "16", "--slices", "2", "--angles", "8", "--out", scan}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	sino, err := volumeio.ReadSinogram(scan)
	require.NoError(t, err)
	assert.Equal(t, 2, sino.Slices)
	assert.Len(t, sino.Angles, 8)
	assert.Equal(t, 16, sino.Detectors)

	stdout.Reset()
	stderr.Reset()
	code = run([]string{
		"recon",
		"--in", scan,
		"--out", recon,
		"--iterations", "5",
		"--accumulation", "locked",
		"--export-slices", slices,
		"--format", "png",
		"--reference", phantomBase(scan),
		"--env-file", filepath.Join(dir, "missing.env"),
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	vol, err := volumeio.ReadVolume(recon)
	require.NoError(t, err)
	assert.Equal(t, 16, vol.Width)
	assert.Equal(t, 2, vol.Depth)

	for _, name := range []string{"slice_z_000.png", "slice_z_001.png"} {
		_, err := os.Stat(filepath.Join(slices, name))
		assert.NoError(t, err, name)
	}
	assert.Contains(t, stdout.String(), "Projection residual")
	assert.Contains(t, stdout.String(), "RMSE")
	assert.Contains(t, stderr.String(), "run_id")
}

func TestReconRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run([]string{"recon", "--out", filepath.Join(dir, "x")}, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"recon", "--in", filepath.Join(dir, "none"), "--out", filepath.Join(dir, "x")}, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"recon", "--in", "a", "--out", "b", "--backend", "gpu"}, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"simulate", "--phantom", "cube", "--out", filepath.Join(dir, "p")}, &stdout, &stderr))
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"frobnicate"}, &stdout, &stderr))
	assert.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "simulate")
	assert.Equal(t, 0, run([]string{"recon", "--help"}, &stdout, &stderr))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "tomosirt.yaml")
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, run([]string{"config", "init", "--out", path}, &stdout, &stderr), stderr.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "accumulation: partitioned")

	assert.Equal(t, 1, run([]string{"config", "init", "--out", path}, &stdout, &stderr), "existing file needs --force")
	assert.Equal(t, 0, run([]string{"config", "init", "--out", path, "--force"}, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"config"}, &stdout, &stderr))
}
