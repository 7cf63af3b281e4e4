package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/meta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *manifest.Manifest {
	m := manifest.New()
	m.Version = 3
	alpha := m.EnsurePath("Alpha")
	alpha.Annotation = &manifest.Annotation{X: 1, Y: 2.5, Z: -3}
	alpha.Files = []manifest.FileEntry{{Name: "x.png", URL: "https://cdn/x.png"}}
	inner := m.EnsurePath("Alpha/Inner")
	inner.Files = []manifest.FileEntry{{Name: "deep.mp4"}}
	m.Root.Files = []manifest.FileEntry{{Name: "index.html"}}
	return m
}

func TestPrintManifest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintManifest(sampleManifest(), &buf))
	out := buf.String()

	assert.Contains(t, out, "Version: 3")
	assert.Contains(t, out, "Dirs:    2")
	assert.Contains(t, out, "Files:   3")
	assert.Contains(t, out, "Pins:    1")
	assert.Contains(t, out, "(1, 2.5, -3)")
	assert.Contains(t, out, "x.png  -> https://cdn/x.png")

	// 子目录的内容缩进在父目录之下，目录先于文件
	assert.Contains(t, out, "    deep.mp4")
	assert.Less(t, strings.Index(out, "Alpha/"), strings.Index(out, "index.html"))
	assert.Less(t, strings.Index(out, "Inner/"), strings.Index(out, "x.png"))
}

func TestPrintManifest_RootPin(t *testing.T) {
	m := manifest.New()
	m.Root.Annotation = &manifest.Annotation{}

	var buf bytes.Buffer
	require.NoError(t, PrintManifest(m, &buf))
	assert.Contains(t, buf.String(), "root")
	assert.Contains(t, buf.String(), "(0, 0, 0)")
}

func TestPrintManifest_Nil(t *testing.T) {
	assert.Error(t, PrintManifest(nil, &bytes.Buffer{}))
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []meta.RunRecord{
		{ID: 3, ManifestPath: "R/manifest.json", State: meta.StateDone, Source: meta.SourcePinSync, Version: 8, StartedAt: start, FinishedAt: start},
		{ID: 2, ManifestPath: "R/manifest.json", State: meta.StateFailed, FailedStage: "verifying", StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)},
		{ID: 1, ManifestPath: "R/manifest.json", State: meta.StateDone, DryRun: true, Fingerprint: strings.Repeat("ab", 32), Version: 7, StartedAt: start, FinishedAt: start.Add(20 * time.Millisecond)},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintRuns(runs, &buf))
	out := buf.String()

	assert.Contains(t, out, "failed@verifying")
	assert.Contains(t, out, "done (dry)")
	assert.Contains(t, out, "done (pins)")
	assert.Contains(t, out, "abababab")
	assert.NotContains(t, out, strings.Repeat("ab", 32))
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "20ms")
}
