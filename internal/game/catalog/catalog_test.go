package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/demonlord/internal/game/catalog"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

func TestDefault_ValidatesAgainstDefaultSchemas(t *testing.T) {
	c := catalog.Default()
	require.NoError(t, c.Validate(stats.DefaultSchemas()))
}

func TestDefault_HealthKeys(t *testing.T) {
	c := catalog.Default()

	path, ok := c.Path("health.tempIncrease")
	require.True(t, ok)
	assert.Equal(t, "characteristics.health.value", path)

	e, ok := c.Entry("health.override")
	require.True(t, ok)
	assert.Equal(t, "characteristics.health.normal", e.Path)
	assert.Equal(t, effect.ModeOverride, e.Mode)
	assert.Equal(t, "Normal health", c.Label("health.override"))
}

func TestDefault_Polarity(t *testing.T) {
	c := catalog.Default()
	cases := map[string]bool{
		"boons.str":        false,
		"banes.str":        true,
		"reduce.defense":   true,
		"health.reduce":    false,
		"defense.bonus":    false,
		"banes.attack.all": true,
	}
	for key, negate := range cases {
		e, ok := c.Entry(key)
		require.True(t, ok, key)
		assert.Equal(t, negate, e.Negate, key)
	}
}

func TestLabel_UnknownKeyFallsBack(t *testing.T) {
	assert.Equal(t, "nope", catalog.Default().Label("nope"))
}

func TestLoad_ExplicitPolarityWins(t *testing.T) {
	doc := `
custom:
  header: Custom
  options:
    banes.fake: {path: characteristics.defense, polarity: positive}
    luck: {path: characteristics.power, polarity: negative}
`
	c, err := catalog.Load(strings.NewReader(doc))
	require.NoError(t, err)
	e, _ := c.Entry("banes.fake")
	assert.False(t, e.Negate)
	e, _ = c.Entry("luck")
	assert.True(t, e.Negate)
	assert.Equal(t, effect.ModeAdd, e.Mode, "mode defaults to add")
	assert.Equal(t, "luck", e.Label, "label defaults to key")
}

func TestLoad_RejectsDuplicateKey(t *testing.T) {
	doc := `
a:
  options:
    k: {path: x}
b:
  options:
    k: {path: y}
`
	_, err := catalog.Load(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestLoad_RejectsMissingPath(t *testing.T) {
	_, err := catalog.Load(strings.NewReader("a:\n  options:\n    k: {label: K}\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	_, err := catalog.Load(strings.NewReader("a:\n  options:\n    k: {path: x, weight: 3}\n"))
	assert.Error(t, err)
}

func TestValidate_ReportsUnknownPath(t *testing.T) {
	c, err := catalog.Load(strings.NewReader("a:\n  options:\n    k: {path: nowhere}\n"))
	require.NoError(t, err)
	err = c.Validate(stats.DefaultSchemas())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestMerge_OverrideReplacesCategory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
health:
  header: Vitality
  options:
    health.tempIncrease: {path: characteristics.health.max, label: Vigor}
`), 0644))
	override, err := catalog.LoadFile(path)
	require.NoError(t, err)

	merged, err := catalog.Default().Merge(override)
	require.NoError(t, err)
	p, _ := merged.Path("health.tempIncrease")
	assert.Equal(t, "characteristics.health.max", p)
	_, ok := merged.Entry("health.override")
	assert.False(t, ok, "replaced category drops its other keys")
	_, ok = merged.Entry("boons.str")
	assert.True(t, ok)
	h, _ := merged.Header("health")
	assert.Equal(t, "Vitality", h)
}

func TestPropertyLegacyNegates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.SampledFrom([]string{"", "x.", "attack."}).Draw(t, "prefix")
		word := rapid.SampledFrom([]string{"banes", "reduce", "Reduce", "boons", "health.reduce", "bonus"}).Draw(t, "word")
		key := prefix + word
		want := strings.Contains(key, "banes") ||
			(strings.Contains(strings.ToLower(key), "reduce") && !strings.Contains(key, "health"))
		assert.Equal(t, want, catalog.LegacyNegates(key))
	})
}
