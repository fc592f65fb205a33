package shadow

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/schema"
)

func TestShadowNameShape(t *testing.T) {
	now := time.Unix(1754400000, 0)
	name := shadowName(now)
	assert.True(t, strings.HasPrefix(name, "shem_shadow_1754400000_"))
	assert.NotEqual(t, name, shadowName(now), "names must be unique per run")
}

func TestStale(t *testing.T) {
	now := time.Unix(1754400000, 0)
	fresh := fmt.Sprintf("shem_shadow_%d_abc123", now.Add(-10*time.Minute).Unix())
	old := fmt.Sprintf("shem_shadow_%d_abc123", now.Add(-2*time.Hour).Unix())

	assert.False(t, Stale(fresh, now))
	assert.True(t, Stale(old, now))
	assert.True(t, Stale("shem_shadow_garbage", now))
	assert.True(t, Stale("shem_shadow_", now))
}

func TestDeltaEmptyForEqualModels(t *testing.T) {
	build := func() *schema.Schema {
		s := schema.New()
		require.NoError(t, s.Add(&schema.Table{
			Schema: "public", Name: "t",
			Columns: []schema.Column{{Name: "id", Type: "integer", NotNull: true}},
		}))
		return s
	}
	assert.Empty(t, Delta(build(), build()))
}

func TestDeltaReportsDifference(t *testing.T) {
	desired := schema.New()
	require.NoError(t, desired.Add(&schema.Table{
		Schema: "public", Name: "t",
		Columns: []schema.Column{
			{Name: "id", Type: "integer", NotNull: true},
			{Name: "name", Type: "text"},
		},
	}))
	actual := schema.New()
	require.NoError(t, actual.Add(&schema.Table{
		Schema: "public", Name: "t",
		Columns: []schema.Column{{Name: "id", Type: "integer", NotNull: true}},
	}))

	delta := Delta(desired, actual)
	require.NotEmpty(t, delta)
	assert.Contains(t, delta, "name text")
	assert.Contains(t, delta, "---")
}

func TestShadowDivergenceError(t *testing.T) {
	err := &schema.ShadowDivergence{Delta: "-want\n+got"}
	assert.Contains(t, err.Error(), "shadow database diverges")
	assert.Contains(t, err.Error(), "+got")
}
