package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStyle(t *testing.T) {
	style, err := ParseStyle(" Third_Person ")
	require.NoError(t, err)
	assert.Equal(t, StyleThirdPerson, style)
	assert.Equal(t, "third_person", style.String())

	_, err = ParseStyle("orbit")
	assert.Error(t, err)
}

func TestFlagsAreCopiedByValue(t *testing.T) {
	snap := CharacterSnapshot{Flags: NewFlags(FlagAiming)}
	cp := snap.Copy()
	cp.Flags["extra"] = true

	assert.False(t, snap.Flags.Has("extra"))
	assert.Equal(t, []string{"extra", FlagAiming}, cp.Flags.Names())

	with := snap.Flags.With(FlagCrouching)
	assert.True(t, with.Has(FlagCrouching))
	assert.False(t, snap.Flags.Has(FlagCrouching))
	assert.False(t, with.Without(FlagAiming).Has(FlagAiming))
}

func TestDegradedStrings(t *testing.T) {
	d := DegradedProbe | DegradedSchema
	assert.True(t, d.Has(DegradedProbe))
	assert.False(t, d.Has(DegradedStale))
	assert.Equal(t, []string{"probe", "schema"}, d.Strings())
}
