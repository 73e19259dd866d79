package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTag(t *testing.T) {
	cases := []struct {
		in   string
		want Tag
	}{
		{"fit:strong", FitStrong},
		{"risk:none", RiskNone},
		{"risk:availability", RiskTag(RiskAvailability)},
		{" ready:sign ", ReadySign},
	}
	for _, tc := range cases {
		got, err := ParseTag(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.want.String(), got.String())
	}
}

func TestParseTagRejectsUnknown(t *testing.T) {
	for _, in := range []string{"fit", "fit:", "fit:great", "risk:weather", "mood:happy", "ready:launch"} {
		_, err := ParseTag(in)
		var ve ValidationError
		require.True(t, errors.As(err, &ve), in)
	}
}

func TestTagEntryRoundTrip(t *testing.T) {
	entry := NewTagEntry(ReadyPause, true)
	assert.Equal(t, "ready:pause", entry.String())
	tag, err := entry.Tag()
	require.NoError(t, err)
	assert.Equal(t, ReadyPause, tag)
	assert.True(t, entry.Matches(ReadyPause))
	assert.False(t, entry.Matches(ReadySign))

	_, err = TagEntry{Family: FamilyFit, Value: "sign"}.Tag()
	assert.Error(t, err)
}
