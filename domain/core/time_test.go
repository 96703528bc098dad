package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampJSONRoundTrip(t *testing.T) {
	// Fitted models carry a timestamp in their json form; the wrapper
	// must serialize like the underlying time.Time.
	type stamped struct {
		FittedAt Timestamp `json:"fitted_at"`
	}

	orig := stamped{FittedAt: NewTimestamp(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))}
	raw, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2026-03-14T09:26:53Z")

	var back stamped
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, orig.FittedAt.Time().Equal(back.FittedAt.Time()))
}

func TestTimestampString(t *testing.T) {
	ts := NewTimestamp(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	assert.Equal(t, "2026-03-14T09:26:53Z", ts.String())

	assert.True(t, Timestamp{}.IsZero())
	assert.False(t, Now().IsZero())
}
