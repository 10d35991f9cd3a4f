package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestDetectFormat(t *testing.T) {
	require.Equal(t, "test", DetectFormat(ptr(int64(1)), nil))
	require.Equal(t, "odi", DetectFormat(ptr(int64(2)), nil))
	require.Equal(t, "t20i", DetectFormat(ptr(int64(3)), nil))

	// class id wins over a conflicting label
	require.Equal(t, "test", DetectFormat(ptr(int64(1)), ptr("T20")))

	require.Equal(t, "t20i", DetectFormat(nil, ptr("t20")))
	require.Equal(t, "test", DetectFormat(nil, ptr("MDM")))
	require.Equal(t, "odi", DetectFormat(nil, ptr("ODM")))
	require.Equal(t, "t20i", DetectFormat(nil, ptr("IT20")))

	require.Equal(t, "", DetectFormat(nil, ptr("THE HUNDRED")))
	require.Equal(t, "", DetectFormat(ptr(int64(9)), nil))
	require.Equal(t, "", DetectFormat(nil, nil))
}

func TestDetectGender(t *testing.T) {
	require.Equal(t, "female", DetectGender(ptr("Female"), nil, nil))
	require.Equal(t, "male", DetectGender(ptr("male"), []string{"IND-W"}, nil))
	require.Equal(t, "", DetectGender(ptr("mixed"), nil, nil))

	require.Equal(t, "female", DetectGender(nil, []string{"IND-W", "AUS-W"}, nil))
	require.Equal(t, "", DetectGender(nil, []string{"IND-W", "AUS"}, nil))

	require.Equal(t, "female", DetectGender(nil, nil, ptr("australia-women-in-india-2026")))
	require.Equal(t, "", DetectGender(nil, nil, ptr("australia-in-india-2026")))
	require.Equal(t, "", DetectGender(nil, nil, nil))
}

func TestMaxInnings(t *testing.T) {
	require.Equal(t, 4, MaxInnings("test"))
	require.Equal(t, 2, MaxInnings("odi"))
	require.Equal(t, 2, MaxInnings("t20i"))
	require.Equal(t, 2, MaxInnings(""))
}
