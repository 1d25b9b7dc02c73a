package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndList(t *testing.T) {
	s := openTestStore(t)

	run := Run{
		StartedAt:      time.Unix(1000, 0),
		FinishedAt:     time.Unix(1010, 0),
		Server:         "127.0.0.1:53",
		Mode:           "udp",
		Threads:        4,
		NumSent:        1000,
		NumCompleted:   950,
		NumTimedOut:    50,
		LatencyMinUS:   120,
		LatencyAvgUS:   456.7,
		LatencyMaxUS:   9000,
		LatencyStdDev:  33.2,
		RCodeCounts:    map[int]uint64{0: 950},
	}

	id, err := s.Insert(run)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	runs, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "127.0.0.1:53", runs[0].Server)
	assert.Equal(t, uint64(950), runs[0].NumCompleted)
	assert.Equal(t, uint64(950), runs[0].RCodeCounts[0])
}

func TestListLimit(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := s.Insert(Run{
			StartedAt:   time.Unix(int64(1000+i), 0),
			FinishedAt:  time.Unix(int64(1010+i), 0),
			Server:      "127.0.0.1:53",
			Mode:        "udp",
			RCodeCounts: map[int]uint64{},
		})
		require.NoError(t, err)
	}

	runs, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	all, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
