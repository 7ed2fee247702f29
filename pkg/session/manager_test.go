package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBegin_ClaimsAndReleases(t *testing.T) {
	m := NewManager()

	release, err := m.Begin("thread-1", KindQuery, "why did sales drop?")
	require.NoError(t, err)
	assert.True(t, m.IsActive("thread-1"))

	release()
	assert.False(t, m.IsActive("thread-1"))
}

func TestBegin_SecondClaimRejected(t *testing.T) {
	m := NewManager()

	release, err := m.Begin("thread-1", KindResume, "")
	require.NoError(t, err)
	defer release()

	_, err = m.Begin("thread-1", KindResume, "")
	assert.ErrorIs(t, err, ErrThreadBusy)

	// A different thread is unaffected.
	release2, err := m.Begin("thread-2", KindQuery, "top products")
	require.NoError(t, err)
	release2()
}

func TestRelease_Idempotent(t *testing.T) {
	m := NewManager()

	release, err := m.Begin("thread-1", KindQuery, "q")
	require.NoError(t, err)

	release()
	release() // second call is a no-op

	// A stale release must not free a slot claimed by a newer run.
	release2, err := m.Begin("thread-1", KindQuery, "q2")
	require.NoError(t, err)
	release()
	assert.True(t, m.IsActive("thread-1"))
	release2()
	assert.False(t, m.IsActive("thread-1"))
}

func TestActive_SnapshotOrderedByStart(t *testing.T) {
	m := NewManager()

	r1, err := m.Begin("thread-a", KindQuery, "first")
	require.NoError(t, err)
	defer r1()
	r2, err := m.Begin("thread-b", KindResume, "")
	require.NoError(t, err)
	defer r2()

	runs := m.Active()
	require.Len(t, runs, 2)
	assert.Equal(t, "thread-a", runs[0].ThreadID)
	assert.Equal(t, KindQuery, runs[0].Kind)
	assert.Equal(t, "first", runs[0].Question)
	assert.Equal(t, "thread-b", runs[1].ThreadID)
	assert.NotEmpty(t, runs[0].RunID)
	assert.False(t, runs[0].StartedAt.After(runs[1].StartedAt))
}

func TestBegin_ConcurrentClaimsSingleWinner(t *testing.T) {
	m := NewManager()

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan func(), attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, err := m.Begin("thread-1", KindResume, ""); err == nil {
				wins <- release
			}
		}()
	}
	wg.Wait()
	close(wins)

	var releases []func()
	for r := range wins {
		releases = append(releases, r)
	}
	require.Len(t, releases, 1, "exactly one goroutine may claim the slot")

	releases[0]()
	assert.False(t, m.IsActive("thread-1"))
}
