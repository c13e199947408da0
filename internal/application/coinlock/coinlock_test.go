package coinlock

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimIsExclusive(t *testing.T) {
	r := New()

	require.NoError(t, r.Claim("0xa", "serial"))
	require.NoError(t, r.Claim("0xa", "serial"))

	err := r.Claim("0xa", "pool")
	assert.ErrorIs(t, err, ErrHeld)

	holder, ok := r.Holder("0xa")
	assert.True(t, ok)
	assert.Equal(t, "serial", holder)
}

func TestRelease(t *testing.T) {
	r := New()
	require.NoError(t, r.Claim("0xa", "serial"))

	r.Release("0xa", "pool")
	_, ok := r.Holder("0xa")
	assert.True(t, ok, "only the holder can release")

	r.Release("0xa", "serial")
	_, ok = r.Holder("0xa")
	assert.False(t, ok)
	assert.NoError(t, r.Claim("0xa", "pool"))
}

func TestReleaseAll(t *testing.T) {
	r := New()
	require.NoError(t, r.Claim("0xa", "pool"))
	require.NoError(t, r.Claim("0xb", "pool"))
	require.NoError(t, r.Claim("0xc", "serial"))

	assert.Equal(t, 2, r.ReleaseAll("pool"))

	_, ok := r.Holder("0xa")
	assert.False(t, ok)
	_, ok = r.Holder("0xc")
	assert.True(t, ok)
}

func TestForOwnerSharesRegistry(t *testing.T) {
	a := ForOwner("0xowner-a")
	assert.Same(t, a, ForOwner("0xowner-a"))
	assert.NotSame(t, a, ForOwner("0xowner-b"))
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	wins := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(holder string) {
			defer wg.Done()
			if r.Claim("0xa", holder) == nil {
				wins <- holder
			}
		}(fmt.Sprintf("holder-%d", i))
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}
