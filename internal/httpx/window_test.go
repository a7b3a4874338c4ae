package httpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowReserveUpToMax(t *testing.T) {
	t.Parallel()

	d := newDomainWindows(3, time.Minute)

	for range 3 {
		_, ok := d.reserve("example.com")
		require.True(t, ok)
	}
	_, ok := d.reserve("example.com")
	require.False(t, ok)
}

func TestWindowReleaseFreesSlot(t *testing.T) {
	t.Parallel()

	d := newDomainWindows(1, time.Minute)

	at, ok := d.reserve("example.com")
	require.True(t, ok)
	_, ok = d.reserve("example.com")
	require.False(t, ok)

	d.release("example.com", at)

	_, ok = d.reserve("example.com")
	require.True(t, ok)
}

func TestWindowPrunesExpiredCalls(t *testing.T) {
	t.Parallel()

	d := newDomainWindows(1, 30*time.Millisecond)

	_, ok := d.reserve("example.com")
	require.True(t, ok)
	_, ok = d.reserve("example.com")
	require.False(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok = d.reserve("example.com")
	require.True(t, ok)
}

func TestWindowSetLimitOverridesDefault(t *testing.T) {
	t.Parallel()

	d := newDomainWindows(10, time.Minute)
	d.setLimit("slow.example.com", 1, time.Minute)

	_, ok := d.reserve("slow.example.com")
	require.True(t, ok)
	_, ok = d.reserve("slow.example.com")
	require.False(t, ok)

	// Other domains keep the default quota.
	_, ok = d.reserve("fast.example.com")
	require.True(t, ok)
	_, ok = d.reserve("fast.example.com")
	require.True(t, ok)
}

func TestWindowDomainsAreIndependent(t *testing.T) {
	t.Parallel()

	d := newDomainWindows(1, time.Minute)

	_, ok := d.reserve("one.example.com")
	require.True(t, ok)
	_, ok = d.reserve("two.example.com")
	require.True(t, ok)
	_, ok = d.reserve("one.example.com")
	require.False(t, ok)
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "finnhub.io", domainOf("https://finnhub.io/api/v1/quote?symbol=AAPL"))
	require.Equal(t, "api.example.com:8080", domainOf("http://api.example.com:8080/x"))
	require.Equal(t, "not a url", domainOf("not a url"))
}
