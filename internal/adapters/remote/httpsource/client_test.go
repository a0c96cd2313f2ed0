package httpsource_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/rostersync/internal/adapters/http/sourceapi"
	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/adapters/remote/httpsource"
	"github.com/okian/rostersync/internal/adapters/remote/remotetest"
	"github.com/okian/rostersync/internal/domain/types"
)

func setup(t *testing.T, opts ...httpsource.Option) (*remotetest.Source, *httpsource.Client) {
	t.Helper()
	src := remotetest.New()
	ts := httptest.NewServer(sourceapi.New(src).Handler())
	t.Cleanup(func() {
		src.Close()
		ts.Close()
	})
	c, err := httpsource.New(ts.URL, opts...)
	require.NoError(t, err)
	return src, c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := httpsource.New("ftp://example.com")
	assert.Error(t, err)

	_, err = httpsource.New("::")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	src, c := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, types.Raids, types.Row{"id": "r1", "name": "Molten Core", "dkp_awarded": 10.0}))
	require.NoError(t, c.Insert(ctx, types.Raids, types.Row{"id": "r2", "name": "Onyxia", "dkp_awarded": 5.0}))
	require.NoError(t, c.Update(ctx, types.Raids, "r2", types.Row{"dkp_awarded": 25.0}))

	rows, err := c.Select(ctx, types.Raids, types.Order{Column: "dkp_awarded"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "r2", rows[0].ID())
	assert.Equal(t, 25.0, rows[0]["dkp_awarded"])

	require.NoError(t, c.Delete(ctx, types.Raids, "r1"))
	assert.Len(t, src.Rows(types.Raids), 1)
}

func TestErrorsMapToSentinels(t *testing.T) {
	src, c := setup(t)
	ctx := context.Background()
	src.Seed(types.Members, types.Row{"id": "m1"})
	src.FailOn(remotetest.OpSelect, types.Scheduled, remotetest.ErrInjected)

	_, err := c.Select(ctx, "guilds", types.Order{})
	assert.ErrorIs(t, err, remote.ErrUnknownCollection)

	err = c.Update(ctx, types.Members, "ghost", types.Row{"dkp": 1.0})
	assert.ErrorIs(t, err, remote.ErrNotFound)

	err = c.Insert(ctx, types.Members, types.Row{"id": "m1"})
	assert.ErrorIs(t, err, remote.ErrConflict)

	err = c.Insert(ctx, types.Members, types.Row{"name": "nameless"})
	assert.ErrorIs(t, err, remote.ErrMissingID)

	_, err = c.Select(ctx, types.Scheduled, types.Order{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), remotetest.ErrInjected.Error())
	for _, sentinel := range []error{remote.ErrUnknownCollection, remote.ErrNotFound, remote.ErrConflict, remote.ErrMissingID} {
		assert.False(t, errors.Is(err, sentinel))
	}
}

func TestSubscribeDeliversChanges(t *testing.T) {
	src, c := setup(t)
	ctx := context.Background()

	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Insert(ctx, types.Awards, types.Row{"id": "l1", "item_name": "Thunderfury"}))
	require.NoError(t, c.Delete(ctx, types.Awards, "l1"))

	var got []types.Change
	for len(got) < 2 {
		select {
		case ch := <-sub.Changes():
			got = append(got, ch)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d changes", len(got))
		}
	}
	assert.Equal(t, types.Insert, got[0].Kind)
	assert.Equal(t, "Thunderfury", got[0].New["item_name"])
	assert.Equal(t, types.Delete, got[1].Kind)
	assert.Equal(t, "l1", got[1].RecordID())
}

func TestSubscriptionCloseEndsStream(t *testing.T) {
	_, c := setup(t)

	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	for range sub.Changes() {
	}
}

func TestSubscribeReconnects(t *testing.T) {
	var reconnects atomic.Int32
	src, c := setup(t,
		httpsource.WithReconnectRate(50),
		httpsource.WithReconnectHook(func() { reconnects.Add(1) }),
	)

	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Closing the source drops the server side of the stream.
	src.Close()
	require.Eventually(t, func() bool { return reconnects.Load() > 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestSubscribeFailsWhenUnreachable(t *testing.T) {
	c, err := httpsource.New("http://127.0.0.1:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.Subscribe(ctx)
	assert.Error(t, err)
}
