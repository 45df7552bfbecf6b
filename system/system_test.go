package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cafgo/caf/caf"
	"github.com/cafgo/caf/internal/baselib/actorid"
	"github.com/cafgo/caf/typeid"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Scheduler.MaxThreads = 2
	return cfg
}

func TestSpawnTellDelivers(t *testing.T) {
	as, err := New(smallConfig())
	require.NoError(t, err)
	defer as.Shutdown(context.Background())

	got := make(chan int64, 1)
	addr, err := as.Spawn(caf.Behavior{
		Handlers: []caf.Handler{
			{
				Types: []typeid.ID{typeid.Int64},
				Func: func(ctx *caf.Context, msg caf.Message) (caf.Message, bool) {
					got <- caf.MustAt[int64](msg, 0)
					return caf.Message{}, false
				},
			},
		},
	}, SpawnOptions{})
	require.NoError(t, err)
	require.False(t, addr.IsNone())

	as.Tell(addr, caf.NewMessage(typeid.Int64, int64(42)))

	select {
	case v := <-got:
		require.Equal(t, int64(42), v)
	case <-time.After(time.Second):
		t.Fatal("message was never delivered")
	}
}

func TestSpawnWithNameIsLookupable(t *testing.T) {
	as, err := New(smallConfig())
	require.NoError(t, err)
	defer as.Shutdown(context.Background())

	addr, err := as.Spawn(caf.Behavior{}, SpawnOptions{Name: "watchdog"})
	require.NoError(t, err)

	found, ok := as.Named("watchdog")
	require.True(t, ok)
	require.Equal(t, addr, found)

	_, ok = as.Named("nonexistent")
	require.False(t, ok)
}

func TestTellToUnknownActorIsDropped(t *testing.T) {
	as, err := New(smallConfig())
	require.NoError(t, err)
	defer as.Shutdown(context.Background())

	unreachable := actorid.Address{Node: as.NodeID(), Actor: 99999}
	require.NotPanics(t, func() {
		as.Tell(unreachable, caf.NewMessage())
	})
}

func TestSpawnAfterShutdownFails(t *testing.T) {
	as, err := New(smallConfig())
	require.NoError(t, err)

	require.NoError(t, as.Shutdown(context.Background()))

	_, err = as.Spawn(caf.Behavior{}, SpawnOptions{})
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownWaitsForRegisteredActors(t *testing.T) {
	as, err := New(smallConfig())
	require.NoError(t, err)

	addr, err := as.Spawn(caf.Behavior{
		Handlers: []caf.Handler{
			{
				Types: []typeid.ID{typeid.Bool},
				Func: func(ctx *caf.Context, msg caf.Message) (caf.Message, bool) {
					ctx.Quit(caf.Normal)
					return caf.Message{}, false
				},
			},
		},
	}, SpawnOptions{Registered: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), as.Pool().RegisteredCount())

	done := make(chan error, 1)
	go func() {
		done <- as.Shutdown(context.Background())
	}()

	// Shutdown's poll loop should still be waiting: nothing has told the
	// registered actor to quit yet.
	select {
	case <-done:
		t.Fatal("shutdown returned before the registered actor quit")
	case <-time.After(30 * time.Millisecond):
	}

	as.Tell(addr, caf.NewMessage(typeid.Bool, true))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown never completed")
	}
	require.Equal(t, int64(0), as.Pool().RegisteredCount())
}

func TestActorCountTracksSpawns(t *testing.T) {
	as, err := New(smallConfig())
	require.NoError(t, err)
	defer as.Shutdown(context.Background())

	require.Equal(t, 0, as.ActorCount())

	_, err = as.Spawn(caf.Behavior{}, SpawnOptions{})
	require.NoError(t, err)
	_, err = as.Spawn(caf.Behavior{}, SpawnOptions{})
	require.NoError(t, err)

	require.Equal(t, 2, as.ActorCount())
}

func TestResolveFindsLocalActor(t *testing.T) {
	as, err := New(smallConfig())
	require.NoError(t, err)
	defer as.Shutdown(context.Background())

	addr, err := as.Spawn(caf.Behavior{}, SpawnOptions{})
	require.NoError(t, err)

	cb, ok := as.Resolve(addr)
	require.True(t, ok)
	require.Equal(t, addr, cb.Address)

	_, ok = as.Resolve(actorid.Address{Node: as.NodeID(), Actor: 404})
	require.False(t, ok)
}
