// Copyright 2016 The regionmaster Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package coordstore

import (
	"context"
	"testing"
	"time"

	"github.com/coredb/regionmaster/server/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetSetDataCAS(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cli := store.Session()

	require.NoError(t, cli.Create(ctx, "/unassigned/r1", []byte("offline"), false))
	require.ErrorIs(t, cli.Create(ctx, "/unassigned/r1", []byte("x"), false), errs.ErrNodeExists)

	node, err := cli.Get(ctx, "/unassigned/r1")
	require.NoError(t, err)
	assert.Equal(t, "offline", string(node.Data))
	assert.Equal(t, int64(0), node.Version)

	require.NoError(t, cli.SetData(ctx, "/unassigned/r1", []byte("opening"), 0))
	require.ErrorIs(t, cli.SetData(ctx, "/unassigned/r1", []byte("opening"), 0), errs.ErrBadVersion)

	node, err = cli.Get(ctx, "/unassigned/r1")
	require.NoError(t, err)
	assert.Equal(t, "opening", string(node.Data))
	assert.Equal(t, int64(1), node.Version)
}

func TestDeleteCAS(t *testing.T) {
	ctx := context.Background()
	cli := NewMemStore().Session()
	require.NoError(t, cli.Create(ctx, "/x", []byte("a"), false))
	require.ErrorIs(t, cli.Delete(ctx, "/x", 5), errs.ErrBadVersion)
	require.NoError(t, cli.Delete(ctx, "/x", 0))
	_, err := cli.Get(ctx, "/x")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEphemeralRemovedOnSessionExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	rsSession := store.Session()
	require.NoError(t, rsSession.Create(ctx, "/rs/host:1:1", []byte("meta"), true))

	exists, err := rsSession.Exists(ctx, "/rs/host:1:1")
	require.NoError(t, err)
	assert.True(t, exists)

	watcher := store.Session()
	deletedCh, err := watcher.WatchData(ctx, "/rs/host:1:1")
	require.NoError(t, err)

	ExpireSession(rsSession)

	select {
	case ev := <-deletedCh:
		assert.Equal(t, EventDeleted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected deletion event after session expiry")
	}

	exists, err = watcher.Exists(ctx, "/rs/host:1:1")
	require.NoError(t, err)
	assert.False(t, exists)

	select {
	case <-rsSession.SessionExpired():
	default:
		t.Fatal("expected SessionExpired channel to be closed")
	}
}

func TestWatchExistsFiresOnCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	watcher := store.Session()
	ch, err := watcher.WatchExists(ctx, "/table/t1")
	require.NoError(t, err)

	creator := store.Session()
	require.NoError(t, creator.Create(ctx, "/table/t1", []byte("ENABLED"), false))

	select {
	case ev := <-ch:
		assert.Equal(t, EventCreated, ev.Type)
		assert.Equal(t, "ENABLED", string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("expected created event")
	}
}

func TestListChildren(t *testing.T) {
	ctx := context.Background()
	cli := NewMemStore().Session()
	require.NoError(t, cli.Create(ctx, "/unassigned/r1", nil, false))
	require.NoError(t, cli.Create(ctx, "/unassigned/r2", nil, false))

	children, err := cli.List(ctx, "/unassigned")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, children)
}
