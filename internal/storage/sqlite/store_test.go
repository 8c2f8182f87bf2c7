package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cory-johannsen/demonlord/internal/storage"
	"github.com/cory-johannsen/demonlord/internal/storage/sqlite"
	"github.com/cory-johannsen/demonlord/internal/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() storage.Store {
		st, err := sqlite.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	}})
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "effects.db")

	st, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.SaveSubject(ctx, storetest.Subject("a")))
	require.NoError(t, st.Close())

	st, err = sqlite.Open(path)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.LoadSubject(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, storetest.Subject("a"), got)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := sqlite.Open("  ")
	assert.Error(t, err)
}

func TestPing_FailsAfterClose(t *testing.T) {
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Ping(context.Background()))
	require.NoError(t, st.Close())
	assert.Error(t, st.Ping(context.Background()))
}
