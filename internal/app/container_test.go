package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidecue/sidecue/internal/identity"
	"github.com/sidecue/sidecue/pkg/config"
)

func newLocalContainer(t *testing.T) *Container {
	t.Helper()

	cfg := &config.Config{
		AppEnv:     "development",
		SQLitePath: filepath.Join(t.TempDir(), "data.db"),
		BridgeAddr: "127.0.0.1:0",
	}
	container, err := NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	return container
}

func TestContainer_LocalMode(t *testing.T) {
	container := newLocalContainer(t)

	assert.NotNil(t, container.PlaybookService)
	assert.NotNil(t, container.Engine)
	assert.NotNil(t, container.LicenseService)
	assert.NotNil(t, container.Bridge)

	// Without a remote store everything must work end to end locally.
	require.NoError(t, container.SeedDefaults(context.Background()))
	templates, err := container.PlaybookService.GetTemplates(context.Background())
	require.NoError(t, err)
	assert.Len(t, templates, 6)
}

func TestContainer_SeedIsIdempotent(t *testing.T) {
	container := newLocalContainer(t)

	require.NoError(t, container.SeedDefaults(context.Background()))
	require.NoError(t, container.SeedDefaults(context.Background()))

	templates, err := container.PlaybookService.GetTemplates(context.Background())
	require.NoError(t, err)
	assert.Len(t, templates, 6)
}

func TestContainer_AuthorityGateSelection(t *testing.T) {
	// Without an authority URL the gate validates against the embedded
	// store and no HTTP client is built.
	local := newLocalContainer(t)
	assert.Nil(t, local.Authority)

	cfg := &config.Config{
		AppEnv:       "development",
		SQLitePath:   filepath.Join(t.TempDir(), "data.db"),
		BridgeAddr:   "127.0.0.1:0",
		AuthorityURL: "https://authority.test",
	}
	online, err := NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(online.Close)
	assert.NotNil(t, online.Authority)
}

func TestContainer_SessionStoreDrivesBackendSelection(t *testing.T) {
	container := newLocalContainer(t)

	assert.False(t, container.Sessions.Current().LoggedIn)
	container.Sessions.Set(identity.Session{UserID: "user-1", LoggedIn: true})
	assert.Equal(t, "user-1", container.Sessions.Current().UserID)
	container.Sessions.Clear()
	assert.False(t, container.Sessions.Current().LoggedIn)
}
