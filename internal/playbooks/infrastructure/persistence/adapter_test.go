package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidecue/sidecue/internal/identity"
	"github.com/sidecue/sidecue/internal/playbooks/domain"
)

// stubRepo records which backend served a call. Only the methods the
// tests exercise are implemented; the embedded interface covers the rest.
type stubRepo struct {
	domain.Repository
	name  string
	calls *[]string
}

func (s stubRepo) GetAll(ctx context.Context) ([]domain.Playbook, error) {
	*s.calls = append(*s.calls, s.name)
	return nil, nil
}

func TestAdapter_SelectsBackendPerCall(t *testing.T) {
	var calls []string
	local := stubRepo{name: "local", calls: &calls}
	remote := stubRepo{name: "remote", calls: &calls}

	loggedIn := false
	adapter := NewAdapter(local, remote, func() identity.Session {
		return identity.Session{UserID: "user-1", LoggedIn: loggedIn}
	})

	_, err := adapter.GetAll(context.Background())
	require.NoError(t, err)

	loggedIn = true
	_, err = adapter.GetAll(context.Background())
	require.NoError(t, err)

	// Sign-out must be picked up by the very next call.
	loggedIn = false
	_, err = adapter.GetAll(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"local", "remote", "local"}, calls)
}

func TestAdapter_NoRemoteConfigured(t *testing.T) {
	var calls []string
	local := stubRepo{name: "local", calls: &calls}

	adapter := NewAdapter(local, nil, func() identity.Session {
		return identity.Session{UserID: "user-1", LoggedIn: true}
	})

	_, err := adapter.GetAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"local"}, calls)
}

func TestAdapter_NilSessionDefaultsToLocal(t *testing.T) {
	var calls []string
	local := stubRepo{name: "local", calls: &calls}
	remote := stubRepo{name: "remote", calls: &calls}

	adapter := NewAdapter(local, remote, nil)

	_, err := adapter.GetAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"local"}, calls)
}
