// internal/notify/dismissal_test.go
package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portal-engine/internal/common/errors"
)

func TestRedisDismissalStore_Dismissed(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisDismissalStore(client)

	mock.ExpectSMembers("dismissals:fam-a").SetVal([]string{
		"duty_assigned:a-1:1741600800",
		"slot_reserved:s-1:1741600900",
	})

	got, err := store.Dismissed(context.Background(), "fam-a")
	require.NoError(t, err)

	assert.True(t, got["duty_assigned:a-1:1741600800"])
	assert.True(t, got["slot_reserved:s-1:1741600900"])
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDismissalStore_DismissedEmpty(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisDismissalStore(client)

	mock.ExpectSMembers("dismissals:fam-a").SetVal(nil)

	got, err := store.Dismissed(context.Background(), "fam-a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisDismissalStore_Add(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisDismissalStore(client)

	mock.ExpectSAdd("dismissals:fam-a", "duty_assigned:a-1:1741600800").SetVal(1)

	err := store.Add(context.Background(), "fam-a", "duty_assigned:a-1:1741600800")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDismissalStore_InfrastructureFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisDismissalStore(client)

	mock.ExpectSMembers("dismissals:fam-a").SetErr(errors.New("connection refused"))

	_, err := store.Dismissed(context.Background(), "fam-a")
	require.Error(t, err)
	assert.True(t, apperrors.IsInfrastructure(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestMemoryDismissalStore_PerViewerIsolation(t *testing.T) {
	store := NewMemoryDismissalStore()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "fam-a", "duty_assigned:a-1:1"))

	a, err := store.Dismissed(ctx, "fam-a")
	require.NoError(t, err)
	b, err := store.Dismissed(ctx, "fam-b")
	require.NoError(t, err)

	assert.Len(t, a, 1)
	assert.Empty(t, b)
}
