package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fikri-aulia/sapa-go-api/internal/models"
)

func TestHistoryRepositoryListNewestFirst(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewHistoryRepository(db)

	first := models.MessageHistory{MessageID: 1, OldBody: "draft one", EditedByID: "alice"}
	second := models.MessageHistory{MessageID: 1, OldBody: "draft two", EditedByID: "alice"}
	other := models.MessageHistory{MessageID: 2, OldBody: "unrelated", EditedByID: "bob"}
	require.NoError(t, repo.Create(context.Background(), &first))
	require.NoError(t, repo.Create(context.Background(), &second))
	require.NoError(t, repo.Create(context.Background(), &other))

	entries, err := repo.ListByMessage(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "draft two", entries[0].OldBody, "latest edit first")
	require.Equal(t, "draft one", entries[1].OldBody)
}

func TestHistoryRepositoryPurges(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewHistoryRepository(db)

	entries := []models.MessageHistory{
		{MessageID: 1, OldBody: "a", EditedByID: "alice"},
		{MessageID: 2, OldBody: "b", EditedByID: "alice"},
		{MessageID: 3, OldBody: "c", EditedByID: "bob"},
	}
	for i := range entries {
		require.NoError(t, repo.Create(context.Background(), &entries[i]))
	}

	require.NoError(t, repo.DeleteByMessageIDs(context.Background(), []uint{1}))

	var remaining int64
	require.NoError(t, db.Model(&models.MessageHistory{}).Count(&remaining).Error)
	require.Equal(t, int64(2), remaining)

	require.NoError(t, repo.DeleteByEditor(context.Background(), "alice"))
	require.NoError(t, db.Model(&models.MessageHistory{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)

	require.NoError(t, repo.DeleteByMessageIDs(context.Background(), nil))
	require.NoError(t, db.Model(&models.MessageHistory{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)
}
