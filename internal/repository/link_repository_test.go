package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/SergeiKhy/link-registry/internal/kv"
	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkRepository_SaveWritesMetadataEnvelope(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repo := repository.NewLinkRepository(store)

	expiration := time.Now().Add(time.Hour).Unix()
	link := &models.Link{
		ID:         "id-1",
		URL:        "https://example.com",
		Slug:       "ex",
		Comment:    "hello",
		CreatedAt:  100,
		UpdatedAt:  100,
		Expiration: expiration,
	}
	require.NoError(t, repo.Save(ctx, link))

	entry, err := store.GetWithMetadata(ctx, "link:ex")
	require.NoError(t, err)

	var md models.LinkMetadata
	require.NoError(t, json.Unmarshal(entry.Metadata, &md))
	assert.Equal(t, models.LinkMetadata{Expiration: expiration, URL: link.URL, Comment: link.Comment}, md)

	got, err := repo.Get(ctx, "ex")
	require.NoError(t, err)
	assert.Equal(t, link, got)
}

func TestLinkRepository_GetMissing(t *testing.T) {
	repo := repository.NewLinkRepository(kv.NewMemoryStore())

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	exists, err := repo.Exists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLinkRepository_GetMalformed(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "link:bad", []byte("{not json"), kv.PutOptions{}))

	_, err := repository.NewLinkRepository(store).Get(ctx, "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrLinkNotFound)
}

func TestLinkRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewLinkRepository(kv.NewMemoryStore())
	require.NoError(t, repo.Save(ctx, &models.Link{URL: "https://a", Slug: "a"}))

	exists, err := repo.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete(ctx, "a"))
	exists, err = repo.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "link:abc", repository.Key("abc"))
	assert.Equal(t, "abc", repository.SlugFromKey("link:abc"))
	assert.True(t, repository.ExpirationTime(0).IsZero())
	assert.Equal(t, int64(42), repository.ExpirationTime(42).Unix())
}

// TestLinkRepository_KeepsUnknownFields проверяет, что поля старых форматов
// переживают чтение и повторную запись
func TestLinkRepository_KeepsUnknownFields(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repo := repository.NewLinkRepository(store)
	require.NoError(t, store.Put(ctx, "link:old",
		[]byte(`{"id":"id-1","url":"https://old","slug":"old","title":"Old page","tags":["a","b"]}`),
		kv.PutOptions{}))

	link, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "https://old", link.URL)
	assert.JSONEq(t, `"Old page"`, string(link.Extra["title"]))

	link.URL = "https://new"
	link.Extra["url"] = json.RawMessage(`"https://shadowed"`)
	require.NoError(t, repo.Save(ctx, link))

	raw, err := store.Get(ctx, "link:old")
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":"id-1","url":"https://new","slug":"old","createdAt":0,"updatedAt":0,"title":"Old page","tags":["a","b"]}`,
		string(raw))
}
