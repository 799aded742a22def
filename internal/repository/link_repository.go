package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SergeiKhy/link-registry/internal/kv"
	"github.com/SergeiKhy/link-registry/internal/models"
)

// KeyPrefix is the namespace every link lives under.
const KeyPrefix = "link:"

var ErrLinkNotFound = errors.New("link not found")

type LinkRepository interface {
	Get(ctx context.Context, slug string) (*models.Link, error)
	Exists(ctx context.Context, slug string) (bool, error)
	Save(ctx context.Context, link *models.Link) error
	Delete(ctx context.Context, slug string) error
}

type linkRepository struct {
	store kv.Store
}

func NewLinkRepository(store kv.Store) LinkRepository {
	return &linkRepository{store: store}
}

func (r *linkRepository) Get(ctx context.Context, slug string) (*models.Link, error) {
	var link models.Link
	if err := kv.GetJSON(ctx, r.store, Key(slug), &linkValue{link: &link}); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return &link, nil
}

func (r *linkRepository) Exists(ctx context.Context, slug string) (bool, error) {
	_, err := r.store.Get(ctx, Key(slug))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check link: %w", err)
	}
	return true, nil
}

// Save writes link under its slug together with the metadata envelope.
func (r *linkRepository) Save(ctx context.Context, link *models.Link) error {
	value, err := encodeLink(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	metadata, err := json.Marshal(MetadataFor(link))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = r.store.Put(ctx, Key(link.Slug), value, kv.PutOptions{
		Expiration: ExpirationTime(link.Expiration),
		Metadata:   metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}
	return nil
}

func (r *linkRepository) Delete(ctx context.Context, slug string) error {
	if err := r.store.Delete(ctx, Key(slug)); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return nil
}

// linkFields ключи значения, которые принадлежат models.Link
var linkFields = []string{"id", "url", "slug", "comment", "createdAt", "updatedAt", "expiration"}

// linkValue декодирует значение в Link, откладывая незнакомые поля в Extra
type linkValue struct {
	link *models.Link
}

func (v *linkValue) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, v.link); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, name := range linkFields {
		delete(all, name)
	}
	if len(all) > 0 {
		v.link.Extra = all
	}
	return nil
}

// encodeLink сериализует link; поля Link имеют приоритет над Extra
func encodeLink(link *models.Link) ([]byte, error) {
	value, err := json.Marshal(link)
	if err != nil || len(link.Extra) == 0 {
		return value, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, err
	}
	for name, raw := range link.Extra {
		if _, known := fields[name]; !known && !isLinkField(name) {
			fields[name] = raw
		}
	}
	return json.Marshal(fields)
}

func isLinkField(name string) bool {
	for _, f := range linkFields {
		if f == name {
			return true
		}
	}
	return false
}

func Key(slug string) string {
	return KeyPrefix + slug
}

func SlugFromKey(name string) string {
	return strings.TrimPrefix(name, KeyPrefix)
}

// MetadataFor projects the listing fields of link.
func MetadataFor(link *models.Link) models.LinkMetadata {
	return models.LinkMetadata{
		Expiration: link.Expiration,
		URL:        link.URL,
		Comment:    link.Comment,
	}
}

// ExpirationTime converts unix seconds to a store expiry, 0 meaning none.
func ExpirationTime(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
