package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrLinkExists   = errors.New("link already exists")
	ErrSlugRequired = errors.New("slug is required")
)

// Константы сервиса
const (
	slugLength      = 6
	slugCharset     = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxSlugAttempts = 5
)

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	EditLink(ctx context.Context, input *models.EditLinkInput) (*models.Link, error)
	DeleteLink(ctx context.Context, slug string) error
	GetLink(ctx context.Context, slug string) (*models.Link, error)
	ListLinks(ctx context.Context) ([]models.LinkRecord, error)
}

// Lister источник полного списка ссылок
type Lister interface {
	List(ctx context.Context) ([]models.LinkRecord, error)
}

type LinkServiceConfig struct {
	CaseSensitive bool
	Expiration    ExpirationPolicy
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo repository.LinkRepository
	lister   Lister
	cfg      LinkServiceConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(linkRepo repository.LinkRepository, lister Lister, cfg LinkServiceConfig, logger *zap.Logger) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Expiration.Now
	if now == nil {
		now = time.Now
	}
	return &linkService{
		linkRepo: linkRepo,
		lister:   lister,
		cfg:      cfg,
		logger:   logger,
		now:      now,
	}
}

// CreateLink создаёт ссылку, если slug ещё не занят
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	requested := int64(0)
	if input.Expiration != nil {
		requested = *input.Expiration
	}
	expiration, err := s.cfg.Expiration.Resolve(requested)
	if err != nil {
		return nil, err
	}

	slug := s.normalize(input.Slug)
	if slug == "" {
		slug, err = s.freeSlug(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		exists, err := s.linkRepo.Exists(ctx, slug)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrLinkExists
		}
	}

	now := s.now().Unix()
	link := &models.Link{
		ID:         uuid.NewString(),
		URL:        input.URL,
		Slug:       slug,
		Comment:    input.Comment,
		CreatedAt:  now,
		UpdatedAt:  now,
		Expiration: expiration,
	}

	if err := s.linkRepo.Save(ctx, link); err != nil {
		return nil, err
	}

	return link, nil
}

// EditLink обновляет ссылку; id и createdAt не меняются
func (s *linkService) EditLink(ctx context.Context, input *models.EditLinkInput) (*models.Link, error) {
	slug := s.normalize(input.Slug)
	if slug == "" {
		return nil, ErrSlugRequired
	}
	lookup := slug
	if input.PreviousSlug != "" {
		lookup = s.normalize(input.PreviousSlug)
	}

	existing, err := s.linkRepo.Get(ctx, lookup)
	if err != nil {
		return nil, err
	}

	if slug != lookup {
		exists, err := s.linkRepo.Exists(ctx, slug)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrLinkExists
		}
	}

	updated := *existing
	updated.URL = input.URL
	updated.Slug = slug
	updated.UpdatedAt = s.now().Unix()
	if input.Comment != nil {
		updated.Comment = *input.Comment
	}
	if input.Expiration != nil {
		if err := s.cfg.Expiration.Validate(*input.Expiration); err != nil {
			return nil, err
		}
		updated.Expiration = *input.Expiration
	}
	updated.Expiration = s.cfg.Expiration.Apply(updated.Expiration)

	if err := s.linkRepo.Save(ctx, &updated); err != nil {
		return nil, err
	}

	if slug != lookup {
		// Новая запись уже сохранена: старый ключ удаляем без отката
		if err := s.linkRepo.Delete(ctx, lookup); err != nil {
			s.logger.Warn("Failed to remove previous slug",
				zap.String("slug", lookup),
				zap.Error(err),
			)
		}
	}

	return &updated, nil
}

// DeleteLink удаляет ссылку без проверки существования
func (s *linkService) DeleteLink(ctx context.Context, slug string) error {
	slug = s.normalize(slug)
	if slug == "" {
		return nil
	}
	return s.linkRepo.Delete(ctx, slug)
}

// GetLink получает ссылку по slug
func (s *linkService) GetLink(ctx context.Context, slug string) (*models.Link, error) {
	slug = s.normalize(slug)
	if slug == "" {
		return nil, repository.ErrLinkNotFound
	}
	return s.linkRepo.Get(ctx, slug)
}

// ListLinks возвращает все ссылки
func (s *linkService) ListLinks(ctx context.Context) ([]models.LinkRecord, error) {
	return s.lister.List(ctx)
}

func (s *linkService) normalize(slug string) string {
	slug = strings.TrimSpace(slug)
	if !s.cfg.CaseSensitive {
		slug = strings.ToLower(slug)
	}
	return slug
}

// freeSlug генерирует случайный slug, которого ещё нет в хранилище
func (s *linkService) freeSlug(ctx context.Context) (string, error) {
	for i := 0; i < maxSlugAttempts; i++ {
		slug, err := generateSlug()
		if err != nil {
			return "", fmt.Errorf("failed to generate slug: %w", err)
		}
		exists, err := s.linkRepo.Exists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
	}
	return "", fmt.Errorf("failed to find a free slug after %d attempts", maxSlugAttempts)
}

// generateSlug генерирует случайный slug длиной 6 символов
func generateSlug() (string, error) {
	result := make([]byte, slugLength)
	for i := 0; i < slugLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slugCharset))))
		if err != nil {
			return "", err
		}
		result[i] = slugCharset[num.Int64()]
	}
	return string(result), nil
}
