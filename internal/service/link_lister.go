package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/link-registry/internal/kv"
	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"go.uber.org/zap"
)

// DefaultListPageSize размер страницы при обходе хранилища
const DefaultListPageSize = 1000

var (
	// ErrListUnavailable возвращается, если хранилище не отдало страницу ключей
	ErrListUnavailable = errors.New("unable to fetch link list")

	errMissingURL = errors.New("stored link has no url")
)

// LinkLister обходит все ключи link: и собирает список ссылок,
// по пути дописывая metadata старым записям
type LinkLister struct {
	store    kv.Store
	repairer Repairer
	logger   *zap.Logger
	pageSize int
	now      func() time.Time
}

type ListerOption func(*LinkLister)

func WithPageSize(size int) ListerOption {
	return func(l *LinkLister) {
		if size > 0 {
			l.pageSize = size
		}
	}
}

// WithNow задаёт часы, по которым отбрасываются истёкшие expiration при записи metadata
func WithNow(now func() time.Time) ListerOption {
	return func(l *LinkLister) {
		if now != nil {
			l.now = now
		}
	}
}

// WithRepairer заменяет синхронную запись metadata (например, на RepairProcessor)
func WithRepairer(r Repairer) ListerOption {
	return func(l *LinkLister) {
		if r != nil {
			l.repairer = r
		}
	}
}

func NewLinkLister(store kv.Store, logger *zap.Logger, opts ...ListerOption) *LinkLister {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &LinkLister{
		store:    store,
		logger:   logger,
		pageSize: DefaultListPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.repairer == nil {
		l.repairer = NewStoreRepairer(store, logger)
	}
	return l
}

// source описывает, откуда берутся данные ключа при листинге
type source interface{ isSource() }

// metadataSource: в metadata уже есть url, читать значение не нужно
type metadataSource struct {
	url     string
	comment string
}

// legacySource: metadata нет или она неполная, нужен полный read
type legacySource struct{}

func (metadataSource) isSource() {}
func (legacySource) isSource()   {}

func classify(key kv.Key) source {
	if key.Metadata == nil {
		return legacySource{}
	}
	var md models.LinkMetadata
	if err := json.Unmarshal(key.Metadata, &md); err != nil || md.URL == "" {
		return legacySource{}
	}
	return metadataSource{url: md.URL, comment: md.Comment}
}

// listing накапливает результат одного прохода
type listing struct {
	records []models.LinkRecord
	seen    map[string]struct{}
	pages   int
	skipped int
	failed  int
}

// List возвращает все ссылки в порядке обхода хранилища. Ошибка отдельной
// записи только исключает её из результата; ошибка получения страницы
// прерывает весь листинг без частичного результата.
func (l *LinkLister) List(ctx context.Context) ([]models.LinkRecord, error) {
	acc := &listing{
		records: []models.LinkRecord{},
		seen:    make(map[string]struct{}),
	}

	var cursor string
	for {
		page, err := l.store.List(ctx, kv.ListOptions{
			Prefix: repository.KeyPrefix,
			Limit:  l.pageSize,
			Cursor: cursor,
		})
		if err != nil {
			l.logger.Error("Failed to fetch link page",
				zap.Int("page", acc.pages+1),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %w", ErrListUnavailable, err)
		}
		acc.pages++

		for _, key := range page.Keys {
			// SCAN может вернуть один ключ дважды
			if _, dup := acc.seen[key.Name]; dup {
				continue
			}
			acc.seen[key.Name] = struct{}{}

			record, err := l.resolveIsolated(ctx, key)
			switch {
			case err != nil:
				acc.failed++
				l.logger.Error("Failed to process link key",
					zap.String("key", key.Name),
					zap.Error(err),
				)
			case record == nil:
				acc.skipped++
			default:
				acc.records = append(acc.records, *record)
			}
		}

		if page.Complete || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	l.logger.Info("Links listed",
		zap.Int("records", len(acc.records)),
		zap.Int("skipped", acc.skipped),
		zap.Int("failed", acc.failed),
		zap.Int("pages", acc.pages),
	)

	return acc.records, nil
}

// resolveIsolated гарантирует, что ни ошибка, ни паника одной записи
// не выйдут за пределы обработки этого ключа
func (l *LinkLister) resolveIsolated(ctx context.Context, key kv.Key) (record *models.LinkRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = nil
			err = fmt.Errorf("panic while processing key: %v", r)
		}
	}()
	return l.resolve(ctx, key)
}

// resolve возвращает запись, либо nil без ошибки, если ключ нужно пропустить
func (l *LinkLister) resolve(ctx context.Context, key kv.Key) (*models.LinkRecord, error) {
	slug := repository.SlugFromKey(key.Name)

	switch src := classify(key).(type) {
	case metadataSource:
		return &models.LinkRecord{Slug: slug, URL: src.url, Comment: src.comment}, nil
	case legacySource:
		return l.resolveLegacy(ctx, key.Name, slug)
	default:
		return nil, fmt.Errorf("unexpected key source %T", src)
	}
}

// storedLink - поля значения, нужные листингу. comment и expiration
// читаются как есть: посторонний тип не делает запись битой.
type storedLink struct {
	URL        string          `json:"url"`
	Comment    json.RawMessage `json:"comment"`
	Expiration json.RawMessage `json:"expiration"`
}

func (v storedLink) comment() string {
	var s string
	if err := json.Unmarshal(v.Comment, &s); err != nil {
		return ""
	}
	return s
}

// unixSeconds читает числовой expiration; всё остальное считается отсутствием
func unixSeconds(raw json.RawMessage) int64 {
	var exp float64
	if err := json.Unmarshal(raw, &exp); err != nil || exp <= 0 {
		return 0
	}
	return int64(exp)
}

func (l *LinkLister) resolveLegacy(ctx context.Context, name, slug string) (*models.LinkRecord, error) {
	entry, err := l.store.GetWithMetadata(ctx, name)
	if errors.Is(err, kv.ErrNotFound) {
		// ключ удалён или истёк между list и get
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read value: %w", err)
	}
	if len(bytes.TrimSpace(entry.Value)) == 0 || bytes.Equal(bytes.TrimSpace(entry.Value), []byte("null")) {
		return nil, nil
	}

	var value storedLink
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return nil, fmt.Errorf("malformed value: %w", err)
	}
	if value.URL == "" {
		return nil, errMissingURL
	}

	record := &models.LinkRecord{Slug: slug, URL: value.URL, Comment: value.comment()}

	job, err := newRepairJob(name, entry, value, l.now())
	if err != nil {
		l.logger.Debug("Skipping metadata repair", zap.String("key", name), zap.Error(err))
		return record, nil
	}
	l.repairer.Repair(ctx, job)

	return record, nil
}

// newRepairJob собирает запись значения без изменений с обновлённой
// metadata: исходные поля сохраняются, url и comment берутся из значения.
// Прошедший expiration не становится TTL, иначе запись удалила бы живой ключ.
func newRepairJob(name string, entry *kv.Entry, value storedLink, now time.Time) (RepairJob, error) {
	fields := map[string]json.RawMessage{}
	if entry.Metadata != nil {
		if err := json.Unmarshal(entry.Metadata, &fields); err != nil || fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	expiration := unixSeconds(fields["expiration"])
	if expiration == 0 {
		expiration = unixSeconds(value.Expiration)
	}
	if expiration <= now.Unix() {
		expiration = 0
	}

	md := models.LinkMetadata{Expiration: expiration, URL: value.URL, Comment: value.comment()}
	projected, err := json.Marshal(md)
	if err != nil {
		return RepairJob{}, err
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(projected, &overlay); err != nil {
		return RepairJob{}, err
	}
	delete(fields, "comment")
	for k, v := range overlay {
		fields[k] = v
	}

	metadata, err := json.Marshal(fields)
	if err != nil {
		return RepairJob{}, err
	}

	return RepairJob{
		Key:        name,
		Value:      entry.Value,
		Metadata:   metadata,
		Expiration: repository.ExpirationTime(expiration),
	}, nil
}
