package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Pagination settings of the book listings.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	CatalogPageSize  = 100
)

type BookServiceProvider interface {
	ListBooks(ctx context.Context, q ListQuery) ([]Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
	CreateBook(ctx context.Context, fields map[string]any) (Book, error)
	UpdateBook(ctx context.Context, id int64, fields map[string]any) (Book, error)
	DeleteBook(ctx context.Context, id int64) error
	GenerateCatalog(ctx context.Context, cursor *int64) (Catalog, error)
}

type BookService struct {
	logger  *zap.Logger
	storage BookStorage
	queue   Queuer
}

// NewBookService provides the book service. A nil queue disables the change mirror.
func NewBookService(logger *zap.Logger, storage BookStorage, queue Queuer) BookServiceProvider {
	return &BookService{
		logger:  logger,
		storage: storage,
		queue:   queue,
	}
}

// storageFailure hides the storage error behind ErrStorageFailure while keeping it in the chain.
func storageFailure(err error) error {
	return errors.Join(ErrStorageFailure, err)
}

// publish pushes a change onto the mirror queue. Failures never fail the caller.
func (bs *BookService) publish(ctx context.Context, qid string, book Book) {
	if bs.queue == nil {
		return
	}
	if err := bs.queue.Push(ctx, qid, book); err != nil {
		bs.logger.Error("service: failed to push book to queue", zap.String("qid", qid), zap.Int64("book.id", book.ID), zap.Error(err))
	}
}

// normalizeListQuery applies the default and maximum page sizes.
func normalizeListQuery(q ListQuery) ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.AuthorSearch != nil && *q.AuthorSearch == "" {
		q.AuthorSearch = nil
	}
	return q
}

func (bs *BookService) ListBooks(ctx context.Context, q ListQuery) ([]Book, error) {
	q = normalizeListQuery(q)
	var books []Book
	var err error
	if q.AuthorSearch != nil {
		books, err = bs.storage.FindByAuthor(ctx, *q.AuthorSearch, q.Limit, q.Offset)
	} else {
		books, err = bs.storage.FindPage(ctx, q.Limit, q.Offset)
	}
	if err != nil {
		bs.logger.Error("service: failed to list books", zap.Int("limit", q.Limit), zap.Int("offset", q.Offset), zap.Error(err))
		return nil, storageFailure(err)
	}
	return books, nil
}

func (bs *BookService) GetBook(ctx context.Context, id int64) (Book, error) {
	book, err := bs.storage.FindByID(ctx, id)
	if errors.Is(err, ErrBookNotFound) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		bs.logger.Error("service: failed to get book", zap.Int64("book.id", id), zap.Error(err))
		return Book{}, storageFailure(err)
	}
	return book, nil
}

// CreateBook validates the payload then stores the book. Violations are returned as FieldErrors.
func (bs *BookService) CreateBook(ctx context.Context, fields map[string]any) (Book, error) {
	payload, errs := ValidateBook(fields)
	if len(errs) > 0 {
		return Book{}, errs
	}

	var book Book
	payload.Apply(&book)
	id, err := bs.storage.Insert(ctx, book)
	if err != nil {
		bs.logger.Error("service: failed to create book", zap.Error(err))
		return Book{}, storageFailure(err)
	}
	book.ID = id
	bs.publish(ctx, CreateQueue, book)
	return book, nil
}

// UpdateBook changes only the fields present in the payload.
func (bs *BookService) UpdateBook(ctx context.Context, id int64, fields map[string]any) (Book, error) {
	payload, errs := ValidateBookUpdate(fields)
	if len(errs) > 0 {
		return Book{}, errs
	}

	book, err := bs.GetBook(ctx, id)
	if err != nil {
		return Book{}, err
	}

	payload.Apply(&book)
	err = bs.storage.Update(ctx, book)
	if errors.Is(err, ErrBookNotFound) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		bs.logger.Error("service: failed to update book", zap.Int64("book.id", id), zap.Error(err))
		return Book{}, storageFailure(err)
	}
	bs.publish(ctx, UpdateQueue, book)
	return book, nil
}

func (bs *BookService) DeleteBook(ctx context.Context, id int64) error {
	err := bs.storage.Delete(ctx, id)
	if errors.Is(err, ErrBookNotFound) {
		return ErrBookNotFound
	}
	if err != nil {
		bs.logger.Error("service: failed to delete book", zap.Int64("book.id", id), zap.Error(err))
		return storageFailure(err)
	}
	bs.publish(ctx, DeleteQueue, Book{ID: id})
	return nil
}

// GenerateCatalog returns the page of books following the cursor. The next
// cursor is the last id of the page, or nil once there is no more data.
func (bs *BookService) GenerateCatalog(ctx context.Context, cursor *int64) (Catalog, error) {
	books, err := bs.storage.FindPageAfterCursor(ctx, cursor, CatalogPageSize)
	if err != nil {
		bs.logger.Error("service: failed to generate catalog", zap.Error(err))
		return Catalog{}, storageFailure(err)
	}

	catalog := Catalog{CatalogData: make([]CatalogItem, 0, len(books))}
	for _, book := range books {
		catalog.CatalogData = append(catalog.CatalogData, CatalogItem{Title: book.Title, Price: book.Price})
	}
	if len(books) > 0 {
		last := books[len(books)-1].ID
		catalog.NextCursor = &last
	}
	return catalog, nil
}
