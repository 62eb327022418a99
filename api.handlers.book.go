package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Book endpoints response messages.
const (
	MsgBookNotFound     = "Book not found"
	MsgBookCreated      = "Book created successfully"
	MsgBookCreateFailed = "Book created unsuccessfully"
	MsgBookUpdated      = "Book updated successfully"
	MsgBookUpdateFailed = "Book updated unsuccessfully"
	MsgBookDeleted      = "Book deleted successfully"
	MsgBookDeleteFailed = "Book deleted unsuccessfully"
	MsgBookFetchFailed  = "Book fetched unsuccessfully"
	MsgBooksFetchFailed = "Books fetched unsuccessfully"
	MsgCatalogFailed    = "Catalog generated unsuccessfully"
)

// respond sends data in the negotiated format and logs a failed write.
func (api *APIHandler) respond(w http.ResponseWriter, r *http.Request, format ResponseFormat, status int, data interface{}) {
	if err := WriteFormatted(r.Context(), w, format, status, data); err != nil {
		api.logger.Error("failed to send response",
			zap.String("request.id", GetValueFromContext(r.Context(), RequestIDContextKey)),
			zap.Int("response.status", status),
			zap.Error(err),
		)
	}
}

// ListBooks serves a page of books, optionally filtered by exact author.
func (api *APIHandler) ListBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	req := NormalizeRequest(r, api.maxBodyBytes())
	books, err := api.bookService.ListBooks(r.Context(), req.ListQuery())
	if err != nil {
		api.logger.Error("failed to list books", zap.String("request.id", requestID), zap.Error(err))
		api.respond(w, r, req.Format, http.StatusInternalServerError, MessageResponse{Message: MsgBooksFetchFailed})
		return
	}
	if books == nil {
		books = []Book{}
	}
	api.respond(w, r, req.Format, http.StatusOK, BookList(books))
}

// GetBook serves a single book. Unknown ids get an empty object.
func (api *APIHandler) GetBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	req := NormalizeRequest(r, api.maxBodyBytes())
	id, err := ParseBookID(ps.ByName("id"))
	if err == nil {
		var book Book
		book, err = api.bookService.GetBook(r.Context(), id)
		if err == nil {
			api.respond(w, r, req.Format, http.StatusOK, book)
			return
		}
	}

	if errors.Is(err, ErrBookNotFound) || errors.Is(err, ErrInvalidBookID) {
		api.logger.Info("book does not exist", zap.String("request.id", requestID), zap.String("book.id", ps.ByName("id")))
		api.respond(w, r, req.Format, http.StatusNotFound, EmptyResult{})
		return
	}
	api.logger.Error("failed to get book", zap.String("request.id", requestID), zap.String("book.id", ps.ByName("id")), zap.Error(err))
	api.respond(w, r, req.Format, http.StatusInternalServerError, MessageResponse{Message: MsgBookFetchFailed})
}

// CreateBook validates and stores a new book.
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	req := NormalizeRequest(r, api.maxBodyBytes())
	book, err := api.bookService.CreateBook(r.Context(), req.Fields)

	var violations FieldErrors
	switch {
	case errors.As(err, &violations):
		api.logger.Info("invalid book payload", zap.String("request.id", requestID), zap.Strings("fields", violations.Fields()))
		api.respond(w, r, req.Format, http.StatusBadRequest, ErrorsResponse{Errors: violations})
	case err != nil:
		api.logger.Error("failed to create book", zap.String("request.id", requestID), zap.Error(err))
		api.respond(w, r, req.Format, http.StatusInternalServerError, MessageResponse{Message: MsgBookCreateFailed})
	default:
		api.logger.Info("success to create book", zap.String("request.id", requestID), zap.Int64("book.id", book.ID))
		api.respond(w, r, req.Format, http.StatusCreated, MessageResponse{Message: MsgBookCreated, ID: book.ID})
	}
}

// UpdateBook changes the supplied fields of an existing book.
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	req := NormalizeRequest(r, api.maxBodyBytes())
	id, err := ParseBookID(ps.ByName("id"))
	if err == nil {
		_, err = api.bookService.UpdateBook(r.Context(), id, req.Fields)
	}

	var violations FieldErrors
	switch {
	case errors.As(err, &violations):
		api.logger.Info("invalid book payload", zap.String("request.id", requestID), zap.Strings("fields", violations.Fields()))
		api.respond(w, r, req.Format, http.StatusBadRequest, ErrorsResponse{Errors: violations})
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrInvalidBookID):
		api.logger.Info("book does not exist", zap.String("request.id", requestID), zap.String("book.id", ps.ByName("id")))
		api.respond(w, r, req.Format, http.StatusNotFound, MessageResponse{Message: MsgBookNotFound})
	case err != nil:
		api.logger.Error("failed to update book", zap.String("request.id", requestID), zap.Int64("book.id", id), zap.Error(err))
		api.respond(w, r, req.Format, http.StatusInternalServerError, MessageResponse{Message: MsgBookUpdateFailed})
	default:
		api.logger.Info("success to update book", zap.String("request.id", requestID), zap.Int64("book.id", id))
		api.respond(w, r, req.Format, http.StatusOK, MessageResponse{Message: MsgBookUpdated})
	}
}

// DeleteBook removes a book.
func (api *APIHandler) DeleteBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	req := NormalizeRequest(r, api.maxBodyBytes())
	id, err := ParseBookID(ps.ByName("id"))
	if err == nil {
		err = api.bookService.DeleteBook(r.Context(), id)
	}

	switch {
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrInvalidBookID):
		api.logger.Info("book does not exist", zap.String("request.id", requestID), zap.String("book.id", ps.ByName("id")))
		api.respond(w, r, req.Format, http.StatusNotFound, MessageResponse{Message: MsgBookNotFound})
	case err != nil:
		api.logger.Error("failed to delete book", zap.String("request.id", requestID), zap.Int64("book.id", id), zap.Error(err))
		api.respond(w, r, req.Format, http.StatusInternalServerError, MessageResponse{Message: MsgBookDeleteFailed})
	default:
		api.logger.Info("success to delete book", zap.String("request.id", requestID), zap.Int64("book.id", id))
		api.respond(w, r, req.Format, http.StatusOK, MessageResponse{Message: MsgBookDeleted})
	}
}

// GetCatalog serves the catalog page following the `cursor` query parameter.
func (api *APIHandler) GetCatalog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	req := NormalizeRequest(r, api.maxBodyBytes())
	cursor, err := req.CatalogCursor()
	if err != nil {
		var violations FieldErrors
		errors.As(err, &violations)
		api.respond(w, r, req.Format, http.StatusBadRequest, ErrorsResponse{Errors: violations})
		return
	}

	catalog, err := api.bookService.GenerateCatalog(r.Context(), cursor)
	if err != nil {
		api.logger.Error("failed to generate catalog", zap.String("request.id", requestID), zap.Error(err))
		api.respond(w, r, req.Format, http.StatusInternalServerError, MessageResponse{Message: MsgCatalogFailed})
		return
	}
	api.respond(w, r, req.Format, http.StatusOK, catalog)
}
