package main

import (
	"io"
	"net/http"
	"strconv"
	"strings"
)

// NormalizedRequest gathers everything the book handlers read from a request.
// Query parameters stay nil when absent.
type NormalizedRequest struct {
	Fields       map[string]any
	AuthorSearch *string
	Limit        *string
	Offset       *string
	Cursor       *string
	Format       ResponseFormat
}

// NormalizeRequest extracts the json body, the known query parameters and the
// response format. A missing, oversized or malformed body yields empty fields.
func NormalizeRequest(r *http.Request, maxBodyBytes int64) NormalizedRequest {
	nr := NormalizedRequest{
		Fields: decodeBodyFields(r, maxBodyBytes),
		Format: NegotiateFormat(r),
	}

	q := r.URL.Query()
	optional := func(key string) *string {
		if !q.Has(key) {
			return nil
		}
		v := q.Get(key)
		return &v
	}
	nr.AuthorSearch = optional("authorSearch")
	nr.Limit = optional("limit")
	nr.Offset = optional("offset")
	nr.Cursor = optional("cursor")
	return nr
}

func decodeBodyFields(r *http.Request, maxBodyBytes int64) map[string]any {
	fields := map[string]any{}
	if r.Body == nil || r.Body == http.NoBody {
		return fields
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(data) == 0 || int64(len(data)) > maxBodyBytes {
		return fields
	}
	if err = jsonCodec.Unmarshal(data, &fields); err != nil || fields == nil {
		return map[string]any{}
	}
	return fields
}

// ListQuery converts the pagination parameters. Unparsable values fall back to
// zero, which the book service reads as its defaults.
func (nr NormalizedRequest) ListQuery() ListQuery {
	q := ListQuery{}
	if nr.Limit != nil {
		q.Limit, _ = strconv.Atoi(strings.TrimSpace(*nr.Limit))
	}
	if nr.Offset != nil {
		q.Offset, _ = strconv.Atoi(strings.TrimSpace(*nr.Offset))
	}
	if nr.AuthorSearch != nil && strings.TrimSpace(*nr.AuthorSearch) != "" {
		author := *nr.AuthorSearch
		q.AuthorSearch = &author
	}
	return q
}

// MsgCursorInvalid is reported when the catalog cursor is not an integer.
const MsgCursorInvalid = "Cursor must be a valid integer"

// CatalogCursor parses the catalog cursor. An absent or empty cursor starts from the beginning.
func (nr NormalizedRequest) CatalogCursor() (*int64, error) {
	if nr.Cursor == nil || strings.TrimSpace(*nr.Cursor) == "" {
		return nil, nil
	}
	cursor, err := strconv.ParseInt(strings.TrimSpace(*nr.Cursor), 10, 64)
	if err != nil {
		return nil, FieldErrors{"cursor": {MsgCursorInvalid}}
	}
	return &cursor, nil
}
