// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, path ids and the shared query filters.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/services"
)

const maxBodyBytes = 1 << 20

var (
	ErrInvalidJSON = core.Validation("Invalid JSON body")
	ErrInvalidID   = core.Validation("Invalid id")
)

// decodeJSON reads a JSON object into dst. An empty body decodes as {} so
// missing fields surface as validation errors from the services.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return ErrInvalidJSON
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// userID returns the authenticated caller. Handlers behind the token
// middleware always have one.
func userID(r *http.Request) int64 {
	id, _ := auth.IdentityFromContext(r.Context())
	return id.UserID
}

// ParseFilter reads the optional from, to and type query parameters.
// A date-only "to" bound includes the whole day.
func ParseFilter(query url.Values) (core.TransactionFilter, error) {
	var f core.TransactionFilter
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		t, err := core.ParseDateBound(v, false)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		t, err := core.ParseDateBound(v, true)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	txType, err := parseOptionalType(query.Get("type"))
	if err != nil {
		return f, err
	}
	f.Type = txType
	return f, nil
}

func parseOptionalType(s string) (core.TransactionType, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return core.ParseTransactionType(s)
}

// ParseYear reads the year query parameter, falling back to def when absent.
func ParseYear(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("year"))
	if v == "" {
		return def, nil
	}
	year, err := strconv.Atoi(v)
	if err != nil {
		return 0, services.ErrInvalidYear
	}
	return year, nil
}

// isNull reports whether a raw JSON field was sent as an explicit null.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// createTransactionRequest is the POST /api/transactions body.
type createTransactionRequest struct {
	Amount          json.RawMessage `json:"amount"`
	Type            string          `json:"type"`
	TransactionDate string          `json:"transactionDate"`
	CategoryName    *string         `json:"categoryName"`
	Note            *string         `json:"note"`
}

func (req createTransactionRequest) toNewTransaction() (core.NewTransaction, error) {
	var in core.NewTransaction
	if len(req.Amount) > 0 {
		if err := in.Amount.UnmarshalJSON(req.Amount); err != nil {
			return in, core.ErrInvalidAmount
		}
	}
	in.Type = core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type)))
	if v := strings.TrimSpace(req.TransactionDate); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return in, err
		}
		in.Date = d
	}
	if req.CategoryName != nil {
		in.CategoryName = *req.CategoryName
	}
	in.Note = req.Note
	return in, nil
}

// updateTransactionRequest keeps every field raw so that absent, null and
// set can be told apart.
type updateTransactionRequest struct {
	Amount          json.RawMessage `json:"amount"`
	Type            json.RawMessage `json:"type"`
	TransactionDate json.RawMessage `json:"transactionDate"`
	CategoryName    json.RawMessage `json:"categoryName"`
	Note            json.RawMessage `json:"note"`
}

var errNotString = errors.New("not a string")

func rawString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errNotString
	}
	return s, nil
}

// toPatch builds a partial update. Absent or null amount, type and date keep
// their stored value; null note clears the note; null categoryName detaches
// the category.
func (req updateTransactionRequest) toPatch() (core.TransactionPatch, error) {
	var p core.TransactionPatch

	if len(req.Amount) > 0 && !isNull(req.Amount) {
		var m core.Money
		if err := m.UnmarshalJSON(req.Amount); err != nil {
			return p, core.ErrInvalidAmount
		}
		p.Amount = &m
	}
	if len(req.Type) > 0 && !isNull(req.Type) {
		s, err := rawString(req.Type)
		if err != nil {
			return p, core.ErrInvalidType
		}
		t, err := core.ParseTransactionType(s)
		if err != nil {
			return p, err
		}
		p.Type = &t
	}
	if len(req.TransactionDate) > 0 && !isNull(req.TransactionDate) {
		s, err := rawString(req.TransactionDate)
		if err != nil {
			return p, core.ErrInvalidDate
		}
		d, err := core.ParseDate(s)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	if len(req.Note) > 0 {
		p.NoteSet = true
		if !isNull(req.Note) {
			s, err := rawString(req.Note)
			if err != nil {
				return p, ErrInvalidJSON
			}
			p.Note = &s
		}
	}
	if len(req.CategoryName) > 0 {
		if isNull(req.CategoryName) {
			p.ClearCategory = true
		} else {
			s, err := rawString(req.CategoryName)
			if err != nil {
				return p, ErrInvalidJSON
			}
			p.CategoryName = &s
		}
	}
	return p, nil
}
