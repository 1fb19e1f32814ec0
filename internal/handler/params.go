package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// Pagination describes one page of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ListResponse wraps one page of records.
type ListResponse[E any] struct {
	Data       []E        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// paginate cuts items down to the page requested by ?page= and ?limit=.
func paginate[E any](r *http.Request, items []E) (ListResponse[E], error) {
	page, err := optionalInt(r, "page")
	if err != nil {
		return ListResponse[E]{}, err
	}
	limit, err := optionalInt(r, "limit")
	if err != nil {
		return ListResponse[E]{}, err
	}
	params := domain.NewPaginationParams(page, limit)
	data, total := domain.Paginate(items, params)
	return ListResponse[E]{
		Data:       data,
		Pagination: Pagination{Page: params.Page, Limit: params.Limit, Total: total},
	}, nil
}

func optionalInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &n, nil
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (openapi_types.UUID, error) {
	var id openapi_types.UUID
	if err := id.UnmarshalText([]byte(chi.URLParam(r, "id"))); err != nil {
		return id, errors.New("id must be a UUID")
	}
	return id, nil
}

// location reads ?tz= as an IANA zone name; UTC when absent.
func location(r *http.Request) (*time.Location, error) {
	tz := r.URL.Query().Get("tz")
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", tz)
	}
	return loc, nil
}

// dateParam parses a YYYY-MM-DD query parameter as midnight in loc.
// Today is used when the parameter is absent.
func dateParam(r *http.Request, name string, loc *time.Location) (openapi_types.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return openapi_types.Date{Time: domain.StartOfDay(time.Now().In(loc))}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return openapi_types.Date{}, fmt.Errorf("%s must be a date (YYYY-MM-DD)", name)
	}
	return openapi_types.Date{Time: t}, nil
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, requestBody(err.Error()))
}

var errDayNumber = errors.New("day number must be an integer")
