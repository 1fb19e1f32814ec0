package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// imagePayload is the optional image attached to a create or update body.
// JSON carries it base64 encoded under "image".
type imagePayload struct {
	Image []byte `json:"image,omitempty"`
}

// readRecord decodes a record and its optional image from the request body.
func readRecord[T any](r *http.Request) (T, []byte, error) {
	var rec T
	if r.Body == nil {
		return rec, nil, errRequestBody
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return rec, nil, err
		}
		return rec, nil, errRequestBody
	}
	if len(raw) == 0 {
		return rec, nil, errRequestBody
	}
	var img imagePayload
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, nil, errRequestBody
	}
	if err := json.Unmarshal(raw, &img); err != nil {
		return rec, nil, errRequestBody
	}
	return rec, img.Image, nil
}

func createRecord[T domain.Record[T]](s *Server, svc RecordServicer[T], w http.ResponseWriter, r *http.Request, what string) {
	rec, img, err := readRecord[T](r)
	if err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	created, err := svc.Add(r.Context(), rec, img)
	if err != nil {
		s.writeError(w, r, err, what)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func getRecord[T domain.Record[T]](s *Server, svc RecordServicer[T], w http.ResponseWriter, r *http.Request, what string) {
	id, err := pathID(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	rec, err := svc.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, what)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func updateRecord[T domain.Record[T]](s *Server, svc RecordServicer[T], w http.ResponseWriter, r *http.Request, what string) {
	id, err := pathID(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	rec, img, err := readRecord[T](r)
	if err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	updated, err := svc.Update(r.Context(), rec.WithID(id), img)
	if err != nil {
		s.writeError(w, r, err, what)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func deleteRecord[T any](s *Server, svc RecordServicer[T], w http.ResponseWriter, r *http.Request, what string) {
	id, err := pathID(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if err := svc.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, what)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listRecords[T any](s *Server, svc RecordServicer[T], w http.ResponseWriter, r *http.Request, where func(T) bool) {
	recs, err := svc.List(r.Context(), where)
	if err != nil {
		s.writeError(w, r, err, "record")
		return
	}
	page, err := paginate(r, recs)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// uuidQuery parses an optional UUID query parameter.
func uuidQuery(r *http.Request, name string) (uuid.UUID, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, errors.New(name + " must be a UUID")
	}
	return id, true, nil
}
