package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/idilsaglam/recipebox/internal/docstore"
	"github.com/idilsaglam/recipebox/internal/model"
)

func collectionFrom(w http.ResponseWriter, r *http.Request) (model.Kind, bool) {
	kind, err := model.ParseKind(mux.Vars(r)["collection"])
	if err != nil {
		httpErrorJSON(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return kind, true
}

// listDocuments returns the whole collection. Owner filtering is the client's job.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	kind, ok := collectionFrom(w, r)
	if !ok {
		return
	}
	items, err := s.docs.List(r.Context(), kind)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := collectionFrom(w, r)
	if !ok {
		return
	}
	var data model.Data
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		httpErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}
	data.Name = strings.TrimSpace(data.Name)
	if data.Name == "" {
		httpErrorJSON(w, http.StatusBadRequest, "name is required")
		return
	}
	user := userFrom(r.Context())
	if data.CreatedBy == "" {
		data.CreatedBy = user.ID
	}
	if data.CreatedBy != user.ID {
		httpErrorJSON(w, http.StatusForbidden, "created_by must be the signed-in user")
		return
	}
	id, err := s.docs.Create(r.Context(), kind, data)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := collectionFrom(w, r)
	if !ok {
		return
	}
	it, err := s.docs.Get(r.Context(), kind, mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := collectionFrom(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	it, err := s.docs.Get(r.Context(), kind, id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if !it.OwnedBy(userFrom(r.Context()).ID) {
		httpErrorJSON(w, http.StatusForbidden, "only the creator can delete a document")
		return
	}
	if err := s.docs.Delete(r.Context(), kind, id); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, docstore.ErrNotFound) {
		httpErrorJSON(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error("document store", "err", err)
	httpErrorJSON(w, http.StatusInternalServerError, "document store failure")
}
