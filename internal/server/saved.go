package server

import (
	"net/http"
	"strconv"

	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/documents"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type savedListResponse struct {
	Success bool                    `json:"success"`
	Tables  []*entity.SavedDocument `json:"tables"`
}

type savedResponse struct {
	Success bool                  `json:"success"`
	Table   *entity.SavedDocument `json:"table"`
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	var req documents.FinalizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.deps.Documents.Finalize(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{Success: true, FinalizeResult: res})
}

func (a *API) listSaved(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, r, common.InvalidArgumentError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	docs, err := a.deps.Documents.List(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*entity.SavedDocument{}
	}
	writeJSON(w, http.StatusOK, savedListResponse{Success: true, Tables: docs})
}

func (a *API) getSaved(w http.ResponseWriter, r *http.Request) {
	doc, err := a.deps.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, savedResponse{Success: true, Table: doc})
}

func (a *API) exportSaved(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	b, name, err := a.deps.Exporter.ExportDocumentXLSX(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
