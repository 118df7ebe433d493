package server

import (
	"net/http"

	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/templates"
)

type configurationResponse struct {
	Success       bool             `json:"success"`
	Configuration *entity.Template `json:"configuration"`
}

type configurationsResponse struct {
	Success        bool               `json:"success"`
	Configurations []*entity.Template `json:"configurations"`
}

func (a *API) saveConfiguration(w http.ResponseWriter, r *http.Request) {
	var req templates.SaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	t, err := a.deps.Templates.Create(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, configurationResponse{Success: true, Configuration: t})
}

func (a *API) updateConfiguration(w http.ResponseWriter, r *http.Request) {
	var req templates.SaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	t, err := a.deps.Templates.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, configurationResponse{Success: true, Configuration: t})
}

func (a *API) listConfigurations(w http.ResponseWriter, r *http.Request) {
	list, err := a.deps.Templates.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*entity.Template{}
	}
	writeJSON(w, http.StatusOK, configurationsResponse{Success: true, Configurations: list})
}

func (a *API) getConfiguration(w http.ResponseWriter, r *http.Request) {
	t, err := a.deps.Templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, configurationResponse{Success: true, Configuration: t})
}

func (a *API) deleteConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Templates.Delete(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
