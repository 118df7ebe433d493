package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/documents"
	"github.com/joseph-ayodele/parsemed/internal/editor"
)

// createSessionRequest opens a session either from a finished job or from
// a document supplied by the caller.
type createSessionRequest struct {
	JobID           string          `json:"job_id,omitempty"`
	Filename        string          `json:"filename,omitempty"`
	SourceReference string          `json:"source_reference,omitempty"`
	ExtractedJSON   json.RawMessage `json:"extracted_json,omitempty"`
}

type opsRequest struct {
	Ops []editor.Op `json:"ops"`
}

type opsResponse struct {
	Session editor.Session  `json:"session"`
	Results []editor.Result `json:"results"`
}

type opsErrorResponse struct {
	Error   string         `json:"error"`
	Applied int            `json:"applied"`
	Session editor.Session `json:"session"`
}

type finalizeResponse struct {
	Success bool `json:"success"`
	*documents.FinalizeResult
}

func (a *API) sessionID(r *http.Request) (uuid.UUID, error) {
	return pathUUID(r, "id")
}

func sessionErr(err error) error {
	if errors.Is(err, editor.ErrSessionNotFound) {
		return common.NotFoundError(err.Error())
	}
	return err
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	params := editor.NewParams{
		Filename:        strings.TrimSpace(req.Filename),
		SourceReference: strings.TrimSpace(req.SourceReference),
	}
	raw := req.ExtractedJSON

	if req.JobID != "" {
		id, err := uuid.Parse(req.JobID)
		if err != nil {
			a.writeError(w, r, common.InvalidArgumentError("job_id must be a UUID"))
			return
		}
		job, err := a.deps.Jobs.Get(r.Context(), id)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if job.Status != constants.JobStatusLLMOK {
			a.writeError(w, r, common.NewAppError("JOB_STATE", "job "+id.String()+" is "+string(job.Status)+", not "+string(constants.JobStatusLLMOK), common.ErrConflict))
			return
		}
		params.Filename, params.SourceReference, params.JobID = job.Filename, job.PDFKey, &job.ID
		raw = job.ExtractedJSON
	}

	if len(raw) > 0 && string(raw) != "null" {
		doc, err := attributes.ParseDocument(raw)
		if err != nil {
			a.writeError(w, r, common.InvalidArgumentErrorf("extracted_json: %v", err))
			return
		}
		params.Document = doc
	}

	writeJSON(w, http.StatusCreated, a.deps.Sessions.Create(params))
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessionID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sess, err := a.deps.Sessions.Get(id)
	if err != nil {
		a.writeError(w, r, sessionErr(err))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessionID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !a.deps.Sessions.Delete(id) {
		a.writeError(w, r, sessionErr(editor.ErrSessionNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// applyOps runs a batch of edits. When an op is rejected the ones before it
// stay applied and the response carries the resulting session.
func (a *API) applyOps(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessionID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req opsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(req.Ops) == 0 {
		a.writeError(w, r, common.InvalidArgumentError("ops is required"))
		return
	}

	sess, results, err := a.deps.Sessions.Apply(id, req.Ops...)
	switch {
	case errors.Is(err, editor.ErrSessionNotFound):
		a.writeError(w, r, sessionErr(err))
	case err != nil:
		common.LoggerFrom(r.Context(), a.logger).Warn("http.session.op_rejected", "session_id", id, "applied", len(results), "error", err)
		writeJSON(w, http.StatusBadRequest, opsErrorResponse{Error: err.Error(), Applied: len(results), Session: sess})
	default:
		writeJSON(w, http.StatusOK, opsResponse{Session: sess, Results: results})
	}
}

// saveSession finalizes the session's document in display order.
func (a *API) saveSession(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessionID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sess, err := a.deps.Sessions.Get(id)
	if err != nil {
		a.writeError(w, r, sessionErr(err))
		return
	}
	body, err := json.Marshal(sess.Document)
	if err != nil {
		a.writeError(w, r, common.InternalErrorf("encode document: %v", err))
		return
	}
	req := documents.FinalizeRequest{Filename: sess.Filename, ExtractedJSON: body}
	if strings.HasPrefix(sess.SourceReference, "pdfs/") {
		req.PDFKey = sess.SourceReference
	} else {
		req.SourceReference = sess.SourceReference
	}
	res, err := a.deps.Documents.Finalize(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{Success: true, FinalizeResult: res})
}
