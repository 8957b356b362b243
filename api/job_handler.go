package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
)

func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Command == "" {
		writeErrorMessage(w, http.StatusBadRequest, "command is required")
		return
	}

	j, err := a.eng.Submit(r.Context(), ownerFrom(r.Context()), req.Command, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(j))
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	opts := job.ListOpts{
		State:  job.State(r.URL.Query().Get("state")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	jobs, err := a.eng.List(r.Context(), ownerFrom(r.Context()), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}

	j, err := a.eng.Get(r.Context(), jobID, ownerFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}

	j, err := a.eng.Cancel(r.Context(), jobID, ownerFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

func (a *API) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}

	if err := a.eng.Delete(r.Context(), jobID, ownerFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) jobIDParam(w http.ResponseWriter, r *http.Request) (id.JobID, bool) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid job id")
		return id.Nil, false
	}
	return jobID, true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
