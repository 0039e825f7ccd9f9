package handlers

import "net/http"

// Backends names the storage and queue implementations the process runs
// with, for example "postgres" or "memory".
type Backends struct {
	Queue   string `json:"queue"`
	Tasks   string `json:"task_store"`
	Results string `json:"result_store"`
}

type healthResponse struct {
	Status   string   `json:"status"`
	Service  string   `json:"service"`
	Backends Backends `json:"backends"`
}

// WithBackends records what Health reports. Unset names read "memory".
func (api *API) WithBackends(backends Backends) *API {
	for _, name := range []*string{&backends.Queue, &backends.Tasks, &backends.Results} {
		if *name == "" {
			*name = "memory"
		}
	}
	api.backends = backends
	return api
}

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "healthy",
		Service:  "licitacao-pipeline",
		Backends: api.backends,
	})
}
