package httpapi

import (
	"net/http"
	"strings"

	"fieldgrid.org/internal/audit"
	"fieldgrid.org/internal/dispatch"
)

type reportRequest struct {
	Kind          string   `json:"kind"`
	Description   string   `json:"description"`
	PartyName     string   `json:"party_name"`
	PartyPhone    string   `json:"party_phone"`
	PartyAddress  string   `json:"party_address"`
	AttachmentIDs []string `json:"attachment_ids"`
}

type assignRequest struct {
	MediatorID string `json:"mediator_id"`
}

type processRequest struct {
	HandleMethod string `json:"handle_method"`
	ExpectedPlan string `json:"expected_plan"`
	Participants string `json:"participants"`
}

type completeRequest struct {
	Result        string   `json:"result"`
	Detail        string   `json:"detail"`
	Process       string   `json:"process"`
	AttachmentIDs []string `json:"attachment_ids"`
}

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTasks(w, r)
	case http.MethodPost:
		a.reportTask(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch path {
	case "my-reports":
		a.myReports(w, r)
		return
	case "my-tasks":
		a.myTasks(w, r)
		return
	case "my-history":
		a.myHistory(w, r)
		return
	case "statistics":
		a.taskStatistics(w, r)
		return
	}

	id, action, _ := strings.Cut(path, "/")
	if id == "" || strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getTask(w, r, id)
	case "assign":
		a.assignTask(w, r, id)
	case "process":
		a.processTask(w, r, id)
	case "complete":
		a.completeTask(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func parseStatuses(raw string) ([]dispatch.Status, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	var statuses []dispatch.Status
	for _, part := range strings.Split(raw, ",") {
		st, ok := dispatch.ParseStatus(part)
		if !ok {
			return nil, false
		}
		statuses = append(statuses, st)
	}
	return statuses, true
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	statuses, ok := parseStatuses(q.Get("status"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown status filter")
		return
	}
	var kind dispatch.Kind
	if raw := q.Get("kind"); raw != "" {
		kind, ok = dispatch.ParseKind(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unknown kind filter")
			return
		}
	}
	tasks, err := a.dispatch.List(r.Context(), p, dispatch.ListInput{
		GridID:   q.Get("grid_id"),
		Statuses: statuses,
		Kind:     kind,
		Search:   q.Get("search"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
}

func (a *API) reportTask(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := a.dispatch.Report(r.Context(), p, dispatch.ReportInput{
		Kind:          req.Kind,
		Description:   req.Description,
		PartyName:     req.PartyName,
		PartyPhone:    req.PartyPhone,
		PartyAddress:  req.PartyAddress,
		AttachmentIDs: req.AttachmentIDs,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.report", map[string]any{
		"task_id": task.ID,
		"code":    task.Code,
		"grid_id": task.GridID,
	})
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	task, err := a.dispatch.Get(r.Context(), p, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) assignTask(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := a.dispatch.Assign(r.Context(), p, id, req.MediatorID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.assign", map[string]any{
		"task_id":     task.ID,
		"mediator_id": task.MediatorID,
	})
	writeJSON(w, http.StatusOK, task)
}

func (a *API) processTask(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := a.dispatch.Process(r.Context(), p, id, dispatch.ProcessInput{
		HandleMethod: req.HandleMethod,
		ExpectedPlan: req.ExpectedPlan,
		Participants: req.Participants,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.process", map[string]any{"task_id": task.ID})
	writeJSON(w, http.StatusOK, task)
}

func (a *API) completeTask(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := a.dispatch.Complete(r.Context(), p, id, dispatch.Resolution{
		Result:        req.Result,
		Detail:        req.Detail,
		Process:       req.Process,
		AttachmentIDs: req.AttachmentIDs,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.complete", map[string]any{"task_id": task.ID})
	writeJSON(w, http.StatusOK, task)
}

func (a *API) myReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	statuses, ok := parseStatuses(r.URL.Query().Get("status"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown status filter")
		return
	}
	tasks, err := a.dispatch.MyReports(r.Context(), p, statuses)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
}

func (a *API) myTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	statuses, ok := parseStatuses(r.URL.Query().Get("status"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown status filter")
		return
	}
	tasks, err := a.dispatch.MyTasks(r.Context(), p, statuses)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
}

func (a *API) myHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	tasks, err := a.dispatch.MyHistory(r.Context(), p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
}

func (a *API) taskStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	counts, err := a.dispatch.Statistics(r.Context(), p, r.URL.Query().Get("grid_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
