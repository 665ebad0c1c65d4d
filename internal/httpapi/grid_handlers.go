package httpapi

import (
	"net/http"
	"strings"

	"fieldgrid.org/internal/audit"
	"fieldgrid.org/internal/directory"
)

type createGridRequest struct {
	Name        string       `json:"name"`
	Region      string       `json:"region"`
	Boundary    [][2]float64 `json:"boundary"`
	CenterLng   float64      `json:"center_lng"`
	CenterLat   float64      `json:"center_lat"`
	Description string       `json:"description"`
}

type updateGridRequest struct {
	Name        *string      `json:"name"`
	Region      *string      `json:"region"`
	Boundary    [][2]float64 `json:"boundary"`
	CenterLng   *float64     `json:"center_lng"`
	CenterLat   *float64     `json:"center_lat"`
	Description *string      `json:"description"`
}

type setManagerRequest struct {
	ManagerID string `json:"manager_id"`
}

type rosterRequest struct {
	MediatorID string `json:"mediator_id"`
}

func (a *API) handleGridsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listGrids(w, r)
	case http.MethodPost:
		a.createGrid(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGridResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/grids/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "map-data" {
		a.gridMapData(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case rest == "":
		a.gridByID(w, r, id)
	case rest == "manager":
		a.setGridManager(w, r, id)
	case rest == "mediators":
		a.gridRoster(w, r, id)
	case strings.HasPrefix(rest, "mediators/"):
		mediatorID := strings.TrimPrefix(rest, "mediators/")
		if mediatorID == "" || strings.Contains(mediatorID, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.removeGridMediator(w, r, id, mediatorID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listGrids(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := directory.GridFilter{Search: q.Get("search")}
	switch q.Get("active") {
	case "true":
		v := true
		f.Active = &v
	case "false":
		v := false
		f.Active = &v
	}
	grids, err := a.directory.ListGrids(r.Context(), p, f)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": grids})
}

// gridMapData serves the dashboard map: every active zone with its boundary
// polygon, center point and live workload counters.
func (a *API) gridMapData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	active := true
	grids, err := a.directory.ListGrids(r.Context(), p, directory.GridFilter{Active: &active})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(grids))
	for _, g := range grids {
		counts, err := a.dispatch.Statistics(r.Context(), p, g.ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		items = append(items, map[string]any{
			"grid":       g,
			"statistics": counts,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createGrid(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createGridRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grid, err := a.directory.CreateGrid(r.Context(), p, directory.CreateGridInput{
		Name:        req.Name,
		Region:      req.Region,
		Boundary:    req.Boundary,
		CenterLng:   req.CenterLng,
		CenterLat:   req.CenterLat,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grid.create", map[string]any{"grid_id": grid.ID})
	writeJSON(w, http.StatusCreated, grid)
}

func (a *API) gridByID(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		grid, err := a.directory.GetGrid(r.Context(), p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, grid)
	case http.MethodPatch, http.MethodPut:
		var req updateGridRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		grid, err := a.directory.UpdateGrid(r.Context(), p, id, directory.GridUpdate{
			Name:        req.Name,
			Region:      req.Region,
			Boundary:    req.Boundary,
			CenterLng:   req.CenterLng,
			CenterLat:   req.CenterLat,
			Description: req.Description,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "grid.update", map[string]any{"grid_id": grid.ID})
		writeJSON(w, http.StatusOK, grid)
	case http.MethodDelete:
		if err := a.directory.DeactivateGrid(r.Context(), p, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "grid.deactivate", map[string]any{"grid_id": id})
		writeJSON(w, http.StatusOK, nil)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) setGridManager(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPut, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req setManagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grid, err := a.directory.SetGridManager(r.Context(), p, id, req.ManagerID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grid.set_manager", map[string]any{
		"grid_id":    grid.ID,
		"manager_id": grid.ManagerID,
	})
	writeJSON(w, http.StatusOK, grid)
}

func (a *API) gridRoster(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := a.directory.Personnel(r.Context(), p, id, r.URL.Query().Get("search"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users})
	case http.MethodPost:
		var req rosterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.directory.AssignMediator(r.Context(), p, id, req.MediatorID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "grid.roster_add", map[string]any{
			"grid_id":     id,
			"mediator_id": user.ID,
		})
		writeJSON(w, http.StatusOK, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) removeGridMediator(w http.ResponseWriter, r *http.Request, gridID, mediatorID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.directory.RemoveMediator(r.Context(), p, gridID, mediatorID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grid.roster_remove", map[string]any{
		"grid_id":     gridID,
		"mediator_id": mediatorID,
	})
	writeJSON(w, http.StatusOK, nil)
}
