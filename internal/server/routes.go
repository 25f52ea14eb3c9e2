package server

import (
	"errors"
	"net/http"

	"github.com/jo-hoe/travelgallery/internal/routes"
)

// writeMutationResult answers a stop or route mutation. When only the
// recompute failed the stored entity is returned next to the error.
func (svc *Service) writeMutationResult(w http.ResponseWriter, r *http.Request, okStatus int, entity any, err error) {
	var recompute *routes.RecomputeError
	if err != nil && errors.As(err, &recompute) && entity != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": entity})
		return
	}
	if err != nil {
		svc.writeError(w, r, err)
		return
	}
	writeJSON(w, okStatus, entity)
}

func (svc *Service) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var in routes.RouteInput
	if err := decodeJSON(r, &in); err != nil {
		svc.writeError(w, r, err)
		return
	}
	in.TripID = r.PathValue("id")
	route, err := svc.Routes.CreateRoute(r.Context(), in)
	svc.writeMutationResult(w, r, http.StatusCreated, nilIfEmpty(route), err)
}

func (svc *Service) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := svc.Routes.GetRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		svc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (svc *Service) handleCreateStop(w http.ResponseWriter, r *http.Request) {
	var in routes.StopInput
	if err := decodeJSON(r, &in); err != nil {
		svc.writeError(w, r, err)
		return
	}
	stop, err := svc.Routes.CreateStop(r.Context(), r.PathValue("id"), in)
	svc.writeMutationResult(w, r, http.StatusCreated, nilIfEmpty(stop), err)
}

func (svc *Service) handleUpdateStop(w http.ResponseWriter, r *http.Request) {
	var patch routes.StopPatch
	if err := decodeJSON(r, &patch); err != nil {
		svc.writeError(w, r, err)
		return
	}
	stop, err := svc.Routes.UpdateStop(r.Context(), r.PathValue("id"), patch)
	svc.writeMutationResult(w, r, http.StatusOK, nilIfEmpty(stop), err)
}

func (svc *Service) handleDeleteStop(w http.ResponseWriter, r *http.Request) {
	err := svc.Routes.DeleteStop(r.Context(), r.PathValue("id"))
	var recompute *routes.RecomputeError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &recompute):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		svc.writeError(w, r, err)
	}
}

type reorderRequest struct {
	StopIDs []string `json:"stop_ids"`
}

func (svc *Service) handleReorderStops(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		svc.writeError(w, r, err)
		return
	}
	route, err := svc.Routes.ReorderStops(r.Context(), r.PathValue("id"), req.StopIDs)
	svc.writeMutationResult(w, r, http.StatusOK, nilIfEmpty(route), err)
}

func (svc *Service) handleRecompute(w http.ResponseWriter, r *http.Request) {
	route, err := svc.Routes.Recompute(r.Context(), r.PathValue("id"))
	svc.writeMutationResult(w, r, http.StatusOK, nilIfEmpty(route), err)
}

// nilIfEmpty turns a typed nil pointer into an untyped nil interface.
func nilIfEmpty[T any](v *T) any {
	if v == nil {
		return nil
	}
	return v
}
