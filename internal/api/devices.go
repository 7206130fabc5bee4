package api

import (
	"net/http"
)

func (r *Router) handleDevices(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	devices, err := r.store.ListDevices(req.Context(), req.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (r *Router) handleDeviceByID(w http.ResponseWriter, req *http.Request) {
	id := pathTail(req.URL.Path, "/api/devices/")
	if id == "" {
		writeError(w, http.StatusNotFound, "device id required")
		return
	}

	switch req.Method {
	case http.MethodGet:
		device, err := r.store.GetDevice(req.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, device)

	case http.MethodPatch:
		r.patchDevice(w, req, id)

	case http.MethodDelete:
		if err := r.store.DeleteDevice(req.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// patchDevice updates the operator-editable fields only.
func (r *Router) patchDevice(w http.ResponseWriter, req *http.Request, id string) {
	var body struct {
		Hostname   *string `json:"hostname"`
		DeviceType *string `json:"deviceType"`
		Notes      *string `json:"notes"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := r.store.GetDevice(req.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if body.Hostname != nil {
		device.Hostname = *body.Hostname
	}
	if body.DeviceType != nil {
		device.DeviceType = *body.DeviceType
	}
	if body.Notes != nil {
		device.Notes = *body.Notes
	}

	if err := r.store.UpdateDevice(req.Context(), device); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}
