package web

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"zigbee-ncp-host/internal/automation"
	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/ncp"
	"zigbee-ncp-host/internal/store"
)

const (
	maxBodySize      = 1 << 20
	maxPermitSeconds = 254
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleAPINetworkInfo(w http.ResponseWriter, r *http.Request) {
	info := s.backend.NetworkInfo()
	if devices, err := s.backend.Store().ListDevices(); err == nil {
		info["device_count"] = len(devices)
	} else {
		s.logger.Error("list devices", "err", err)
	}
	s.writeJSON(w, http.StatusOK, info)
}

type permitJoinRequest struct {
	Duration *int `json:"duration"`
}

func (s *Server) handleAPIPermitJoin(w http.ResponseWriter, r *http.Request) {
	var req permitJoinRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Duration == nil {
		s.writeError(w, http.StatusBadRequest, "duration is required")
		return
	}
	if *req.Duration < 0 || *req.Duration > maxPermitSeconds {
		s.writeError(w, http.StatusBadRequest, "duration must be 0-254")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.backend.PermitJoin(ctx, uint8(*req.Duration)); err != nil {
		s.logger.Warn("permit join", "err", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "duration": *req.Duration})
}

func statsView(st ncp.Stats) map[string]any {
	return map[string]any{
		"ready":           st.Ready,
		"frame_format":    st.Version,
		"pending":         st.Pending,
		"frames_in":       st.FramesIn,
		"frames_out":      st.FramesOut,
		"data_in":         st.DataIn,
		"data_out":        st.DataOut,
		"checksum_errors": st.ChecksumErrors,
		"decode_errors":   st.DecodeErrors,
		"cancelled":       st.Cancelled,
		"overflows":       st.Overflows,
		"duplicates":      st.Duplicates,
		"retransmits":     st.Retransmits,
		"naks_sent":       st.NaksSent,
		"naks_received":   st.NaksReceived,
		"commands":        st.Commands,
		"responses":       st.Responses,
		"callbacks":       st.Callbacks,
		"timeouts":        st.Timeouts,
		"status_errors":   st.StatusErrors,
		"orphaned":        st.Orphaned,
		"discarded":       st.Discarded,
		"desyncs":         st.Desyncs,
		"link_downs":      st.LinkDowns,
	}
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statsView(s.backend.Stats()))
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.backend.Store().ListDevices()
	if err != nil {
		s.logger.Error("list devices", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if devices == nil {
		devices = []*store.Device{}
	}
	s.writeJSON(w, http.StatusOK, devices)
}

// pathEUI64 parses the {eui64} path value into the store's key form. It
// writes a 400 response and returns false when the value is malformed.
func (s *Server) pathEUI64(w http.ResponseWriter, r *http.Request) (string, bool) {
	eui, err := ezsp.ParseEUI64(r.PathValue("eui64"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return eui.String(), true
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	eui, ok := s.pathEUI64(w, r)
	if !ok {
		return
	}
	dev, err := s.backend.Store().GetDevice(eui)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "device not found")
	case err != nil:
		s.logger.Error("get device", "err", err, "eui64", eui)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		s.writeJSON(w, http.StatusOK, dev)
	}
}

type renameDeviceRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameDevice(w http.ResponseWriter, r *http.Request) {
	eui, ok := s.pathEUI64(w, r)
	if !ok {
		return
	}
	var req renameDeviceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var renamed *store.Device
	err := s.backend.Store().UpdateDevice(eui, func(dev *store.Device) error {
		dev.FriendlyName = req.FriendlyName
		renamed = dev
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "device not found")
	case err != nil:
		s.logger.Error("rename device", "err", err, "eui64", eui)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		s.writeJSON(w, http.StatusOK, renamed)
	}
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	eui, ok := s.pathEUI64(w, r)
	if !ok {
		return
	}
	err := s.backend.RemoveDevice(eui)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "device not found")
	case err != nil:
		s.logger.Error("delete device", "err", err, "eui64", eui)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleAPIListScripts(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	scripts, err := s.scriptMgr.List()
	if err != nil {
		s.logger.Error("list scripts", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if scripts == nil {
		scripts = []*automation.Script{}
	}
	s.writeJSON(w, http.StatusOK, scripts)
}

type saveScriptRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LuaCode     string `json:"lua_code"`
	Enabled     bool   `json:"enabled"`
}

func (s *Server) handleAPISaveScript(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusNotImplemented, "automation not available")
		return
	}
	var req saveScriptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = r.PathValue("id")
	}

	saved, err := s.scriptMgr.Save(&automation.Script{
		ID:      r.PathValue("id"),
		Meta:    automation.ScriptMeta{Name: req.Name, Description: req.Description, Enabled: req.Enabled},
		LuaCode: req.LuaCode,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{"script": saved}
	if s.autoEngine != nil {
		if err := s.autoEngine.ReloadScript(saved.ID); err != nil {
			s.logger.Warn("reload script after save", "id", saved.ID, "err", err)
			resp["error"] = err.Error()
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIDeleteScript(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusNotImplemented, "automation not available")
		return
	}
	id := r.PathValue("id")
	if s.autoEngine != nil {
		s.autoEngine.StopScript(id)
	}
	err := s.scriptMgr.Delete(id)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.writeError(w, http.StatusNotFound, "script not found")
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type runScriptRequest struct {
	ID      string `json:"id"`
	LuaCode string `json:"lua_code"`
}

func (s *Server) handleAPIRunScript(w http.ResponseWriter, r *http.Request) {
	if s.autoEngine == nil {
		s.writeError(w, http.StatusNotImplemented, "automation not available")
		return
	}
	var req runScriptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var result *automation.RunResult
	switch {
	case req.ID != "":
		result = s.autoEngine.RunScript(req.ID)
	case req.LuaCode != "":
		result = s.autoEngine.RunLuaCode(req.LuaCode)
	default:
		s.writeError(w, http.StatusBadRequest, "id or lua_code is required")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
