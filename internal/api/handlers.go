package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	coreerrors "ghostline-core/internal/core/errors"
	"ghostline-core/internal/models"
)

const maxBodyBytes = 64 << 10

// userIDVar 读取并校验路径中的 userId（VLESS 客户端 id 必须是 UUID）
func userIDVar(r *http.Request) (string, error) {
	raw := mux.Vars(r)["userId"]
	if raw == "" {
		return "", coreerrors.Newf(coreerrors.CodeMissingParam, "userId is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", coreerrors.Wrapf(err, coreerrors.CodeInvalidParam, "invalid userId %q", raw)
	}
	return id.String(), nil
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInvalidRequest, "invalid request body")
	}
	return nil
}

// respondLink 重启失败时配置已写入，返回 202 和链接
func (s *Server) respondLink(w http.ResponseWriter, link string, err error) {
	if err != nil {
		if link != "" && coreerrors.IsCode(err, coreerrors.CodeRestartFailed) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(ResponseData{
				Success: true,
				Data:    LinkResponse{Link: link},
				Code:    string(coreerrors.CodeRestartFailed),
				Message: "config updated but proxy restart failed",
			})
			return
		}
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, LinkResponse{Link: link})
}

func (s *Server) handleActivateTrial(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	link, err := s.deps.Provision.ActivateTrial(r.Context(), userID)
	s.respondLink(w, link, err)
}

// ActivatePaidRequest 支付确认请求
type ActivatePaidRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleActivatePaid(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	var req ActivatePaidRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.Plan == "" {
		respondErr(w, coreerrors.Newf(coreerrors.CodeMissingParam, "plan is required"))
		return
	}
	plan, err := models.ParsePlan(req.Plan)
	if err != nil {
		respondErr(w, err)
		return
	}
	link, err := s.deps.Provision.ActivatePaid(r.Context(), userID, plan)
	s.respondLink(w, link, err)
}

func (s *Server) handleActivateAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	link, err := s.deps.Provision.ActivateAccess(r.Context(), userID)
	s.respondLink(w, link, err)
}

func (s *Server) handleDeprovision(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	removed, err := s.deps.Provision.Deprovision(r.Context(), userID)
	if err != nil && !(removed && coreerrors.IsCode(err, coreerrors.CodeRestartFailed)) {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RemovedResponse{Removed: removed})
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	link, err := s.deps.Provision.Link(r.Context(), userID)
	s.respondLink(w, link, err)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	entry, err := s.deps.Clients.FindActive(r.Context(), userID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if entry == nil {
		respondErr(w, coreerrors.Newf(coreerrors.CodeNotFound, "client %s not found", userID))
		return
	}
	respondJSON(w, http.StatusOK, ClientResponse{ID: entry.ID, Email: entry.Email, Flow: entry.Flow})
}

// AddAccountsRequest 批量添加请求
type AddAccountsRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (s *Server) handleAddAccounts(w http.ResponseWriter, r *http.Request) {
	var req AddAccountsRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if len(req.UserIDs) == 0 {
		respondErr(w, coreerrors.Newf(coreerrors.CodeMissingParam, "user_ids is required"))
		return
	}
	ids := make([]string, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondErr(w, coreerrors.Wrapf(err, coreerrors.CodeInvalidParam, "invalid user id %q", raw))
			return
		}
		ids = append(ids, id.String())
	}

	added, err := s.deps.Clients.AddAccounts(r.Context(), ids)
	if err != nil && !coreerrors.IsCode(err, coreerrors.CodeRestartFailed) {
		respondErr(w, err)
		return
	}
	if added == nil {
		added = []string{}
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusAccepted
	}
	respondJSON(w, status, AddedResponse{Added: added})
}
