package script

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helpbyexperts/ava/backend/internal/model/script"
	"github.com/helpbyexperts/ava/backend/pkg/utils"
)

// Handler 向前端组件提供对话脚本的公开部分。
type Handler struct {
	scripts script.Store
}

// New 创建脚本处理器。
func New(scripts script.Store) *Handler {
	return &Handler{scripts: scripts}
}

// RegisterRoutes 注册脚本相关路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/script", h.handleActive)
	r.Get("/api/scripts", h.handleList)
	r.Get("/api/scripts/{scriptID}", h.handleGet)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.scripts.Active())
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.scripts.List())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, ok := h.scripts.FindByID(chi.URLParam(r, "scriptID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "script not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}
