package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ivankudzin/tgapp/moderator/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/tgapp/moderator/internal/transport/http/errors"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			httperrors.Write(w, http.StatusServiceUnavailable, dto.HealthResponse{Status: "degraded"})
			return
		}
	}
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}
