package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	pgrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/postgres"
	authsvc "github.com/ivankudzin/tgapp/moderator/internal/services/auth"
	strikesvc "github.com/ivankudzin/tgapp/moderator/internal/services/strikes"
	ticketsvc "github.com/ivankudzin/tgapp/moderator/internal/services/tickets"
	"github.com/ivankudzin/tgapp/moderator/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/tgapp/moderator/internal/transport/http/errors"
)

const (
	defaultStrikeListLimit = 50
	maxStrikeListLimit     = 200
)

type StrikeService interface {
	List(ctx context.Context, communityID, userID int64, limit int) ([]model.Strike, error)
	Active(ctx context.Context, communityID, userID int64) (int, error)
	Pardon(ctx context.Context, strikeID int64) (model.Strike, error)
	Standing(ctx context.Context, communityID, userID int64) (enums.Standing, error)
	MutedUntil(communityID, userID int64) (time.Time, bool)
	LiftPermanentMute(ctx context.Context, communityID, userID int64) (bool, error)
}

type QuarantineService interface {
	Release(ctx context.Context, communityID, userID int64) (bool, error)
}

type TicketService interface {
	Close(ctx context.Context, ticketID, actorID int64) (model.Ticket, error)
}

type GuildService interface {
	Update(ctx context.Context, cfg model.GuildConfig) (model.GuildConfig, error)
}

type EvidenceService interface {
	URL(ctx context.Context, strike model.Strike) (string, error)
}

type AdminDependencies struct {
	Strikes    StrikeService
	Quarantine QuarantineService
	Tickets    TicketService
	Guilds     GuildService
	Evidence   EvidenceService
	Logger     *zap.Logger
}

type AdminHandler struct {
	strikes    StrikeService
	quarantine QuarantineService
	tickets    TicketService
	guilds     GuildService
	evidence   EvidenceService
	logger     *zap.Logger
}

func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		strikes:    deps.Strikes,
		quarantine: deps.Quarantine,
		tickets:    deps.Tickets,
		guilds:     deps.Guilds,
		evidence:   deps.Evidence,
		logger:     logger,
	}
}

func (h *AdminHandler) Strikes(w http.ResponseWriter, r *http.Request) {
	if h.strikes == nil {
		writeInternal(w, "STRIKE_SERVICE_UNAVAILABLE", "strike service is unavailable")
		return
	}
	communityID, userID, ok := memberFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid community or user id")
		return
	}

	items, err := h.strikes.List(r.Context(), communityID, userID, limitFromQuery(r, defaultStrikeListLimit, maxStrikeListLimit))
	if err != nil {
		h.logger.Error("list strikes failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to list strikes")
		return
	}
	active, err := h.strikes.Active(r.Context(), communityID, userID)
	if err != nil {
		h.logger.Error("count active strikes failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to count strikes")
		return
	}

	resp := dto.StrikesResponse{
		CommunityID: communityID,
		UserID:      userID,
		Active:      active,
		Items:       make([]dto.Strike, 0, len(items)),
	}
	for _, s := range items {
		resp.Items = append(resp.Items, h.strikeDTO(r.Context(), s))
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *AdminHandler) Pardon(w http.ResponseWriter, r *http.Request) {
	if h.strikes == nil {
		writeInternal(w, "STRIKE_SERVICE_UNAVAILABLE", "strike service is unavailable")
		return
	}
	strikeID, ok := int64Param(r, "id")
	if !ok || strikeID < 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid strike id")
		return
	}

	strike, err := h.strikes.Pardon(r.Context(), strikeID)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrStrikeNotFound):
			writeNotFound(w, "NOT_FOUND", "strike not found")
		case errors.Is(err, strikesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid strike id")
		default:
			h.logger.Error("pardon strike failed", zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to pardon strike")
		}
		return
	}

	h.audit(r, "strike_pardon", zap.Int64("strike_id", strike.ID))
	httperrors.Write(w, http.StatusOK, h.strikeDTO(r.Context(), strike))
}

func (h *AdminHandler) Standing(w http.ResponseWriter, r *http.Request) {
	if h.strikes == nil {
		writeInternal(w, "STRIKE_SERVICE_UNAVAILABLE", "strike service is unavailable")
		return
	}
	communityID, userID, ok := memberFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid community or user id")
		return
	}

	standing, err := h.strikes.Standing(r.Context(), communityID, userID)
	if err != nil {
		h.logger.Error("read standing failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to read standing")
		return
	}
	active, err := h.strikes.Active(r.Context(), communityID, userID)
	if err != nil {
		h.logger.Error("count active strikes failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to count strikes")
		return
	}

	resp := dto.StandingResponse{
		CommunityID: communityID,
		UserID:      userID,
		Standing:    string(standing),
		Active:      active,
	}
	if standing == enums.StandingMuted {
		if until, ok := h.strikes.MutedUntil(communityID, userID); ok {
			resp.MutedUntil = &until
		}
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *AdminHandler) ReleaseQuarantine(w http.ResponseWriter, r *http.Request) {
	if h.quarantine == nil {
		writeInternal(w, "QUARANTINE_SERVICE_UNAVAILABLE", "quarantine service is unavailable")
		return
	}
	communityID, userID, ok := memberFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid community or user id")
		return
	}

	released, err := h.quarantine.Release(r.Context(), communityID, userID)
	if err != nil {
		h.logger.Error("release quarantine failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to release quarantine")
		return
	}

	h.audit(r, "quarantine_release", zap.Int64("community_id", communityID), zap.Int64("user_id", userID), zap.Bool("changed", released))
	httperrors.Write(w, http.StatusOK, dto.ChangedResponse{OK: true, Changed: released})
}

func (h *AdminHandler) LiftMute(w http.ResponseWriter, r *http.Request) {
	if h.strikes == nil {
		writeInternal(w, "STRIKE_SERVICE_UNAVAILABLE", "strike service is unavailable")
		return
	}
	communityID, userID, ok := memberFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid community or user id")
		return
	}

	lifted, err := h.strikes.LiftPermanentMute(r.Context(), communityID, userID)
	if err != nil {
		h.logger.Error("lift permanent mute failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to lift mute")
		return
	}

	h.audit(r, "mute_lift", zap.Int64("community_id", communityID), zap.Int64("user_id", userID), zap.Bool("changed", lifted))
	httperrors.Write(w, http.StatusOK, dto.ChangedResponse{OK: true, Changed: lifted})
}

func (h *AdminHandler) CloseTicket(w http.ResponseWriter, r *http.Request) {
	if h.tickets == nil {
		writeInternal(w, "TICKET_SERVICE_UNAVAILABLE", "ticket service is unavailable")
		return
	}
	ticketID, ok := int64Param(r, "id")
	if !ok || ticketID < 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid ticket id")
		return
	}

	ticket, err := h.tickets.Close(r.Context(), ticketID, actorID(r))
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrTicketNotFound):
			writeNotFound(w, "NOT_FOUND", "open ticket not found")
		case errors.Is(err, ticketsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid ticket id")
		default:
			h.logger.Error("close ticket failed", zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to close ticket")
		}
		return
	}

	h.audit(r, "ticket_close", zap.Int64("ticket_id", ticket.ID))
	httperrors.Write(w, http.StatusOK, dto.Ticket{
		ID:          ticket.ID,
		CommunityID: ticket.CommunityID,
		UserID:      ticket.UserID,
		ChannelRef:  ticket.ChannelRef,
		Status:      string(ticket.Status),
		ClosedBy:    ticket.ClosedBy,
		CreatedAt:   ticket.CreatedAt,
		ClosedAt:    ticket.ClosedAt,
	})
}

func (h *AdminHandler) UpdateGuildConfig(w http.ResponseWriter, r *http.Request) {
	if h.guilds == nil {
		writeInternal(w, "GUILD_SERVICE_UNAVAILABLE", "guild config service is unavailable")
		return
	}
	communityID, ok := int64Param(r, "community_id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid community id")
		return
	}

	var req dto.GuildConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	cfg, err := h.guilds.Update(r.Context(), model.GuildConfig{
		CommunityID:     communityID,
		TicketChannelID: req.TicketChannelID,
		LogChannelID:    req.LogChannelID,
		PanelChannelID:  req.PanelChannelID,
	})
	if err != nil {
		h.logger.Error("update guild config failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to update guild config")
		return
	}

	h.audit(r, "guild_config_update", zap.Int64("community_id", communityID))
	httperrors.Write(w, http.StatusOK, dto.GuildConfig{
		CommunityID:     cfg.CommunityID,
		TicketChannelID: cfg.TicketChannelID,
		LogChannelID:    cfg.LogChannelID,
		PanelChannelID:  cfg.PanelChannelID,
		UpdatedAt:       cfg.UpdatedAt,
	})
}

func (h *AdminHandler) strikeDTO(ctx context.Context, s model.Strike) dto.Strike {
	out := dto.Strike{
		ID:              s.ID,
		Category:        string(s.Category),
		Reason:          s.Reason,
		SourceMessageID: s.SourceMessageID,
		Actor:           s.Actor,
		Pardoned:        s.Pardoned,
		Metadata:        s.Metadata,
		CreatedAt:       s.CreatedAt,
	}
	if h.evidence != nil {
		url, err := h.evidence.URL(ctx, s)
		if err != nil {
			h.logger.Debug("presign evidence failed", zap.Int64("strike_id", s.ID), zap.Error(err))
		}
		out.EvidenceURL = url
	}
	return out
}

func (h *AdminHandler) audit(r *http.Request, action string, fields ...zap.Field) {
	if claims, ok := authsvc.IdentityFromContext(r.Context()); ok {
		fields = append(fields, zap.String("actor", claims.Subject), zap.String("role", claims.Role))
	}
	h.logger.Info("admin action", append([]zap.Field{zap.String("action", action)}, fields...)...)
}

// actorID maps a numeric token subject onto a platform user id; other subjects record 0.
func actorID(r *http.Request) int64 {
	claims, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
