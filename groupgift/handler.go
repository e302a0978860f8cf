package groupgift

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/billbatista/acasinha-gifts/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var maxCents = decimal.NewFromInt(math.MaxInt64)

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = svc.logger
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes expects to be mounted under /group-gifts.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/stats", h.stats)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.With(middleware.RequireIdentity).Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/contributions", h.contribute)
		r.Post("/invitations", h.invite)
		r.Delete("/invitations/{email}", h.removeInvitation)
	})
	return r
}

type createRequest struct {
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	OccasionType        string            `json:"occasion_type"`
	RecipientID         int64             `json:"recipient_id"`
	GiftID              *int64            `json:"gift_id"`
	TargetAmount        decimal.Decimal   `json:"target_amount"`
	Deadline            string            `json:"deadline"`
	CreatedBy           string            `json:"created_by"`
	InvitedContributors []InvitationInput `json:"invited_contributors"`
}

type updateRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	OccasionType *string `json:"occasion_type"`
	Deadline     *string `json:"deadline"`
}

type contributionRequest struct {
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
}

type inviteRequest struct {
	Invitations []InvitationInput `json:"invitations"`
}

type giftResponse struct {
	ID                  int64                  `json:"id"`
	Title               string                 `json:"title"`
	Description         string                 `json:"description"`
	OccasionType        string                 `json:"occasion_type"`
	RecipientID         int64                  `json:"recipient_id"`
	GiftID              *int64                 `json:"gift_id,omitempty"`
	TargetAmount        decimal.Decimal        `json:"target_amount"`
	CurrentAmount       decimal.Decimal        `json:"current_amount"`
	RemainingAmount     decimal.Decimal        `json:"remaining_amount"`
	ProgressPercent     float64                `json:"progress_percent"`
	SuggestedAmounts    []decimal.Decimal      `json:"suggested_amounts"`
	Status              Status                 `json:"status"`
	Expired             bool                   `json:"expired"`
	Deadline            string                 `json:"deadline"`
	CreatedBy           string                 `json:"created_by"`
	CreatedAt           time.Time              `json:"created_at"`
	Contributors        []contributionResponse `json:"contributors"`
	InvitedContributors []Invitation           `json:"invited_contributors"`
}

type contributionResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message,omitempty"`
	ContributedAt time.Time       `json:"contributed_at"`
}

type statsResponse struct {
	TotalGroupGifts     int             `json:"total_group_gifts"`
	ActiveGroupGifts    int             `json:"active_group_gifts"`
	CompletedGroupGifts int             `json:"completed_group_gifts"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	TotalContributors   int             `json:"total_contributors"`
	AverageContribution decimal.Decimal `json:"average_contribution"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}

	target, err := toCents(req.TargetAmount, "target_amount")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var deadline time.Time
	if req.Deadline != "" {
		deadline, err = parseDeadline(req.Deadline)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	createdBy, ok := middleware.GetUserEmail(r.Context())
	if !ok {
		createdBy = req.CreatedBy
	}

	g, err := h.svc.CreateGroupGift(r.Context(), CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		OccasionType: req.OccasionType,
		RecipientID:  req.RecipientID,
		GiftID:       req.GiftID,
		TargetAmount: target,
		Deadline:     deadline,
		CreatedBy:    createdBy,
		Invitations:  req.InvitedContributors,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.toResponse(g))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var f Filter
	q := r.URL.Query()
	if v := q.Get("recipient_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, &ValidationError{Field: "recipient_id", Reason: "is invalid"})
			return
		}
		f.RecipientID = id
	}
	f.CreatedBy = q.Get("created_by")
	if q.Get("mine") == "1" {
		email, ok := middleware.GetUserEmail(r.Context())
		if !ok {
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing caller identity"})
			return
		}
		f.CreatedBy = email
	}

	gifts, err := h.svc.ListGroupGifts(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]giftResponse, 0, len(gifts))
	for i := range gifts {
		out = append(out, h.toResponse(&gifts[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.ContributionStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statsResponse{
		TotalGroupGifts:     stats.TotalGroupGifts,
		ActiveGroupGifts:    stats.ActiveGroupGifts,
		CompletedGroupGifts: stats.CompletedGroupGifts,
		TotalAmount:         fromCents(stats.TotalAmount),
		TotalContributors:   stats.TotalContributors,
		AverageContribution: decimal.NewFromFloat(stats.AverageContribution).Shift(-2).Round(2),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	g, err := h.svc.GetGroupGift(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.toResponse(g))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}

	existing, err := h.svc.GetGroupGift(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if email, _ := middleware.GetUserEmail(r.Context()); email != existing.CreatedBy {
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "only the creator can edit this group gift"})
		return
	}

	in := DetailsInput{Title: req.Title, Description: req.Description, OccasionType: req.OccasionType}
	if req.Deadline != nil {
		deadline, err := parseDeadline(*req.Deadline)
		if err != nil {
			h.writeError(w, err)
			return
		}
		in.Deadline = &deadline
	}

	g, err := h.svc.UpdateGroupGift(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.toResponse(g))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	deleted, err := h.svc.DeleteGroupGift(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": deleted})
}

func (h *Handler) contribute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req contributionRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := toCents(req.Amount, "amount")
	if err != nil {
		h.writeError(w, err)
		return
	}

	c, err := h.svc.AddContribution(r.Context(), id, ContributionInput{
		Name:    req.Name,
		Email:   req.Email,
		Amount:  amount,
		Message: req.Message,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toContributionResponse(c))
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !h.decode(w, r, &req) {
		return
	}

	added, err := h.svc.InviteContributors(r.Context(), id, req.Invitations)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, added)
}

func (h *Handler) removeInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		h.writeError(w, &ValidationError{Field: "email", Reason: "is invalid"})
		return
	}
	removed, err := h.svc.RemoveInvitation(r.Context(), id, email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": removed})
}

func (h *Handler) campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrCampaignNotFound.Error()})
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	var oe *OverfundingError
	switch {
	case errors.As(err, &ve):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, ErrCampaignNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &oe):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":     ErrOverfunding.Error(),
			"remaining": fromCents(oe.Remaining),
		})
	case errors.Is(err, ErrDuplicateContributor):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("request failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) toResponse(g *GroupGift) giftResponse {
	now := h.svc.now()
	suggested := SuggestedAmounts(g)
	resp := giftResponse{
		ID:                  g.ID,
		Title:               g.Title,
		Description:         g.Description,
		OccasionType:        g.OccasionType,
		RecipientID:         g.RecipientID,
		GiftID:              g.GiftID,
		TargetAmount:        fromCents(g.TargetAmount),
		CurrentAmount:       fromCents(g.CurrentAmount),
		RemainingAmount:     fromCents(g.Remaining()),
		ProgressPercent:     g.ProgressPercent(),
		SuggestedAmounts:    make([]decimal.Decimal, 0, len(suggested)),
		Status:              g.Status,
		Expired:             IsCampaignExpired(g, now),
		Deadline:            g.Deadline.Format(dateLayout),
		CreatedBy:           g.CreatedBy,
		CreatedAt:           g.CreatedAt,
		Contributors:        make([]contributionResponse, 0, len(g.Contributors)),
		InvitedContributors: g.InvitedContributors,
	}
	if resp.InvitedContributors == nil {
		resp.InvitedContributors = []Invitation{}
	}
	for _, v := range suggested {
		resp.SuggestedAmounts = append(resp.SuggestedAmounts, fromCents(v))
	}
	for _, c := range g.Contributors {
		resp.Contributors = append(resp.Contributors, toContributionResponse(c))
	}
	return resp
}

func toContributionResponse(c Contribution) contributionResponse {
	return contributionResponse{
		ID:            c.ID.String(),
		Name:          c.Name,
		Email:         c.Email,
		Amount:        fromCents(c.Amount),
		Message:       c.Message,
		ContributedAt: c.ContributedAt,
	}
}

// toCents converts a currency amount to minor units, rejecting fractions of a cent.
func toCents(d decimal.Decimal, field string) (int64, error) {
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, &ValidationError{Field: field, Reason: "has more than two decimal places"}
	}
	if !cents.IsPositive() {
		return 0, &ValidationError{Field: field, Reason: "must be positive"}
	}
	if cents.GreaterThan(maxCents) {
		return 0, &ValidationError{Field: field, Reason: "is too large"}
	}
	return cents.IntPart(), nil
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// parseDeadline accepts a calendar date or a full RFC 3339 timestamp.
// A bare date means the end of that day in UTC.
func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Add(24*time.Hour - time.Second), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &ValidationError{Field: "deadline", Reason: "must be a date (YYYY-MM-DD)"}
}
