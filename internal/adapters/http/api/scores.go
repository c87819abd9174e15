package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/okian/shobdo/internal/domain/scoring"
	"github.com/okian/shobdo/internal/domain/types"
)

// maxUserTime bounds userTime so it converts to a duration without overflow.
const maxUserTime = 24 * time.Hour

// ScoreDependencies defines the score and leaderboard operations.
type ScoreDependencies interface {
	SubmitScore(ctx context.Context, player string, p model.Performance) (scoring.Result, error)
	PublicLeaderboard(ctx context.Context) ([]types.ScoreEntry, error)
	Winners(ctx context.Context) ([]types.ScoreEntry, error)
	Leaderboard(ctx context.Context, from, to calendar.Day, limit int) ([]types.ScoreEntry, error)
	Rank(ctx context.Context, player string) (types.ScoreEntry, error)
}

// ScoresHandler handles score submission and leaderboard reads.
type ScoresHandler struct {
	deps ScoreDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// scoreRequest mirrors the body of POST /userscore. Pointers tell a missing
// field apart from a zero value.
type scoreRequest struct {
	MSISDN         *string  `json:"msisdn"`
	CorrectScore   *int64   `json:"correctScore"`
	IncorrectScore *int64   `json:"incorrectScore"`
	UserTime       *float64 `json:"userTime"`
}

func (s scoreRequest) validate() error {
	switch {
	case s.MSISDN == nil || strings.TrimSpace(*s.MSISDN) == "":
		return errors.New("missing msisdn")
	case s.CorrectScore == nil:
		return errors.New("missing correctScore")
	case s.IncorrectScore == nil:
		return errors.New("missing incorrectScore")
	case s.UserTime == nil:
		return errors.New("missing userTime")
	case *s.CorrectScore < 0 || *s.IncorrectScore < 0:
		return errors.New("scores must not be negative")
	case math.IsNaN(*s.UserTime) || *s.UserTime < 0 || *s.UserTime > maxUserTime.Seconds():
		return errors.New("userTime must be between 0 and 86400 seconds")
	}
	return nil
}

func (s scoreRequest) performance() model.Performance {
	return model.Performance{
		Correct:   *s.CorrectScore,
		Incorrect: *s.IncorrectScore,
		Elapsed:   time.Duration(math.Round(*s.UserTime * float64(time.Second))),
	}
}

type scoreResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

var outcomeMessages = map[scoring.Outcome]string{
	scoring.Created: "Score saved successfully!",
	scoring.Updated: "Score updated successfully!",
	scoring.Kept:    "Existing score is better. No update made.",
}

// HandleSubmit handles POST /userscore requests.
func (h *ScoresHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	var req scoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.SubmitScore(r.Context(), strings.TrimSpace(*req.MSISDN), req.performance())
	if err != nil {
		respondError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		Status:  res.Outcome.String(),
		Message: outcomeMessages[res.Outcome],
	})
}

// HandlePublicLeaderboard handles GET /public-leaderboard requests.
func (h *ScoresHandler) HandlePublicLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.PublicLeaderboard(r.Context())
	if err != nil {
		respondError(w, "api.public_leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleWinners handles GET /winners requests.
func (h *ScoresHandler) HandleWinners(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Winners(r.Context())
	if err != nil {
		respondError(w, "api.winners", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleLeaderboard handles GET /leaderboard?fromDate=&toDate=&limit= requests.
// Missing bounds are open; a missing limit uses the configured maximum.
func (h *ScoresHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard"
	q := r.URL.Query()

	from, err := parseDay(q.Get("fromDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	to, err := parseDay(q.Get("toDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}

	entries, err := h.deps.Leaderboard(r.Context(), from, to, limit)
	if err != nil {
		respondError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRank handles GET /rank/{msisdn} requests.
func (h *ScoresHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank"
	msisdn := strings.TrimSpace(chi.URLParam(r, "msisdn"))
	if msisdn == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	entry, err := h.deps.Rank(r.Context(), msisdn)
	if err != nil {
		respondError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func parseDay(s string) (calendar.Day, error) {
	if s == "" {
		return calendar.Day{}, nil
	}
	return calendar.ParseDay(s)
}
