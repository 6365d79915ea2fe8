package workouts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/healthpulse/internal/activity"
	"github.com/2beens/healthpulse/internal/telemetry/tracing"
	"github.com/2beens/healthpulse/pkg"
)

type GoalRequest struct {
	Activity string   `json:"activity"`
	Duration float64  `json:"duration"`
	Distance float64  `json:"distance"`
	Steps    int      `json:"steps"`
	Age      *int     `json:"age,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
}

type EntryRequest struct {
	Activity string  `json:"activity"`
	Date     string  `json:"date"`
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
	Steps    int     `json:"steps"`
}

type GetGoalResponse struct {
	HasGoal bool  `json:"hasGoal"`
	Goal    *Goal `json:"goal,omitempty"`
}

type SaveGoalResponse struct {
	Message string `json:"message"`
	Goal    Goal   `json:"goal"`
}

type SaveEntryResponse struct {
	Message string `json:"message"`
	Entry   Entry  `json:"entry"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (handler *Handler) HandleGetGoal(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.getGoal")
	defer span.End()

	vars := mux.Vars(r)
	username, activityName := vars["username"], vars["activity"]

	hasGoal, goal, err := handler.service.HasGoal(ctx, username, activityName)
	if err != nil {
		handler.writeError(w, err, "get goal")
		return
	}

	pkg.WriteJSON(w, GetGoalResponse{HasGoal: hasGoal, Goal: goal}, http.StatusOK)
}

func (handler *Handler) HandleUpsertGoal(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.upsertGoal")
	defer span.End()

	if !isJSONRequest(r) {
		pkg.WriteJSONError(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req GoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("upsert goal, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid goal json", http.StatusBadRequest)
		return
	}

	goal, created, err := handler.service.UpsertGoal(ctx, UpsertGoalParams{
		Username: mux.Vars(r)["username"],
		Goal: Goal{
			Activity: req.Activity,
			Duration: req.Duration,
			Distance: req.Distance,
			Steps:    req.Steps,
		},
		Age:    req.Age,
		Height: req.Height,
		Weight: req.Weight,
	})
	if err != nil {
		handler.writeError(w, err, "upsert goal")
		return
	}

	message := "Goal updated"
	if created {
		message = "Goal saved"
	}
	pkg.WriteJSON(w, SaveGoalResponse{Message: message, Goal: *goal}, http.StatusOK)
}

func (handler *Handler) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.addEntry")
	defer span.End()

	if !isJSONRequest(r) {
		pkg.WriteJSONError(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("add entry, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid entry json", http.StatusBadRequest)
		return
	}

	entry, err := handler.service.RecordEntry(ctx, NewEntryParams{
		Username: mux.Vars(r)["username"],
		Activity: req.Activity,
		Date:     req.Date,
		Duration: req.Duration,
		Distance: req.Distance,
		Steps:    req.Steps,
	})
	if err != nil {
		handler.writeError(w, err, "add entry")
		return
	}

	pkg.WriteJSON(w, SaveEntryResponse{Message: "Entry saved", Entry: *entry}, http.StatusCreated)
}

func (handler *Handler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.listEntries")
	defer span.End()

	entries, err := handler.service.ListEntries(ctx, mux.Vars(r)["username"])
	if err != nil {
		handler.writeError(w, err, "list entries")
		return
	}

	pkg.WriteJSON(w, entries, http.StatusOK)
}

func (handler *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.getProfile")
	defer span.End()

	profile, err := handler.service.GetProfile(ctx, mux.Vars(r)["username"])
	if err != nil {
		handler.writeError(w, err, "get profile")
		return
	}

	pkg.WriteJSON(w, profile, http.StatusOK)
}

func (handler *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.getStats")
	defer span.End()

	vars := mux.Vars(r)
	query := r.URL.Query()
	result, err := handler.service.GetStats(ctx, StatsParams{
		Username:  vars["username"],
		Activity:  vars["activity"],
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
	})
	if err != nil {
		handler.writeError(w, err, "get stats")
		return
	}

	pkg.WriteJSON(w, result, http.StatusOK)
}

func (handler *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.dashboard")
	defer span.End()

	vars := mux.Vars(r)
	dashboard, err := handler.service.Dashboard(ctx, vars["username"], vars["activity"], r.URL.Query().Get("frequency"))
	if err != nil {
		handler.writeError(w, err, "dashboard")
		return
	}

	pkg.WriteJSON(w, dashboard, http.StatusOK)
}

func (handler *Handler) HandleListActivities(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteJSON(w, activity.Known(), http.StatusOK)
}

// writeError maps the service errors to http statuses. Unexpected errors are
// logged and hidden from the client.
func (handler *Handler) writeError(w http.ResponseWriter, err error, operation string) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		pkg.WriteJSONError(w, validationErr.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrFutureDate):
		pkg.WriteJSONError(w, ErrFutureDate.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNoGoals):
		pkg.WriteJSONError(w, ErrNoGoals.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNoGoal):
		pkg.WriteJSONError(w, ErrNoGoal.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrDuplicateEntry):
		pkg.WriteJSONError(w, ErrDuplicateEntry.Error(), http.StatusConflict)
	case errors.Is(err, ErrProfileNotFound):
		pkg.WriteJSONError(w, ErrProfileNotFound.Error(), http.StatusNotFound)
	default:
		log.Errorf("%s: %s", operation, err)
		pkg.WriteJSONError(w, "internal error, failed to "+operation, http.StatusInternalServerError)
	}
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), pkg.ContentType.JSON)
}
