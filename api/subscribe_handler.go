package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/fitcheckr/fitcheckr/subscription"
	"github.com/fitcheckr/fitcheckr/utils"
)

// SubscribeHandler adds an email address to the subscriber list
func (s *Server) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Subscribe API]")

	var req models.SubscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := s.subscriptions.Subscribe(r.Context(), req.Email)
	if errors.Is(err, subscription.ErrInvalidEmail) {
		utils.RespondError(w, &logMessageBuilder, "Invalid email address", http.StatusBadRequest)
		return
	}
	if err != nil {
		utils.RespondErrorDetails(w, &logMessageBuilder, "Failed to save email subscription", err.Error(), http.StatusInternalServerError)
		return
	}

	message := "Email subscribed successfully"
	if outcome.Existing {
		message = "Email already subscribed"
	}
	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("%s, total subscribers: %d", message, outcome.Total))
	utils.RespondJSON(w, http.StatusOK, models.SubscribeResponse{Message: message, TotalSubscribers: outcome.Total})
}

// SubscriberCountHandler reports how many addresses are subscribed
func (s *Server) SubscriberCountHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Subscriber Count API]")

	total, err := s.subscriptions.Count(r.Context())
	if err != nil {
		utils.RespondErrorDetails(w, &logMessageBuilder, "Failed to get subscribers", err.Error(), http.StatusInternalServerError)
		return
	}

	utils.RespondJSON(w, http.StatusOK, models.SubscribeResponse{
		Message:          fmt.Sprintf("Total subscribers: %d", total),
		TotalSubscribers: total,
		StorageType:      s.subscriptions.StorageType(),
	})
}
