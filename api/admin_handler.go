package api

import (
	"crypto/subtle"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/fitcheckr/fitcheckr/utils"
)

const exportFilename = "fitcheckr-subscribers.csv"

// authorized accepts either the shared secret or a bearer token signed with it.
func (s *Server) authorized(r *http.Request, secret string) bool {
	if s.opts.AdminSecret == "" {
		return false
	}
	if secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.AdminSecret)) == 1 {
		return true
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return utils.ValidateAdminToken(s.opts.AdminSecret, token) == nil
	}
	return false
}

// AdminListHandler returns the full subscriber list as JSON
func (s *Server) AdminListHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Admin List API]")

	if !s.authorized(r, r.URL.Query().Get("secret")) {
		utils.RespondError(w, &logMessageBuilder, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snap, err := s.subscriptions.List(r.Context())
	if err != nil {
		utils.RespondErrorDetails(w, &logMessageBuilder, "Failed to get subscriber data", err.Error(), http.StatusInternalServerError)
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Returned %d subscribers", len(snap.Emails)))
	utils.RespondJSON(w, http.StatusOK, models.AdminResponse{
		TotalSubscribers: len(snap.Emails),
		Emails:           snap.Emails,
		LastUpdated:      snap.LastUpdated,
		Timestamp:        time.Now().UTC(),
		StorageType:      s.subscriptions.StorageType(),
	})
}

// AdminActionHandler runs an admin action; "export" returns the list as CSV
func (s *Server) AdminActionHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Admin Action API]")

	var req models.AdminRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !s.authorized(r, req.Secret) {
		utils.RespondError(w, &logMessageBuilder, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if req.Action != "export" {
		utils.RespondError(w, &logMessageBuilder, "Invalid action", http.StatusBadRequest)
		return
	}

	snap, err := s.subscriptions.List(r.Context())
	if err != nil {
		utils.RespondErrorDetails(w, &logMessageBuilder, "Failed to process admin action", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	for _, email := range snap.Emails {
		if err := cw.Write([]string{email}); err != nil {
			utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Export interrupted: %v", err))
			return
		}
	}
	cw.Flush()
	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Exported %d subscribers", len(snap.Emails)))
}
