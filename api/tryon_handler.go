package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fitcheckr/fitcheckr/ingest"
	"github.com/fitcheckr/fitcheckr/models"
	"github.com/fitcheckr/fitcheckr/relay"
	"github.com/fitcheckr/fitcheckr/utils"
	"github.com/go-chi/chi/v5/middleware"
)

// Two base64 images of at most ingest.MaxImageBytes each, plus JSON framing.
const maxTryOnBodyBytes = 2*(ingest.MaxImageBytes/3+1)*4 + 64<<10

// VirtualTryOnHandler handles the virtual try-on request
func (s *Server) VirtualTryOnHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("[Virtual Try-On API] request_id=%s", middleware.GetReqID(r.Context())))

	if r.Method != http.MethodPost {
		utils.RespondError(w, &logMessageBuilder, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTryOnBodyBytes)
	var req models.TryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, &logMessageBuilder, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		utils.RespondErrorDetails(w, &logMessageBuilder, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	userImage := ingest.StripDataURIPrefix(req.UserImage)
	var articleImage string
	if len(req.ArticleImages) > 0 {
		articleImage = ingest.StripDataURIPrefix(req.ArticleImages[0])
	}
	if userImage == "" || articleImage == "" {
		utils.RespondError(w, &logMessageBuilder, "Missing userImage or articleImages", http.StatusBadRequest)
		return
	}
	if len(req.ArticleImages) > 1 {
		utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Ignoring %d extra article images", len(req.ArticleImages)-1))
	}
	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Payload sizes: user=%d article=%d", len(userImage), len(articleImage)))

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RelayTimeout)
	defer cancel()

	result, err := s.relay.TryOn(ctx, userImage, articleImage)
	if err != nil {
		s.respondTryOnError(w, &logMessageBuilder, err)
		return
	}

	if result.Status != models.TryOnSuccess {
		utils.AddToLogMessage(&logMessageBuilder, "Model returned no image")
		utils.RespondJSON(w, http.StatusUnprocessableEntity, result.Response())
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Try-on image generated (%s, %d bytes base64)", result.MimeType, len(result.ImagePayload)))
	utils.RespondJSON(w, http.StatusOK, result.Response())
}

func (s *Server) respondTryOnError(w http.ResponseWriter, logMessageBuilder *strings.Builder, err error) {
	if errors.Is(err, relay.ErrInvalidImage) {
		utils.RespondErrorDetails(w, logMessageBuilder, "Invalid image data", err.Error(), http.StatusBadRequest)
		return
	}

	var perr *relay.ProviderError
	if errors.As(err, &perr) {
		utils.AddToLogMessage(logMessageBuilder, fmt.Sprintf("Provider failure classified as %s", perr.Kind))
		utils.RespondErrorDetails(w, logMessageBuilder, perr.Kind.UserMessage(), perr.Err.Error(), perr.Kind.HTTPStatus())
		return
	}

	utils.RespondErrorDetails(w, logMessageBuilder, relay.KindUnknown.UserMessage(), err.Error(), http.StatusInternalServerError)
}
