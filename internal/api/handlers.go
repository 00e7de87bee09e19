package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopmail/internal/types"
)

// resendRequest is the body of POST /notifications/{id}/resend. To optionally
// redirects the email to a different recipient.
type resendRequest struct {
	To string `json:"to" validate:"omitempty,email"`
}

type resendResponse struct {
	Notification *types.NotificationRecord `json:"notification"`
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"notification id is required", nil))
		return
	}

	var req resendRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidEmail,
				"to must be a valid email address", err))
			return
		}
	}

	rec, err := s.resender.Resend(r.Context(), id, req.To)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: resendResponse{Notification: rec}})
}

type listNotificationsResponse struct {
	Notifications []types.NotificationRecord `json:"notifications"`
}

func (s *Server) handleListByResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"resource id is required", nil))
		return
	}

	records, err := s.lister.ListByResource(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: listNotificationsResponse{Notifications: records}})
}
