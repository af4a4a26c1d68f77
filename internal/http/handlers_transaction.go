package http

import (
	"errors"
	"net/http"

	"cashflow/internal/core"
	"cashflow/internal/importer"
	applog "cashflow/internal/log"
	"cashflow/internal/store"
	"cashflow/internal/tracker"
)

// Mutating handlers answer with triggers only. The new data reaches the
// page through the websocket once the store delivers it.

// signedIn returns the session tracker, or answers 401 when nobody is
// signed in.
func (s *Server) signedIn(w http.ResponseWriter, r *http.Request) (*tracker.Tracker, bool) {
	if sess, ok := s.sessions.Lookup(r); ok {
		if _, in := sess.Tracker.Principal(); in {
			return sess.Tracker, true
		}
	}
	NewHTMXResponse().
		Status(http.StatusUnauthorized).
		TriggerErrorNotification("Please sign in first.").
		Write(w)
	return nil, false
}

// validationMessage maps input errors to the notice shown under the form.
func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return "Amount must be a non-negative number."
	case errors.Is(err, core.ErrInvalidKind):
		return "Choose income or expense."
	case errors.Is(err, core.ErrInvalidDate):
		return "Date is not valid."
	case errors.Is(err, core.ErrEmptyDescription):
		return "Description is required."
	default:
		return err.Error()
	}
}

// writeError answers a failed tracker operation.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, tracker.ErrSignedOut):
		NewHTMXResponse().Status(http.StatusUnauthorized).
			TriggerErrorNotification("Please sign in first.").Write(w)
	case errors.Is(err, store.ErrNotFound):
		NotFoundError("Transaction not found.").
			TriggerErrorNotification("Transaction not found.").Write(w)
	case errors.Is(err, tracker.ErrWriteFailed):
		NewHTMXResponse().Status(http.StatusBadGateway).
			TriggerErrorNotification("Could not save your changes. Please try again.").Write(w)
	case errors.Is(err, importer.ErrEmptyFile):
		UnprocessableEntityError(err.Error()).
			TriggerErrorNotification(err.Error()).Write(w)
	default:
		requestLogger(r, applog.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldError, err)
		InternalServerError("Something went wrong.").
			TriggerErrorNotification("Something went wrong.").Write(w)
	}
}

// handleSubmit creates a transaction, or saves the one being edited.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.signedIn(w, r)
	if !ok {
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	editing := tr.View().Editing != nil
	err := tr.Submit(r.Context(), TransactionInput(p))
	switch {
	case err == nil:
	case errors.Is(err, tracker.ErrSignedOut), errors.Is(err, tracker.ErrWriteFailed):
		s.writeError(w, r, applog.OpCreate, err)
		return
	default:
		requestLogger(r, applog.ComponentHTTP).DebugContext(r.Context(), "Transaction rejected",
			applog.FieldOperation, applog.OpValidate,
			applog.FieldError, err)
		msg := validationMessage(err)
		UnprocessableEntityError(msg).TriggerErrorNotification(msg).Write(w)
		return
	}

	msg := "Transaction added."
	if editing {
		msg = "Transaction updated."
	}
	NewHTMXResponse().
		TriggerFormReset().
		TriggerEditMode("").
		TriggerSuccessNotification(msg).
		Write(w)
}

func (s *Server) handleStartEdit(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.signedIn(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := tr.StartEdit(id); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewHTMXResponse().TriggerEditMode(id).Write(w)
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.signedIn(w, r)
	if !ok {
		return
	}
	tr.CancelEdit()
	NewHTMXResponse().TriggerFormReset().TriggerEditMode("").Write(w)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.signedIn(w, r)
	if !ok {
		return
	}
	if err := tr.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NewHTMXResponse().
		TriggerEditMode("").
		TriggerSuccessNotification("Transaction deleted.").
		Write(w)
}

// handleImport reads a multipart CSV upload in the "file" field.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.signedIn(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.importMaxBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			NewHTMXResponse().Status(http.StatusRequestEntityTooLarge).
				TriggerErrorNotification("The CSV file is too large.").Write(w)
			return
		}
		NewHTMXResponse().Status(http.StatusBadRequest).
			TriggerErrorNotification("Choose a CSV file to import.").Write(w)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		NewHTMXResponse().Status(http.StatusBadRequest).
			TriggerErrorNotification("Choose a CSV file to import.").Write(w)
		return
	}
	defer file.Close()

	res, err := tr.Import(r.Context(), file)
	if err != nil {
		s.writeError(w, r, applog.OpImport, err)
		return
	}
	NewHTMXResponse().
		TriggerInfoNotification(res.Notice()).
		Write(w)
}
