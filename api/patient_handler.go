package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xraph/intake/patient"
)

// multipartOverhead covers the text fields and part headers around the
// document photo.
const multipartOverhead = 1 << 20

// createPatient handles a multipart registration. Field errors are
// reported before a missing photo, and the photo is removed again when the
// patient cannot be stored.
func (a *API) createPatient(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.uploads.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, r, NewAppError(http.StatusBadRequest, "File too large"))
			return
		}
		a.writeError(w, r, NewAppError(http.StatusBadRequest, "Invalid multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	reg := patient.Registration{
		FullName:    r.FormValue("fullName"),
		Email:       r.FormValue("email"),
		CountryCode: r.FormValue("countryCode"),
		PhoneNumber: r.FormValue("phoneNumber"),
	}
	if err := a.validator.Validate(&reg); err != nil {
		a.writeError(w, r, err)
		return
	}

	file, _, err := r.FormFile("documentPhoto")
	if err != nil {
		a.writeError(w, r, NewAppError(http.StatusBadRequest, "Document photo is required"))
		return
	}
	defer file.Close()

	photo, err := a.uploads.SaveJPEG(file)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	reg.DocumentPhoto = photo

	p, err := a.patients.Register(r.Context(), reg)
	if err != nil {
		if rmErr := a.uploads.Delete(photo); rmErr != nil {
			a.logger.WarnContext(r.Context(), "remove orphaned upload",
				slog.String("path", photo),
				slog.String("error", rmErr.Error()),
			)
		}
		a.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, p)
}

func (a *API) listPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := a.patients.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, patients)
}

func (a *API) getPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, NewAppError(http.StatusNotFound, "Patient not found"))
		return
	}
	p, err := a.patients.Get(r.Context(), patientID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}
