package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/droplocker/droplocker/internal/common"
)

// opaqueNotFoundMsg is returned for both missing artifacts and failed
// password checks, so the two cases are indistinguishable from outside.
const opaqueNotFoundMsg = "not found or access denied"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "no file received")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	res, err := s.vault.Upload(r.Context(), content, header.Filename)
	if err != nil {
		s.writeVaultError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		ArtifactID:     res.ArtifactID,
		OriginalName:   header.Filename,
		Extension:      res.Extension,
		PlaintextSize:  res.PlaintextSize,
		CiphertextSize: res.CiphertextSize,
	})
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	linkPolicy, err := s.vault.ConfigureLink(r.Context(), req.ArtifactID, req.ExpirySeconds, req.Password)
	if err != nil {
		s.writeVaultError(w, r, err)
		return
	}

	token, err := GenerateLinkToken(req.ArtifactID, s.linkSecret, time.Unix(linkPolicy.ExpiresAt, 0))
	if err != nil {
		s.logger.Error(r.Context(), "link token signing failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	link := fmt.Sprintf("%s/api/download/%s?token=%s",
		strings.TrimSuffix(s.baseURL, "/"), url.PathEscape(req.ArtifactID), url.QueryEscape(token))

	writeJSON(w, http.StatusOK, linkResponse{
		Link:        link,
		ExpiresAt:   linkPolicy.ExpiresAt,
		HasPassword: linkPolicy.HasPassword,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := s.vault.GetInfo(r.Context(), id)
	if err != nil {
		s.writeVaultError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, infoResponse{
		Name:           info.Name,
		Extension:      info.Extension,
		PlaintextSize:  info.PlaintextSize,
		CiphertextSize: info.CiphertextSize,
		HasPassword:    info.HasPassword,
		ExpiresAt:      info.ExpiresAt,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// A token, when supplied, must verify and must match the path.
	if token := r.URL.Query().Get("token"); token != "" {
		tokenID, err := ArtifactIDFromToken(token, s.linkSecret)
		if err != nil || tokenID != id {
			writeJSONError(w, http.StatusNotFound, opaqueNotFoundMsg)
			return
		}
	}

	password := r.URL.Query().Get("password")
	if password == "" {
		password = r.Header.Get("X-Drop-Password")
	}

	download, err := s.vault.Retrieve(r.Context(), id, password)
	if err != nil {
		s.writeVaultError(w, r, err)
		return
	}
	defer download.Content.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", download.Size))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": download.Name}))

	if _, err := io.Copy(w, download.Content); err != nil {
		// The client went away mid-stream; Close will release the
		// artifact without committing the one-time deletion.
		s.logger.Warn(r.Context(), "download interrupted", "artifact_id", id, "error", err)
	}
}

// writeVaultError maps core errors onto HTTP responses. NotFound and
// Unauthorized share one opaque 404, closing the existence oracle.
func (s *Server) writeVaultError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrUnauthorized):
		writeJSONError(w, http.StatusNotFound, opaqueNotFoundMsg)
	default:
		// Integrity, crypto, and storage failures are server-side faults;
		// details go to the log, not the client.
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
