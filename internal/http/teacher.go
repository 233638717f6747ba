package http

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TraxTaz/FontysInfraLab/internal/model"
	"github.com/TraxTaz/FontysInfraLab/internal/tunnel"
)

type userRecordSummary struct {
	Email                string `json:"email"`
	VPNID                string `json:"vpnid"`
	CertificateAuthority string `json:"certificateAuthority"`
	PrivateKey           string `json:"privateKey"`
	Certificate          string `json:"certificate"`
	Description          string `json:"description"`
	DataCiphers          string `json:"dataCiphers"`
	DataCiphersFallback  string `json:"dataCiphersFallback"`
	TLSStaticKey         string `json:"tlsStaticKey"`
	DevMode              string `json:"devMode"`
	Digest               string `json:"digest"`
	LocalPort            string `json:"localPort"`
	Protocol             string `json:"protocol"`
}

func (s *Server) handleTeacherMain(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListUserRecords(r.Context())
	if err != nil {
		s.writeStoreError(w, "user record list error", err)
		return
	}

	resp := make([]userRecordSummary, 0, len(records))
	for _, rec := range records {
		resp = append(resp, userRecordSummary{
			Email:                rec.Email,
			VPNID:                rec.VPNID,
			CertificateAuthority: rec.CertificateAuthority,
			PrivateKey:           rec.PrivateKey,
			Certificate:          rec.Certificate,
			Description:          rec.Description,
			DataCiphers:          rec.DataCiphers,
			DataCiphersFallback:  rec.DataCiphersFallback,
			TLSStaticKey:         rec.TLSStaticKey,
			DevMode:              rec.DevMode,
			Digest:               rec.Digest,
			LocalPort:            rec.LocalPort,
			Protocol:             rec.Protocol,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateUserRequest struct {
	Email    string `json:"email"`
	VPNID    string `json:"vpnid"`
	OldEmail string `json:"oldEmail"`
	OldVPNID string `json:"oldVpnId"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.OldEmail = strings.TrimSpace(strings.ToLower(req.OldEmail))
	if req.Email == "" || req.OldEmail == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if err := s.store.UpdateUser(r.Context(), req.Email, req.VPNID, req.OldEmail, req.OldVPNID); err != nil {
		s.writeStoreError(w, "user update error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := s.store.ListTeachers(r.Context())
	if err != nil {
		s.writeStoreError(w, "teacher list error", err)
		return
	}
	resp := make([]map[string]string, 0, len(teachers))
	for _, teacher := range teachers {
		resp = append(resp, map[string]string{"email": teacher.Email})
	}
	writeJSON(w, http.StatusOK, resp)
}

type createTeacherRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req createTeacherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	if err := s.store.CreateTeacher(r.Context(), req.Email); err != nil {
		s.writeStoreError(w, "teacher create error", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Teacher{Email: req.Email})
}

type updateTeacherEmailRequest struct {
	NewEmail string `json:"newEmail"`
	OldEmail string `json:"oldEmail"`
}

func (s *Server) handleUpdateTeacherEmail(w http.ResponseWriter, r *http.Request) {
	var req updateTeacherEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.NewEmail = strings.TrimSpace(strings.ToLower(req.NewEmail))
	req.OldEmail = strings.TrimSpace(strings.ToLower(req.OldEmail))
	if req.NewEmail == "" || req.OldEmail == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if err := s.store.UpdateTeacherEmail(r.Context(), req.NewEmail, req.OldEmail); err != nil {
		s.writeStoreError(w, "teacher update error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	email := pathEmail(r)
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	deleted, err := s.store.DeleteTeacher(r.Context(), email)
	if err != nil {
		s.writeStoreError(w, "teacher delete error", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type createStudentRequest struct {
	Email string `json:"email"`
	VPNID string `json:"vpnId"`
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	if err := s.store.CreateStudent(r.Context(), req.Email, req.VPNID); err != nil {
		s.writeStoreError(w, "student create error", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.User{Email: req.Email, VPNID: req.VPNID})
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	email := pathEmail(r)
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	deleted, err := s.store.DeleteStudent(r.Context(), email)
	if err != nil {
		s.writeStoreError(w, "student delete error", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRunScripts(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		writeError(w, http.StatusInternalServerError, "scripts_not_configured")
		return
	}
	if err := s.provisioner.RunAll(r.Context()); err != nil {
		log.Printf("provisioning scripts error: %v", err)
		if errors.Is(err, tunnel.ErrChannelUnavailable) {
			writeError(w, http.StatusInternalServerError, "store_unavailable")
			return
		}
		writeError(w, http.StatusBadGateway, "script_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeStoreError(w http.ResponseWriter, context string, err error) {
	log.Printf("%s: %v", context, err)
	if errors.Is(err, tunnel.ErrChannelUnavailable) {
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error")
}

func pathEmail(r *http.Request) string {
	email := chi.URLParam(r, "email")
	if decoded, err := url.PathUnescape(email); err == nil {
		email = decoded
	}
	return strings.TrimSpace(strings.ToLower(email))
}
