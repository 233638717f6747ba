package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/TraxTaz/FontysInfraLab/internal/auth"
	"github.com/TraxTaz/FontysInfraLab/internal/config"
	"github.com/TraxTaz/FontysInfraLab/internal/identity"
	"github.com/TraxTaz/FontysInfraLab/internal/model"
	"github.com/TraxTaz/FontysInfraLab/internal/ovpn"
	"github.com/TraxTaz/FontysInfraLab/internal/repository"
	"github.com/TraxTaz/FontysInfraLab/internal/tunnel"
)

type Store interface {
	PrincipalExists(ctx context.Context, email string) (bool, error)
	GetUserConfig(ctx context.Context, email string) (model.UserConfig, error)
	ListUserRecords(ctx context.Context) ([]model.UserRecord, error)
	UpdateUser(ctx context.Context, email, vpnID, oldEmail, oldVPNID string) error
	CreateStudent(ctx context.Context, email, vpnID string) error
	DeleteStudent(ctx context.Context, email string) (bool, error)
	ListTeachers(ctx context.Context) ([]model.Teacher, error)
	CreateTeacher(ctx context.Context, email string) error
	UpdateTeacherEmail(ctx context.Context, newEmail, oldEmail string) error
	DeleteTeacher(ctx context.Context, email string) (bool, error)
}

type IdentityProvider interface {
	Profile(ctx context.Context, bearer string) (identity.Profile, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

type Provisioner interface {
	RunAll(ctx context.Context) error
}

type Server struct {
	cfg         config.Config
	store       Store
	identity    IdentityProvider
	provisioner Provisioner
	limiter     *rateLimiter
}

func NewServer(cfg config.Config, store Store, provider IdentityProvider, provisioner Provisioner) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		identity:    provider,
		provisioner: provisioner,
		limiter:     newRateLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Get("/authorize", s.handleAuthorize)
		r.Get("/exchange", s.handleExchange)
		r.Post("/refresh-token", s.handleRefresh)
		r.Post("/clear-cookie", s.handleClearCookie)
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(auth.RoleStudent))
		r.Get("/file", s.handleGetFile)
	})

	r.Route("/teacher", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(auth.RoleTeacher))
		r.Get("/main", s.handleTeacherMain)
		r.Put("/users", s.handleUpdateUser)
		r.Get("/teachers", s.handleListTeachers)
		r.Post("/teachers", s.handleCreateTeacher)
		r.Put("/teachers", s.handleUpdateTeacherEmail)
		r.Delete("/teachers/{email}", s.handleDeleteTeacher)
		r.Post("/student", s.handleCreateStudent)
		r.Delete("/student/{email}", s.handleDeleteStudent)
		r.Post("/run-scripts", s.handleRunScripts)
	})

	return r
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	bearer := bearerToken(r.Header.Get("Authorization"))
	if bearer == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}

	profile, err := s.identity.Profile(r.Context(), bearer)
	if err != nil {
		if errors.Is(err, identity.ErrUpstreamRejected) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		log.Printf("identity profile error: %v", err)
		writeError(w, http.StatusInternalServerError, "upstream_error")
		return
	}

	exists, err := s.store.PrincipalExists(r.Context(), profile.Email)
	if err != nil {
		log.Printf("principal lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	if !exists {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}

	role := auth.RoleFromAffiliations(profile.Affiliations)
	pair, err := auth.NewTokenPair(s.cfg.JWTSecret, s.cfg.JWTIssuer, role, profile.Email, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
	if err != nil {
		log.Printf("token mint error: %v", err)
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	resp := make(map[string]interface{}, len(profile.Raw)+2)
	for key, value := range profile.Raw {
		resp[key] = value
	}
	resp["accessToken"] = pair.AccessToken
	resp["refreshToken"] = pair.RefreshToken
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_code")
		return
	}

	token, err := s.identity.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("code exchange error: %v", err)
		writeError(w, http.StatusInternalServerError, "exchange_failed")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	pair, _, err := auth.Refresh(s.cfg.JWTSecret, s.cfg.JWTIssuer, req.RefreshToken, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleClearCookie(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "connect.sid",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}

	cfg, err := s.store.GetUserConfig(r.Context(), claims.Subject)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found")
		case errors.Is(err, tunnel.ErrChannelUnavailable):
			log.Printf("channel unavailable: %v", err)
			writeError(w, http.StatusInternalServerError, "store_unavailable")
		default:
			log.Printf("user config query error: %v", err)
			writeError(w, http.StatusInternalServerError, "store_unavailable")
		}
		return
	}

	writeVPNProfile(w, cfg, s.cfg.VPNRemoteHost)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil || claims.Role != role {
				writeError(w, http.StatusForbidden, "role_not_allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeVPNProfile(w http.ResponseWriter, cfg model.UserConfig, remoteHost string) {
	profile := ovpn.Render(cfg, remoteHost)
	w.Header().Set("Content-Type", "application/x-openvpn-profile")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ovpn.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(profile))
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
