package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/printhaus/storeauth/internal/config"
	"github.com/printhaus/storeauth/server/flowstate"
)

// authFlowTTL bounds how long a login flow may sit between the redirect to
// the provider and the callback. Older states are purged and rejected.
const authFlowTTL = 10 * time.Minute

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateCodeChallenge creates a PKCE code challenge from a verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// OIDCLoginHandler starts the federated login flow. State, nonce and PKCE
// verifier are stashed server-side keyed by the state parameter.
func (s *Server) OIDCLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := generateRandomString(32)
		nonce := generateRandomString(32)
		codeVerifier := generateRandomString(48)

		returnURL := r.URL.Query().Get("return_url")
		if !isSafeReturnURL(returnURL) {
			returnURL = "/"
		}

		// This endpoint is unauthenticated, so abandoned flows are purged
		// here rather than allowed to pile up
		if err := s.flowState.DeleteExpired(time.Now().Add(-authFlowTTL)); err != nil {
			s.log.Warn().Err(err).Msg("failed to purge stale auth flow states")
		}

		err := s.flowState.Upsert(state, &flowstate.AuthFlowState{
			CodeVerifier: codeVerifier,
			Nonce:        nonce,
			ReturnURL:    returnURL,
			CreatedAt:    time.Now(),
		})
		if err != nil {
			s.log.Error().Err(err).Msg("failed to store auth flow state")
			writeError(w, http.StatusInternalServerError, "failed to start login")
			return
		}

		authURL := s.oidc.OAuth2Config.AuthCodeURL(
			state,
			oauth2.SetAuthURLParam("nonce", nonce),
			oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(codeVerifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// OIDCCallbackHandler completes the federated login flow. First-time users
// get a storefront customer account created from the ID token claims.
func (s *Server) OIDCCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")

		if errorParam != "" {
			writeError(w, http.StatusBadRequest, "authorization failed: "+errorParam)
			return
		}
		if code == "" || state == "" {
			writeError(w, http.StatusBadRequest, "missing code or state parameter")
			return
		}

		authState, err := s.flowState.Get(state)
		if err != nil || authState == nil {
			writeError(w, http.StatusBadRequest, "invalid state parameter")
			return
		}

		// State is single-use
		if err := s.flowState.Delete(state); err != nil {
			writeError(w, http.StatusInternalServerError, "invalid state parameter")
			return
		}

		if time.Since(authState.CreatedAt) > authFlowTTL {
			writeError(w, http.StatusBadRequest, "login flow expired")
			return
		}

		oauth2Token, err := s.oidc.OAuth2Config.Exchange(
			r.Context(),
			code,
			oauth2.SetAuthURLParam("code_verifier", authState.CodeVerifier),
		)
		if err != nil {
			s.log.Error().Err(err).Msg("token exchange failed")
			writeError(w, http.StatusInternalServerError, "token exchange failed")
			return
		}

		rawIDToken, ok := oauth2Token.Extra("id_token").(string)
		if !ok {
			writeError(w, http.StatusInternalServerError, "no ID token in response")
			return
		}

		idToken, err := s.oidc.OidcVerifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "ID token verification failed")
			return
		}

		var claims struct {
			Nonce string `json:"nonce"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := idToken.Claims(&claims); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to extract claims")
			return
		}

		// Validate nonce to prevent replay attacks
		if claims.Nonce != authState.Nonce {
			writeError(w, http.StatusUnauthorized, "invalid nonce")
			return
		}

		result, err := s.auth.LoginFederated(r.Context(), config.RealmStorefront, claims.Email, claims.Name)
		if err != nil {
			s.log.Error().Err(err).Str("email", claims.Email).Msg("federated login failed")
			writeError(w, http.StatusUnauthorized, "login failed")
			return
		}

		s.setSessionCookie(w, r, result.Session.ID)

		returnURL := authState.ReturnURL
		if returnURL == "" {
			returnURL = "/"
		}
		http.Redirect(w, r, returnURL, http.StatusSeeOther)
	}
}

// isSafeReturnURL permits only same-site relative paths
func isSafeReturnURL(u string) bool {
	return strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//")
}
