package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stratauth/otpauth"
)

type httpResp struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type issueResp struct {
	Message     string `json:"message"`
	ChallengeID string `json:"challenge_id,omitempty"`
}

type authResp struct {
	User interface{} `json:"user"`
	Info interface{} `json:"info,omitempty"`
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
	)

	if err := app.store.Ping(r.Context()); err != nil {
		sendErrorResponse(w, "Unable to reach store.", http.StatusServiceUnavailable, nil)
		return
	}

	sendResponse(w, "OK")
}

// handleAuthenticate is the single strategy entry point. A request
// carrying only a username issues a new OTP; one carrying a username
// and a code (plus the challenge ID under challenge keying) verifies it.
func handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)

		principal   = getParam(r, app.constants.FieldUsername)
		code        = getParam(r, app.constants.FieldOTP)
		challengeID = getParam(r, app.constants.FieldOTPID)
	)

	res, err := app.strategy.Authenticate(r.Context(), otpauth.Request{
		Principal:   principal,
		Code:        code,
		ChallengeID: challengeID,
	})
	if err != nil {
		if errors.Is(err, otpauth.ErrNoPrincipal) ||
			errors.Is(err, otpauth.ErrNoChallengeID) ||
			errors.Is(err, otpauth.ErrBadRequest) {
			sendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}

		app.lo.Error("error authenticating", "error", err)
		sendErrorResponse(w, "Error processing authentication.", http.StatusInternalServerError, nil)
		return
	}

	switch res.Outcome {
	case otpauth.OutcomeIssued:
		sendResponse(w, issueResp{Message: "OTP sent", ChallengeID: res.ChallengeID})
	case otpauth.OutcomeSuccess:
		sendResponse(w, authResp{User: res.User, Info: res.Info})
	default:
		msg := "authentication failed"
		if res.Info != nil {
			msg = fmt.Sprintf("%v", res.Info)
		}
		sendErrorResponse(w, msg, http.StatusUnauthorized, nil)
	}
}

// getParam reads a request parameter from the form body on POST and
// from the query string otherwise.
func getParam(r *http.Request, field string) string {
	if r.Method == http.MethodPost {
		return r.FormValue(field)
	}
	return r.URL.Query().Get(field)
}

// wrap is a middleware that wraps HTTP handlers and injects the "app" context.
func wrap(app *App, next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), "app", app)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sendResponse sends a JSON envelope to the HTTP response.
func sendResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	out, err := json.Marshal(httpResp{Status: "success", Data: data})
	if err != nil {
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	w.Write(out)
}

// sendErrorResponse sends a JSON error envelope to the HTTP response.
func sendErrorResponse(w http.ResponseWriter, message string, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	resp := httpResp{Status: "error",
		Message: message,
		Data:    data}
	out, _ := json.Marshal(resp)
	w.Write(out)
}
