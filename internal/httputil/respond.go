package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response shape every endpoint answers with.
// Data and Token are omitted when empty so plain status/message responses
// stay small.
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Token   string      `json:"token,omitempty"`
}

func write(w http.ResponseWriter, code int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

// OK writes a success envelope with the given HTTP status code.
func OK(w http.ResponseWriter, code int, message string, data interface{}) {
	write(w, code, Envelope{Status: true, Message: message, Data: data})
}

// OKWithToken writes a success envelope carrying a session token.
func OKWithToken(w http.ResponseWriter, code int, message, token string, data interface{}) {
	write(w, code, Envelope{Status: true, Message: message, Token: token, Data: data})
}

// Fail writes a failure envelope. Business-level "try again" outcomes (an
// expired or mismatched PIN) use code 200 here; hard errors use their
// taxonomy code.
func Fail(w http.ResponseWriter, code int, message string) {
	write(w, code, Envelope{Status: false, Message: message})
}
