package pkg

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIResponse, REST endpoint'lerinin ortak zarfı.
//
// Code sadece hata yanıtlarında dolar ve WS error event'indeki kodla
// aynıdır; client iki kanalda da aynı tabloyla eşleştirme yapar.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// JSON, data'yı success zarfı içinde yazar.
func JSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, APIResponse{Success: true, Data: data})
}

// Error, domain error'ını status ve koduyla birlikte yazar.
// Sarılmış error'lar da errors.Is ile doğru sentinel'a düşer.
func Error(w http.ResponseWriter, err error) {
	writeEnvelope(w, statusFor(err), APIResponse{
		Error: err.Error(),
		Code:  ErrorCode(err),
	})
}

// ErrorWithMessage, sentinel'ı olmayan hatalar için (eksik header, bozuk
// query parametresi). Code alanı boş kalır.
func ErrorWithMessage(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, APIResponse{Error: message})
}

func writeEnvelope(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Header yazıldıktan sonra encode hatası client'a iletilemez.
	_ = json.NewEncoder(w).Encode(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTargetUnreachable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
