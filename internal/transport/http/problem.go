package transporthttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kkkkikiki/donation/internal/ledger"
)

// Problem is the RFC 7807 failure body.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// WriteProblem writes a problem+json response.
func WriteProblem(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Code:   code,
	})
}

// WriteLedgerError maps a ledger failure onto a problem response. The
// caller receives the specific failure code plus its message.
func WriteLedgerError(w http.ResponseWriter, err error) {
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		WriteProblem(w, lerr.Code.HTTPStatus(), string(lerr.Code), lerr.Message)
		return
	}
	WriteProblem(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}
