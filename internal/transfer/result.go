package transfer

import "github.com/erazemk/oprema/internal/apperr"

// Result is the outcome of a transfer operation as seen by callers.
type Result struct {
	Success    bool        `json:"success"`
	TransferID string      `json:"transfer_id,omitempty"`
	ErrorKind  apperr.Kind `json:"error_kind,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ResultOf builds a Result. Store failures get a generic message so driver
// details do not leak to clients.
func ResultOf(transferID string, err error) Result {
	if err == nil {
		return Result{Success: true, TransferID: transferID}
	}

	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindStore {
		msg = "temporary failure, please try again"
	}
	return Result{TransferID: transferID, ErrorKind: kind, Error: msg}
}
