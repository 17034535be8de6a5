package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/trainhub/internal/barcode"
	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/MarcoPoloResearchLab/trainhub/internal/uploads"
	"github.com/MarcoPoloResearchLab/trainhub/internal/users"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeUnauthorized       = "auth.unauthorized"
	codePrincipalMismatch  = "auth.principal_mismatch"
	messageInvalidBody     = "invalid request body"
	messageInternalFailure = "internal server error"
)

// requestError is a handler-level failure with a code and a message meant for people.
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func (e *requestError) Code() string {
	return e.code
}

var errPrincipalMismatch = &requestError{code: codePrincipalMismatch, message: "you can only access your own account"}

type codedError interface {
	Code() string
}

func respondOK(c *gin.Context, payload gin.H) {
	body := gin.H{"ok": true}
	for key, value := range payload {
		body[key] = value
	}
	c.JSON(http.StatusOK, body)
}

func respondInvalidBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": messageInvalidBody})
}

// respondFailure reports an application failure with HTTP 200 and ok:false. operation is
// the fallback code prefix for errors that do not carry a code of their own.
func (h *httpHandler) respondFailure(c *gin.Context, operation string, err error) {
	code := operation + ".failed"
	var coded codedError
	if errors.As(err, &coded) {
		code = coded.Code()
	}
	message := publicMessage(code, err)
	if message == messageInternalFailure {
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, gin.H{"ok": false, "error": message, "code": code})
}

// publicMessage translates an error into text suitable for display.
func publicMessage(code string, err error) string {
	var validationErr *validation.ValidationError
	var requestErr *requestError
	switch {
	case errors.As(err, &requestErr):
		return requestErr.message
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, users.ErrAccountExists):
		return users.ErrAccountExists.Error()
	case errors.Is(err, users.ErrInvalidCredentials):
		return users.ErrInvalidCredentials.Error()
	case errors.Is(err, users.ErrNotFound):
		return users.ErrNotFound.Error()
	case errors.Is(err, inventory.ErrTooManyItems):
		return "inventory too large (max 1000 items)"
	case errors.Is(err, inventory.ErrDuplicateItemID):
		return "an inventory item appears more than once"
	case errors.Is(err, training.ErrNotFound):
		return "training not found"
	case errors.Is(err, training.ErrNotOwner):
		return "you can only " + verbForCode(code) + " your own trainings"
	case errors.Is(err, softdelete.ErrInvalidTransition):
		return transitionMessage(code)
	case errors.Is(err, uploads.ErrMissingFile),
		errors.Is(err, uploads.ErrTooLarge),
		errors.Is(err, uploads.ErrNotVideo),
		errors.Is(err, uploads.ErrNotImage),
		errors.Is(err, uploads.ErrSaveFailed):
		return rootMessage(err, uploads.ErrMissingFile, uploads.ErrTooLarge, uploads.ErrNotVideo, uploads.ErrNotImage, uploads.ErrSaveFailed)
	case errors.Is(err, barcode.ErrMissingUPC):
		return barcode.ErrMissingUPC.Error()
	case errors.Is(err, barcode.ErrNotFound):
		return barcode.ErrNotFound.Error()
	case errors.Is(err, barcode.ErrUnavailable):
		return barcode.ErrUnavailable.Error()
	case errors.Is(err, barcode.ErrUnauthorized), errors.Is(err, barcode.ErrUpstream):
		return "barcode lookup is temporarily unavailable"
	default:
		return messageInternalFailure
	}
}

func rootMessage(err error, candidates ...error) string {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate.Error()
		}
	}
	return messageInternalFailure
}

func verbForCode(code string) string {
	switch {
	case strings.HasPrefix(code, "training.update"):
		return "edit"
	case strings.HasPrefix(code, "training.restore"):
		return "restore"
	default:
		return "delete"
	}
}

func transitionMessage(code string) string {
	switch {
	case strings.HasPrefix(code, "training.purge"):
		return "only trainings in the recycling bin can be permanently deleted"
	case strings.HasPrefix(code, "training.restore"):
		return "training is not in the recycling bin"
	case strings.HasPrefix(code, "training.delete"):
		return "training is already in the recycling bin"
	case strings.HasPrefix(code, "training.update"):
		return "restore the training before editing it"
	default:
		return "inventory items must pass through the recycling bin before they are removed"
	}
}
