package server

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/metrics"
	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	"github.com/MarcoPoloResearchLab/trainhub/internal/users"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	opSignup   = "users.signup"
	opLogin    = "users.login"
	opGetUser  = "users.get_record"
	opSaveUser = "users.save_record"
	opSession  = "auth.issue_token"
)

type signupRequestPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type saveUserRequestPayload struct {
	Email            string           `json:"email"`
	Inventory        []inventory.Item `json:"inventory"`
	DeletedInventory []inventory.Item `json:"deleted_inventory"`
}

type userRecordPayload struct {
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Inventory        []inventory.Item `json:"inventory"`
	DeletedInventory []inventory.Item `json:"deleted_inventory"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidBody(c)
		return
	}
	principal, err := h.users.Signup(c.Request.Context(), request.Name, request.Email, request.Password)
	if err != nil {
		h.respondFailure(c, opSignup, err)
		return
	}
	h.respondSession(c, principal)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidBody(c)
		return
	}
	principal, err := h.users.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondFailure(c, opLogin, err)
		return
	}
	h.respondSession(c, principal)
}

func (h *httpHandler) respondSession(c *gin.Context, principal users.Principal) {
	token, expiresIn, err := h.tokens.IssueToken(principal.Email, principal.Name)
	if err != nil {
		h.respondFailure(c, opSession, err)
		return
	}
	respondOK(c, gin.H{
		"user":       principal,
		"token":      token,
		"expires_in": expiresIn,
	})
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	email, ok := h.actingEmail(c, c.Query("email"))
	if !ok {
		return
	}
	principal, record, err := h.users.GetRecord(c.Request.Context(), email)
	if err != nil {
		h.respondFailure(c, opGetUser, err)
		return
	}
	respondOK(c, gin.H{"user": userRecordPayload{
		Name:             principal.Name,
		Email:            principal.Email,
		Inventory:        record.Inventory,
		DeletedInventory: record.DeletedInventory,
	}})
}

// handleSaveUser replaces the inventory record and reports the accepted bin transitions.
func (h *httpHandler) handleSaveUser(c *gin.Context) {
	var request saveUserRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidBody(c)
		return
	}
	email, ok := h.actingEmail(c, request.Email)
	if !ok {
		return
	}
	saved, err := h.users.SaveRecord(c.Request.Context(), inventory.Record{
		Email:            email,
		Inventory:        request.Inventory,
		DeletedInventory: request.DeletedInventory,
	})
	if err != nil {
		h.respondFailure(c, opSaveUser, err)
		return
	}
	changes := saved.Changes

	ids := make([]string, 0, len(changes))
	for _, change := range changes {
		ids = append(ids, change.ItemID)
		switch change.Operation {
		case softdelete.OperationRemove, softdelete.OperationRestore, softdelete.OperationPurge:
			h.metrics.RecordTransition(metrics.EntityInventory, string(change.Operation))
		}
	}
	h.realtime.Publish(RealtimeMessage{
		Principal: email,
		EventType: RealtimeEventInventoryChanged,
		IDs:       ids,
		Timestamp: time.Now().UTC(),
	})
	h.logger.Debug("inventory saved", zap.String("email", email), zap.Int("changes", len(changes)))

	respondOK(c, gin.H{
		"inventory":         saved.Inventory,
		"deleted_inventory": saved.DeletedInventory,
	})
}

// actingEmail resolves the email a request acts on. A supplied email must match the
// token subject; an empty one defaults to it.
func (h *httpHandler) actingEmail(c *gin.Context, supplied string) (string, bool) {
	principal := h.principal(c)
	email := validation.NormalizeEmail(supplied)
	if email == "" {
		return principal, true
	}
	if !strings.EqualFold(email, principal) {
		h.logger.Warn("principal mismatch", zap.String("principal", principal), zap.String("requested", email))
		h.respondFailure(c, "auth", errPrincipalMismatch)
		return "", false
	}
	return email, true
}
