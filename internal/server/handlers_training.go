package server

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/metrics"
	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/gin-gonic/gin"
)

const (
	opListTrainings   = "training.list"
	opListDeleted     = "training.list_deleted"
	opGetTraining     = "training.get"
	opCreateTraining  = "training.create"
	opUpdateTraining  = "training.update"
	opDeleteTraining  = "training.delete"
	opRestoreTraining = "training.restore"
	opPurgeTraining   = "training.purge"
)

type trainingReferencePayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (h *httpHandler) handleListTrainings(c *gin.Context) {
	documents, err := h.trainings.List(c.Request.Context())
	if err != nil {
		h.respondFailure(c, opListTrainings, err)
		return
	}
	respondOK(c, gin.H{"trainings": documents})
}

func (h *httpHandler) handleGetTraining(c *gin.Context) {
	document, err := h.trainings.Get(c.Request.Context(), c.Query("id"))
	if err != nil {
		h.respondFailure(c, opGetTraining, err)
		return
	}
	respondOK(c, gin.H{"training": document})
}

func (h *httpHandler) handleListDeletedTrainings(c *gin.Context) {
	email, ok := h.actingEmail(c, c.Query("email"))
	if !ok {
		return
	}
	documents, err := h.trainings.ListDeleted(c.Request.Context(), email)
	if err != nil {
		h.respondFailure(c, opListDeleted, err)
		return
	}
	respondOK(c, gin.H{"trainings": documents})
}

func (h *httpHandler) handleCreateTraining(c *gin.Context) {
	email, ok := h.actingEmail(c, c.Query("email"))
	if !ok {
		return
	}
	var draft training.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondInvalidBody(c)
		return
	}
	document, err := h.trainings.Create(c.Request.Context(), email, draft)
	if err != nil {
		h.respondFailure(c, opCreateTraining, err)
		return
	}
	h.publishTraining(softdelete.OperationAdd, document.ID)
	respondOK(c, gin.H{"training": document})
}

func (h *httpHandler) handleUpdateTraining(c *gin.Context) {
	var patch training.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondInvalidBody(c)
		return
	}
	document, err := h.trainings.Update(c.Request.Context(), h.principal(c), patch)
	if err != nil {
		h.respondFailure(c, opUpdateTraining, err)
		return
	}
	h.publishTraining(softdelete.OperationUpdate, document.ID)
	respondOK(c, gin.H{"training": document})
}

func (h *httpHandler) handleDeleteTraining(c *gin.Context) {
	h.transitionTraining(c, opDeleteTraining, softdelete.OperationRemove, h.trainings.Delete)
}

func (h *httpHandler) handleRestoreTraining(c *gin.Context) {
	h.transitionTraining(c, opRestoreTraining, softdelete.OperationRestore, h.trainings.Restore)
}

func (h *httpHandler) handlePurgeTraining(c *gin.Context) {
	h.transitionTraining(c, opPurgeTraining, softdelete.OperationPurge, h.trainings.Purge)
}

type trainingTransition func(ctx context.Context, actor, id string) error

func (h *httpHandler) transitionTraining(c *gin.Context, operation string, op softdelete.Operation, apply trainingTransition) {
	var request trainingReferencePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidBody(c)
		return
	}
	email, ok := h.actingEmail(c, request.Email)
	if !ok {
		return
	}
	if err := apply(c.Request.Context(), email, request.ID); err != nil {
		h.respondFailure(c, operation, err)
		return
	}
	h.metrics.RecordTransition(metrics.EntityTraining, string(op))
	h.publishTraining(op, request.ID)
	respondOK(c, nil)
}

func (h *httpHandler) publishTraining(op softdelete.Operation, id string) {
	h.realtime.Broadcast(RealtimeMessage{
		EventType: RealtimeEventTrainingChanged,
		IDs:       []string{id},
		Operation: string(op),
		Timestamp: time.Now().UTC(),
	})
}
