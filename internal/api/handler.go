package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"example.com/safegear/services/ppe/internal/metrics"
	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
	"example.com/safegear/services/ppe/internal/search"
	"example.com/safegear/services/ppe/internal/service"
)

// Handler wires the HTTP surface to the services
type Handler struct {
	deliveries service.DeliveryService
	schedules  service.ScheduleService
	signatures service.SignatureService
	search     search.Client
	log        *logrus.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	deliveries service.DeliveryService,
	schedules service.ScheduleService,
	signatures service.SignatureService,
	searchClient search.Client,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		deliveries: deliveries,
		schedules:  schedules,
		signatures: signatures,
		search:     searchClient,
		log:        log,
	}
}

// Register mounts all routes on the router
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", h.metrics)

	v1 := r.Group("/api/v1")
	{
		deliveries := v1.Group("/deliveries")
		{
			deliveries.POST("", h.createDelivery)
			deliveries.GET("", h.listDeliveries)
			deliveries.GET("/pending", h.pendingDeliveries)
			deliveries.GET("/overdue", h.overdueDeliveries)
			deliveries.GET("/upcoming", h.upcomingDeliveries)
			deliveries.GET("/stats", h.deliveryStats)
			deliveries.POST("/search", h.searchDeliveries)
			deliveries.POST("/batch/approve", h.batchApprove)
			deliveries.POST("/batch/reprove", h.batchReprove)
			deliveries.POST("/batch/deliver", h.batchDeliver)
			deliveries.GET("/:id", h.getDelivery)
			deliveries.PATCH("/:id", h.updateDelivery)
			deliveries.POST("/:id/approve", h.approveDelivery)
			deliveries.POST("/:id/reprove", h.reproveDelivery)
			deliveries.POST("/:id/cancel", h.cancelDelivery)
			deliveries.POST("/:id/deliver", h.markDelivered)
			deliveries.POST("/:id/revert", h.revertDelivered)
			deliveries.POST("/:id/signature/reject", h.rejectSignature)
			deliveries.POST("/:id/signature/retry", h.retrySignature)
			deliveries.POST("/:id/signature/force-complete", h.forceCompleteSignature)
		}

		v1.GET("/items/:id", h.getItem)
		v1.GET("/items/:id/availability", h.itemAvailability)
		v1.GET("/workers/:id", h.getWorker)

		signatures := v1.Group("/signatures")
		{
			signatures.POST("/initiate", h.initiateSignatures)
			signatures.POST("/force-complete", h.forceCompleteByKey)
		}

		schedules := v1.Group("/schedules")
		{
			schedules.POST("", h.createSchedule)
			schedules.GET("", h.listSchedules)
			schedules.GET("/:id", h.getSchedule)
			schedules.PATCH("/:id", h.updateSchedule)
			schedules.POST("/:id/deactivate", h.deactivateSchedule)
			schedules.POST("/run", h.runSchedules)
		}
	}

	webhooks := r.Group("/webhooks/signer")
	{
		webhooks.POST("/signed", h.webhookSigned)
		webhooks.POST("/rejected", h.webhookRejected)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now()})
}

func (h *Handler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.GetCollector().Snapshot())
}

func (h *Handler) createDelivery(c *gin.Context) {
	var req service.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	result, err := h.deliveries.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) getDelivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	delivery, err := h.deliveries.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (h *Handler) updateDelivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	var req service.UpdateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	req.ID = id

	delivery, err := h.deliveries.Update(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (h *Handler) listDeliveries(c *gin.Context) {
	filter := repository.DeliveryFilter{}
	if v := c.Query("worker_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeBindError(c, err)
			return
		}
		filter.WorkerID = &id
	}
	if v := c.Query("item_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeBindError(c, err)
			return
		}
		filter.ItemID = &id
	}
	if v := c.Query("schedule_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeBindError(c, err)
			return
		}
		filter.ScheduleID = &id
	}
	if v := c.Query("status"); v != "" {
		status := model.DeliveryStatus(v)
		if !status.Valid() {
			writeError(c, &service.ValidationError{Msg: "unknown status " + v})
			return
		}
		filter.Status = &status
	}

	page := repository.Page{
		Offset: intQuery(c, "offset", 0),
		Limit:  intQuery(c, "limit", 50),
		Sort:   c.Query("sort"),
	}

	items, total, err := h.deliveries.List(c.Request.Context(), filter, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) pendingDeliveries(c *gin.Context) {
	items, err := h.deliveries.FindPending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) overdueDeliveries(c *gin.Context) {
	items, err := h.deliveries.FindOverdue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) upcomingDeliveries(c *gin.Context) {
	days := intQuery(c, "days", 7)
	items, err := h.deliveries.FindUpcoming(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) deliveryStats(c *gin.Context) {
	stats, err := h.deliveries.StatsByStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) searchDeliveries(c *gin.Context) {
	var query map[string]interface{}
	if err := c.ShouldBindJSON(&query); err != nil {
		writeBindError(c, err)
		return
	}

	docs, err := h.search.SearchDeliveries(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": docs})
}

type reviewRequest struct {
	ReviewerID uuid.UUID `json:"reviewer_id" binding:"required"`
	Note       string    `json:"note"`
}

func (h *Handler) approveDelivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	delivery, err := h.deliveries.Approve(c.Request.Context(), id, req.ReviewerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (h *Handler) reproveDelivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	delivery, err := h.deliveries.Reprove(c.Request.Context(), id, req.ReviewerID, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (h *Handler) cancelDelivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	delivery, err := h.deliveries.Cancel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

type deliverRequest struct {
	ActualDeliveryDate *time.Time `json:"actual_delivery_date"`
	ActorID            *uuid.UUID `json:"actor_id"`
}

func (h *Handler) markDelivered(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}
	var req deliverRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		writeBindError(c, err)
		return
	}

	delivery, err := h.deliveries.MarkDelivered(c.Request.Context(), id, req.ActualDeliveryDate, req.ActorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (h *Handler) revertDelivered(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	delivery, err := h.deliveries.RevertDelivered(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

type batchReviewRequest struct {
	IDs        []uuid.UUID `json:"ids" binding:"required"`
	ReviewerID uuid.UUID   `json:"reviewer_id" binding:"required"`
	Note       string      `json:"note"`
}

func (h *Handler) batchApprove(c *gin.Context) {
	var req batchReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.deliveries.BatchApprove(c.Request.Context(), req.IDs, req.ReviewerID))
}

func (h *Handler) batchReprove(c *gin.Context) {
	var req batchReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.deliveries.BatchReprove(c.Request.Context(), req.IDs, req.ReviewerID, req.Note))
}

type batchDeliverRequest struct {
	IDs     []uuid.UUID `json:"ids" binding:"required"`
	ActorID *uuid.UUID  `json:"actor_id"`
}

func (h *Handler) batchDeliver(c *gin.Context) {
	var req batchDeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.deliveries.BatchMarkDelivered(c.Request.Context(), req.IDs, req.ActorID))
}

func (h *Handler) getItem(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	item, err := h.deliveries.GetItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) getWorker(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	worker, err := h.deliveries.GetWorker(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, worker)
}

func (h *Handler) itemAvailability(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	avail, err := h.deliveries.ItemAvailability(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

type initiateSignaturesRequest struct {
	DeliveryIDs []uuid.UUID `json:"delivery_ids" binding:"required"`
}

func (h *Handler) initiateSignatures(c *gin.Context) {
	var req initiateSignaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	result, err := h.signatures.Initiate(c.Request.Context(), req.DeliveryIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rejectSignatureRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectSignature(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}
	var req rejectSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		writeBindError(c, err)
		return
	}

	deliveries, err := h.signatures.RejectDelivery(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

func (h *Handler) retrySignature(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	delivery, err := h.signatures.Retry(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (h *Handler) forceCompleteSignature(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	deliveries, err := h.signatures.ForceCompleteDelivery(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

type forceCompleteRequest struct {
	DocumentKey string `json:"document_key" binding:"required"`
}

func (h *Handler) forceCompleteByKey(c *gin.Context) {
	var req forceCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	deliveries, err := h.signatures.ForceCompleteByDocumentKey(c.Request.Context(), req.DocumentKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

type signerWebhookPayload struct {
	DocumentKey       string     `json:"document_key" binding:"required"`
	SignedAt          *time.Time `json:"signed_at"`
	SignedDocumentURL string     `json:"signed_document_url"`
	Reason            string     `json:"reason"`
}

// webhookSigned handles the provider's signed-document notification. The
// provider retries aggressively, so repeats are expected and answered 200.
func (h *Handler) webhookSigned(c *gin.Context) {
	var payload signerWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeBindError(c, err)
		return
	}

	deliveries, err := h.signatures.CompleteByDocumentKey(c.Request.Context(), payload.DocumentKey, payload.SignedAt, payload.SignedDocumentURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

func (h *Handler) webhookRejected(c *gin.Context) {
	var payload signerWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeBindError(c, err)
		return
	}

	deliveries, err := h.signatures.RejectByDocumentKey(c.Request.Context(), payload.DocumentKey, payload.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

func (h *Handler) createSchedule(c *gin.Context) {
	var req service.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	schedule, err := h.schedules.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

func (h *Handler) listSchedules(c *gin.Context) {
	schedules, err := h.schedules.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": schedules})
}

func (h *Handler) getSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	schedule, err := h.schedules.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (h *Handler) updateSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	var req service.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	req.ID = id

	schedule, err := h.schedules.Update(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (h *Handler) deactivateSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBindError(c, err)
		return
	}

	schedule, err := h.schedules.Deactivate(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (h *Handler) runSchedules(c *gin.Context) {
	report, err := h.schedules.RunDue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
