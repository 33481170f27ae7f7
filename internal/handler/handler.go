// Package handler serves the registration, door and console workflows over
// HTTP.
package handler

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eventgate/internal/auth"
	"eventgate/internal/checkin"
	"eventgate/internal/console"
	"eventgate/internal/directory"
	"eventgate/internal/metrics"
	"eventgate/internal/queue"
	"eventgate/internal/registration"
	"eventgate/internal/tally"
	"eventgate/internal/ticket"
)

// Operators configures door-operator token issuance.
type Operators struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
	// Secret gates token issuance through the X-Operator-Secret header.
	// Empty leaves registration open.
	Secret     string
}

// Deps are the collaborators of a Handler. The workflow services are nil
// when no directory store is configured; their routes then answer 503.
type Deps struct {
	Registration *registration.Service
	Checkin      *checkin.Service
	Console      *console.Service

	Events    queue.Queue
	Tally     tally.Counter
	Metrics   *metrics.Metrics
	Operators Operators

	// StoreHealthy and RedisHealthy feed /healthz. Nil means not in use.
	StoreHealthy func(ctx context.Context) bool
	RedisHealthy func(ctx context.Context) bool
}

// OperatorSecretHeader carries Operators.Secret on POST /operators/register.
const OperatorSecretHeader = "X-Operator-Secret"

// publishTimeout bounds how long a request waits on a full or slow queue.
const publishTimeout = 500 * time.Millisecond

type Handler struct {
	deps Deps
}

func New(deps Deps) *Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	return &Handler{deps: deps}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	if h.deps.StoreHealthy != nil {
		ok := h.deps.StoreHealthy(ctx)
		body["db"] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	} else {
		body["db"] = false
		status = http.StatusServiceUnavailable
	}
	if h.deps.RedisHealthy != nil {
		body["redis"] = h.deps.RedisHealthy(ctx)
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// ---------- Registration ----------

func (h *Handler) Register(c *gin.Context) {
	if h.deps.Registration == nil {
		unavailable(c)
		return
	}
	var req registration.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON with name, surname and className")
		h.deps.Metrics.Registrations.WithLabelValues(directory.StudentKind.Name, TagValidation).Inc()
		return
	}

	res, err := h.deps.Registration.Register(c.Request.Context(), req)
	if err != nil {
		tag := fail(c, err)
		h.deps.Metrics.Registrations.WithLabelValues(directory.StudentKind.Name, tag).Inc()
		return
	}
	h.deps.Metrics.Registrations.WithLabelValues(directory.StudentKind.Name, "ok").Inc()
	h.emit(c.Request.Context(), queue.TypeRegistered, queue.Event{
		Kind:     res.Person.Kind,
		PersonID: res.Person.ID,
		Name:     res.Person.Name,
		Class:    res.Person.Class,
		Barcode:  res.Ticket.Barcode,
	})
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RegisterStaff(c *gin.Context) {
	if h.deps.Registration == nil {
		unavailable(c)
		return
	}
	var req registration.StaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON with initials, surname and className or designation")
		h.deps.Metrics.Registrations.WithLabelValues(directory.StaffKind.Name, TagValidation).Inc()
		return
	}

	res, err := h.deps.Registration.RegisterStaff(c.Request.Context(), req)
	if err != nil {
		tag := fail(c, err)
		h.deps.Metrics.Registrations.WithLabelValues(directory.StaffKind.Name, tag).Inc()
		return
	}
	h.deps.Metrics.Registrations.WithLabelValues(directory.StaffKind.Name, "ok").Inc()
	h.emit(c.Request.Context(), queue.TypeRegistered, queue.Event{
		Kind:     res.Person.Kind,
		PersonID: res.Person.ID,
		Name:     res.Person.Name,
		Class:    res.Person.Class,
		Barcode:  res.Ticket.Barcode,
	})
	c.JSON(http.StatusOK, res)
}

// ---------- Check-in ----------

type checkinRequest struct {
	Barcode string `json:"barcode"`
	Method  string `json:"method"`
}

func (h *Handler) CheckIn(c *gin.Context) {
	if h.deps.Checkin == nil {
		unavailable(c)
		return
	}
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON with a barcode")
		h.deps.Metrics.Redemptions.WithLabelValues("unknown", TagValidation).Inc()
		return
	}
	method, err := checkin.ParseMethod(req.Method)
	if err != nil {
		tag := fail(c, err)
		h.deps.Metrics.Redemptions.WithLabelValues("invalid", tag).Inc()
		return
	}

	operator := auth.Operator(c)
	out, err := h.deps.Checkin.Redeem(c.Request.Context(), req.Barcode, method, operator)
	if err != nil {
		tag := fail(c, err)
		h.deps.Metrics.Redemptions.WithLabelValues(string(method), tag).Inc()
		if tag == TagAlreadyUsed || tag == TagTicketNotFound {
			h.emit(c.Request.Context(), queue.TypeRejected, queue.Event{
				Barcode:   strings.TrimSpace(req.Barcode),
				Method:    string(method),
				ScannedBy: operator,
				Reason:    tag,
			})
		}
		return
	}

	h.deps.Metrics.Redemptions.WithLabelValues(string(method), "ok").Inc()
	h.emit(c.Request.Context(), queue.TypeCheckedIn, queue.Event{
		Kind:      out.Kind,
		PersonID:  out.Person.ID,
		Name:      out.Person.Name,
		Class:     out.Person.Class,
		Barcode:   out.Barcode,
		Method:    string(out.Method),
		ScannedBy: out.ScannedBy,
		At:        out.CheckedInAt,
	})
	c.JSON(http.StatusOK, out)
}

// ---------- Console ----------

func (h *Handler) ConsoleDelete(c *gin.Context) {
	if h.deps.Console == nil {
		unavailable(c)
		return
	}
	var req console.PurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON with type and id")
		return
	}

	kind := "invalid"
	if k, ok := directory.KindByName(strings.ToLower(strings.TrimSpace(req.Type))); ok {
		kind = k.Name
	}
	if err := h.deps.Console.Purge(c.Request.Context(), req); err != nil {
		tag := fail(c, err)
		h.deps.Metrics.Purges.WithLabelValues(kind, tag).Inc()
		return
	}
	h.deps.Metrics.Purges.WithLabelValues(kind, "ok").Inc()
	h.emit(c.Request.Context(), queue.TypePurged, queue.Event{Kind: kind, PersonID: strings.TrimSpace(req.ID)})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ---------- Operators ----------

type operatorRequest struct {
	Operator string `json:"operator"`
	Station  string `json:"station"`
}

// RegisterOperator issues a bearer token whose subject is recorded as
// scanned_by on check-ins made with it.
func (h *Handler) RegisterOperator(c *gin.Context) {
	op := h.deps.Operators
	if op.Secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(OperatorSecretHeader)), []byte(op.Secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": TagUnauthorized, "details": "missing or wrong " + OperatorSecretHeader})
		return
	}

	var req operatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON with an operator")
		return
	}
	operator := strings.TrimSpace(req.Operator)
	if err := ticket.Require(ticket.Field{Name: "operator", Value: operator}); err != nil {
		fail(c, err)
		return
	}

	tok, err := auth.Issue(operator, strings.TrimSpace(req.Station), op.Issuer, op.SigningKey, op.TTL)
	if err != nil {
		log.Printf("operator token issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": TagServer, "details": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"operator":     operator,
		"access_token": tok.Token,
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

// ---------- Stats ----------

func (h *Handler) Stats(c *gin.Context) {
	if h.deps.Tally == nil {
		unavailable(c)
		return
	}
	stats, err := h.deps.Tally.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"registered": gin.H{
			"student": stats.Get(queue.TypeRegistered, directory.StudentKind.Name),
			"staff":   stats.Get(queue.TypeRegistered, directory.StaffKind.Name),
		},
		"checked_in": gin.H{
			"student": stats.Get(queue.TypeCheckedIn, directory.StudentKind.Name),
			"staff":   stats.Get(queue.TypeCheckedIn, directory.StaffKind.Name),
		},
		"rejected": stats.Get(queue.TypeRejected, ""),
		"counters": stats,
	})
}

func (h *Handler) emit(ctx context.Context, typ string, ev queue.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := queue.Emit(ctx, h.deps.Events, typ, ev); err != nil {
		h.deps.Metrics.QueueFailures.Inc()
		log.Printf("queue publish %s failed: %v", typ, err)
	}
}

func unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   TagServiceUnavailable,
		"details": "directory store is not configured",
	})
}
