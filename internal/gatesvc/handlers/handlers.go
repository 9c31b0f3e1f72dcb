package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avvvet/gatepass-services/internal/gatesvc/feed"
	"github.com/avvvet/gatepass-services/internal/gatesvc/service"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth

	cards     *service.CardService
	checkin   *service.CheckinService
	checkout  *service.CheckoutService
	query     *service.QueryService
	reconcile *service.ReconcileService
	hub       *feed.Hub

	initPassword string
	poolSize     int
	port         string
}

type Options struct {
	Cards        *service.CardService
	Checkin      *service.CheckinService
	Checkout     *service.CheckoutService
	Query        *service.QueryService
	Reconcile    *service.ReconcileService
	Hub          *feed.Hub
	InitPassword string
	PoolSize     int
	Port         string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		cards:        opts.Cards,
		checkin:      opts.Checkin,
		checkout:     opts.Checkout,
		query:        opts.Query,
		reconcile:    opts.Reconcile,
		hub:          opts.Hub,
		initPassword: opts.InitPassword,
		poolSize:     opts.PoolSize,
		port:         opts.Port,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) ok(w http.ResponseWriter, message string, data interface{}) {
	h.CreateResponse(w, Response{Message: message, Code: http.StatusOK, Data: data})
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	h.CreateResponse(w, Response{Message: message, Code: http.StatusBadRequest, Error: string(service.CodeMissingFields)})
}

var statusByCode = map[service.Code]int{
	service.CodeMissingFields:        http.StatusBadRequest,
	service.CodeInvalidTimestamp:     http.StatusBadRequest,
	service.CodeOngoingSessionExists: http.StatusConflict,
	service.CodeCardsUnavailable:     http.StatusConflict,
	service.CodeInvalidPattern:       http.StatusBadRequest,
	service.CodeNotFound:             http.StatusNotFound,
	service.CodePersistenceFailure:   http.StatusServiceUnavailable,
	service.CodeInternal:             http.StatusInternalServerError,
}

// fail writes err in the response envelope with the status its code maps to.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Code: service.CodeInternal, Message: "internal error", Err: err}
	}

	status, ok := statusByCode[se.Code]
	if !ok {
		status = http.StatusInternalServerError
	}

	var data interface{}
	switch se.Code {
	case service.CodeCardsUnavailable:
		data = map[string]interface{}{"unavailable_ids": se.CardIDs}
	case service.CodeMissingFields:
		data = map[string]interface{}{"fields": se.Fields}
	}

	message := se.Message
	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"path": r.URL.Path,
			"code": se.Code,
		}).Errorf("request failed: %v", err)
		message = "Internal server error"
	}

	h.CreateResponse(w, Response{
		Message: message,
		Code:    status,
		Data:    data,
		Error:   string(se.Code),
	})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "gate service is running at port "+h.port, nil)
}
