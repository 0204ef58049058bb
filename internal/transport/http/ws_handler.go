package http

import (
	"encoding/json"
	"net/http"

	"examprep-service/internal/app"
	"examprep-service/internal/domain"
	"examprep-service/internal/logger"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.AttemptService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, log *logger.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string        `json:"questionId"`
	Answer     domain.Answer `json:"answer"`
}

type answerResult struct {
	QuestionID string `json:"questionId"`
	domain.SubmitResult
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func errorMessage(err error) outboundMessage[any] {
	_, code := statusFor(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Code: code}}
}

// ServeWS upgrades to a websocket bound to one attempt. Clients send answer and finish
// messages and receive results plus progress updates for the attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attemptId")
	if attemptID == "" {
		http.Error(w, "missing attemptId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context(), attemptID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "attempt_id", attemptID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "progress", Payload: update}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// a dead writer must not block the read loop
	enqueue := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload", Code: "invalid_request"}})
				continue
			}
			res, err := h.service.SubmitAnswer(r.Context(), attemptID, payload.QuestionID, payload.Answer)
			if err != nil {
				enqueue(errorMessage(err))
				continue
			}
			enqueue(outboundMessage[any]{Type: "answerResult", Payload: answerResult{QuestionID: payload.QuestionID, SubmitResult: res}})
		case "finish":
			summary, err := h.service.FinishAttempt(r.Context(), attemptID)
			if err != nil {
				enqueue(errorMessage(err))
				continue
			}
			enqueue(outboundMessage[any]{Type: "finished", Payload: summary})
		default:
			enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type", Code: "invalid_request"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
