package http

import (
	"encoding/json"
	"net/http"

	"elearning-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler lets a signed-in student submit quizzes over a websocket.
type WSHandler struct {
	quizzes  QuizUseCases
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(quizzes QuizUseCases, allowedOrigins []string, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		quizzes: quizzes,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	QuizID  int64                     `json:"quiz_id"`
	Answers []domain.AnswerSubmission `json:"answers"`
}

type resultPayload struct {
	QuizID int64 `json:"quiz_id"`
	domain.SubmitResult
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ServeWS upgrades the request and scores each inbound submit message.
func (h *WSHandler) ServeWS(c *gin.Context) {
	actor := actorFrom(c)
	ctx := c.Request.Context()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	sendError := func(status int, msg string) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg, Status: status}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuizID <= 0 {
				sendError(http.StatusBadRequest, "invalid submit payload")
				continue
			}
			result, err := h.quizzes.Submit(ctx, actor, payload.QuizID, payload.Answers)
			if err != nil {
				status := statusFor(err)
				sendError(status, errorMessage(h.log, err, status))
				continue
			}
			send <- outboundMessage[any]{Type: "result", Payload: resultPayload{QuizID: payload.QuizID, SubmitResult: result}}
		default:
			sendError(http.StatusBadRequest, "unsupported message type")
		}
	}

	close(send)
	<-writerDone
}
