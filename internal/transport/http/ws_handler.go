package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"vertex-exam-service/internal/app"
	"vertex-exam-service/internal/domain"
)

// WSHandler upgrades HTTP requests to websockets and drives one quiz session
// engine per connection.
type WSHandler struct {
	results    app.ResultStore
	resume     app.ResumeStore
	engineOpts []app.Option
	upgrader   websocket.Upgrader
}

func NewWSHandler(results app.ResultStore, resume app.ResumeStore, engineOpts ...app.Option) *WSHandler {
	return &WSHandler{
		results:    results,
		resume:     resume,
		engineOpts: engineOpts,
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
	QuestionID string `json:"questionId"`
	Choice     string `json:"choice"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// questionView is the client-safe projection of a question: no correct
// choice and no mark values leave the server before submission.
type questionView struct {
	ID       string `json:"id"`
	SerialNo int    `json:"serialNo"`
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl,omitempty"`
	OptionA  string `json:"optionA"`
	OptionB  string `json:"optionB"`
	OptionC  string `json:"optionC"`
	OptionD  string `json:"optionD"`
}

type quizPayload struct {
	Quiz      domain.QuizDefinition `json:"quiz"`
	Questions []questionView        `json:"questions"`
	Remaining int                   `json:"remaining"`
}

type tickPayload struct {
	Remaining int `json:"remaining"`
}

type warningPayload struct {
	Threshold int    `json:"threshold"`
	Message   string `json:"message"`
}

type submittedPayload struct {
	Summary   domain.ScoreSummary `json:"summary"`
	ClosingIn int                 `json:"closingIn"`
}

type closedPayload struct {
	Refresh bool `json:"refresh"`
}

// ServeWS runs a quiz session over a websocket. Inbound message types are
// "answer", "submit", and "dismiss"; everything else is rejected.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	studentID := r.URL.Query().Get("studentId")
	if quizID == "" || studentID == "" {
		http.Error(w, "missing quizId or studentId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	engine := app.NewSessionEngine(h.results, h.resume, studentID, quizID, h.engineOpts...)
	defer engine.Stop()

	send := make(chan any, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	if err := engine.Start(r.Context()); err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		close(send)
		<-writerDone
		return
	}

	if phase := engine.Phase(); phase == app.PhaseRunning || phase == app.PhaseSubmitted {
		send <- outboundMessage[quizPayload]{Type: "quiz", Payload: quizPayload{
			Quiz:      engine.Quiz(),
			Questions: viewQuestions(engine.Questions()),
			Remaining: engine.Remaining(),
		}}
	}

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev := <-engine.Events():
				msg, terminal := translateEvent(ev)
				if msg != nil {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					}
				}
				if terminal {
					// Unblock the read loop so the connection tears down.
					_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
					return
				}
			case <-engine.Done():
				// Forward anything still queued (the closed event races the
				// done signal) before tearing down.
			drain:
				for {
					select {
					case ev := <-engine.Events():
						if msg, _ := translateEvent(ev); msg != nil {
							select {
							case send <- msg:
							case <-closeSignals:
								return
							}
						}
					default:
						break drain
					}
				}
				_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
				return
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			if err := engine.SelectAnswer(payload.QuestionID, domain.Choice(payload.Choice)); err != nil {
				send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[answerPayload]{Type: "answerAck", Payload: payload}
		case "submit":
			if err := engine.Submit(); err != nil {
				send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "dismiss":
			if err := engine.Dismiss(r.Context()); err != nil {
				send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		default:
			send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func translateEvent(ev app.Event) (msg any, terminal bool) {
	switch ev.Kind {
	case app.EventStarted:
		return outboundMessage[tickPayload]{Type: "started", Payload: tickPayload{Remaining: ev.Remaining}}, false
	case app.EventTick:
		return outboundMessage[tickPayload]{Type: "tick", Payload: tickPayload{Remaining: ev.Remaining}}, false
	case app.EventWarning:
		return outboundMessage[warningPayload]{Type: "warning", Payload: warningPayload{
			Threshold: ev.Threshold,
			Message:   warningMessage(ev.Threshold),
		}}, false
	case app.EventSubmitted:
		return outboundMessage[submittedPayload]{Type: "submitted", Payload: submittedPayload{
			Summary:   ev.Summary,
			ClosingIn: ev.Remaining,
		}}, false
	case app.EventClosing:
		return outboundMessage[tickPayload]{Type: "closing", Payload: tickPayload{Remaining: ev.Remaining}}, false
	case app.EventAlreadyAttended:
		return outboundMessage[submittedPayload]{Type: "alreadyAttended", Payload: submittedPayload{Summary: ev.Summary}}, false
	case app.EventClosed:
		return outboundMessage[closedPayload]{Type: "closed", Payload: closedPayload{Refresh: ev.Refresh}}, true
	case app.EventLoadFailed:
		return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: ev.Err.Error()}}, true
	}
	return nil, false
}

func warningMessage(threshold int) string {
	switch threshold {
	case 600:
		return "10 minutes remaining"
	case 300:
		return "5 minutes remaining"
	}
	return ""
}

func viewQuestions(questions []domain.Question) []questionView {
	views := make([]questionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, questionView{
			ID:       q.ID,
			SerialNo: q.SerialNo,
			Prompt:   q.Prompt,
			ImageURL: q.ImageURL,
			OptionA:  q.OptionA,
			OptionB:  q.OptionB,
			OptionC:  q.OptionC,
			OptionD:  q.OptionD,
		})
	}
	return views
}
