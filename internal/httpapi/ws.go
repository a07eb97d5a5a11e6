package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avatarstudio/internal/pipio"
	"github.com/ent0n29/avatarstudio/internal/protocol"
	"github.com/ent0n29/avatarstudio/internal/session"
)

// handleSessionWS streams the session's job events. Clients may ask for a
// poll, a refresh of all pending jobs, or a fresh snapshot; the resulting
// job changes arrive as ordinary job events.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := sess.Jobs.Subscribe()
	defer unsubscribe()

	outbound := make(chan any, 64)
	outbound <- snapshotOf(sess)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing the connection unblocks the read loop below.
		defer conn.Close()
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.WriteJSON(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "session_ended"})
					cancel()
					return
				}
				msg = protocol.FromJobEvent(sess.ID, ev)
			case m := <-outbound:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := protocol.TypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := protocol.TypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		_ = s.sessions.Touch(sess.ID)
		s.handleControl(ctx, sess, control, outbound)
	}

	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

func (s *Server) handleControl(ctx context.Context, sess *session.Session, control protocol.ClientControl, outbound chan<- any) {
	switch control.Action {
	case protocol.ActionPoll:
		if _, err := sess.Poll(ctx, control.JobID); err != nil {
			kind := pipio.KindOf(err)
			var pe *pipio.Error
			retryable := errors.As(err, &pe) && pe.Retryable
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      string(kind),
				Source:    "upstream",
				Retryable: retryable,
				Detail:    err.Error(),
			})
		}
	case protocol.ActionRefreshAll:
		report, _ := sess.RefreshAll(ctx)
		s.enqueue(outbound, protocol.RefreshResult{
			Type:      protocol.TypeRefreshResult,
			SessionID: sess.ID,
			Report:    report,
		})
	case protocol.ActionSnapshot:
		s.enqueue(outbound, snapshotOf(sess))
	}
}

// enqueue keeps websocket writes on the writer goroutine and drops the
// message if the queue is saturated.
func (s *Server) enqueue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		if t, ok := protocol.TypeOf(msg); ok {
			s.metrics.ObserveWSMessage("dropped", string(t))
		}
	}
}

func snapshotOf(sess *session.Session) protocol.JobSnapshot {
	return protocol.JobSnapshot{
		Type:      protocol.TypeJobSnapshot,
		SessionID: sess.ID,
		Jobs:      sess.Jobs.List(),
		Counts:    sess.Jobs.Counts(),
	}
}
