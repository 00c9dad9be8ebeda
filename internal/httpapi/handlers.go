package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/notify"
)

const (
	qrImageSize       = 256
	maxBodyBytes      = 64 << 10
	streamWriteWait   = 10 * time.Second
	streamPingPeriod  = 30 * time.Second
	streamReadTimeout = 2 * streamPingPeriod
)

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Ready  bool   `json:"ready"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st := s.manager.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		State:  st.State.String(),
		Ready:  st.Ready,
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// statusStream pushes a snapshot on every change until the peer goes away.
func (s *Server) statusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.manager.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

type qrResponse struct {
	QR string `json:"qr"`
}

func (s *Server) qr(w http.ResponseWriter, r *http.Request) {
	code := s.manager.QRCode()
	if code == "" {
		writeError(w, http.StatusNotFound, "no pending qr code", "")
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{QR: code})
}

func (s *Server) qrPNG(w http.ResponseWriter, r *http.Request) {
	code := s.manager.QRCode()
	if code == "" {
		writeError(w, http.StatusNotFound, "no pending qr code", "")
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		s.fail(w, "render qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Start(r.Context()); err != nil {
		s.fail(w, "start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.manager.Status())
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Stop(r.Context()); err != nil {
		s.fail(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ForceRestart(r.Context()); err != nil {
		s.fail(w, "restart", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.manager.Status())
}

type recoverResponse struct {
	Result connection.Recovery `json:"result"`
	Status connection.Status   `json:"status"`
}

func (s *Server) softRecover(w http.ResponseWriter, r *http.Request) {
	res, err := s.manager.SoftRecover(r.Context())
	if err != nil {
		s.fail(w, "recover", err)
		return
	}
	writeJSON(w, http.StatusOK, recoverResponse{Result: res, Status: s.manager.Status()})
}

type logoutResponse struct {
	Status  connection.Status `json:"status"`
	Warning string            `json:"warning,omitempty"`
}

// logout reports a failed server call as a warning: the client is destroyed
// either way.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var resp logoutResponse
	if err := s.manager.Logout(r.Context()); err != nil {
		s.logger.Warn("logout incomplete", "error", err)
		resp.Warning = err.Error()
	}
	resp.Status = s.manager.Status()
	writeJSON(w, http.StatusOK, resp)
}

// SendRequest is the body of POST /api/whatsapp/send.
type SendRequest struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Target == "" {
		req.Target = s.cfg.DefaultTarget
	}
	if req.Target == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "target and text are required", "")
		return
	}

	res, err := s.manager.SendMessage(r.Context(), req.Target, req.Text)
	if err != nil {
		s.fail(w, "send", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) attendanceEvent(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		writeError(w, http.StatusNotFound, "attendance notifications disabled", "")
		return
	}
	var ev notify.AttendanceEvent
	if err := decode(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid attendance event", err.Error())
		return
	}
	if err := s.notifier.Notify(ev); err != nil {
		s.fail(w, "notify", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
