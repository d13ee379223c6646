package host

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/tysttext/host/internal/daemon"
	"github.com/tysttext/host/internal/supervisor"
	"github.com/tysttext/host/internal/version"
	"github.com/tysttext/host/internal/worker"
)

// Handle implements daemon.Handler.
func (h *Host) Handle(ctx context.Context, req *daemon.Request) *daemon.Response {
	slog.Debug("host handling request", "type", req.Type)
	switch req.Type {
	case daemon.MsgPing:
		return h.handlePing(req)
	case daemon.MsgShutdown:
		return h.handleShutdown(req)

	case daemon.MsgBackendStart:
		return h.handleBackendStart(req)
	case daemon.MsgBackendStop:
		return h.handleBackendStop(req)
	case daemon.MsgBackendURL:
		return daemon.SuccessResponse(req, daemon.URLResponse{URL: h.hooks.GetBackendURL()})
	case daemon.MsgBackendStatus:
		return h.handleBackendStatus(req)
	case daemon.MsgBackendLogs:
		return h.handleBackendLogs(req)

	case daemon.MsgAttach:
		return h.handleAttach(ctx, req)
	case daemon.MsgDetach:
		return h.handleDetach(ctx, req)

	default:
		return daemon.ErrorResponse(req, daemon.UnknownTypeError(req.Type))
	}
}

func (h *Host) handlePing(req *daemon.Request) *daemon.Response {
	return daemon.SuccessResponse(req, daemon.PingResponse{
		Version:   version.Version,
		PID:       os.Getpid(),
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt: h.startedAt,
	})
}

func (h *Host) handleShutdown(req *daemon.Request) *daemon.Response {
	h.Shutdown()
	return daemon.SuccessResponse(req, nil)
}

func (h *Host) handleBackendStart(req *daemon.Request) *daemon.Response {
	msg, err := h.hooks.StartBackend()
	if err != nil {
		return daemon.ErrorResponse(req, err)
	}
	return daemon.SuccessResponse(req, daemon.MessageResponse{Message: msg})
}

func (h *Host) handleBackendStop(req *daemon.Request) *daemon.Response {
	msg, err := h.hooks.StopBackend()
	if err != nil {
		return daemon.ErrorResponse(req, err)
	}
	return daemon.SuccessResponse(req, daemon.MessageResponse{Message: msg})
}

func (h *Host) handleBackendStatus(req *daemon.Request) *daemon.Response {
	snap, err := h.sup.Snapshot()
	if err != nil {
		return daemon.ErrorResponse(req, err)
	}

	backend := daemon.BackendStatus{
		Running:    snap.Running,
		Starting:   snap.Starting,
		RunID:      snap.RunID,
		PID:        snap.PID,
		Address:    snap.Address,
		LastExit:   exitInfo(snap.LastExit),
		Executable: h.resolver.Executable(),
	}
	if !snap.StartedAt.IsZero() {
		started := snap.StartedAt
		backend.StartedAt = &started
	}

	return daemon.SuccessResponse(req, daemon.StatusResponse{
		Host: daemon.HostStatus{
			PID:       os.Getpid(),
			Version:   version.Version,
			StartedAt: h.startedAt,
			Headless:  h.headless,
		},
		Backend: backend,
	})
}

func (h *Host) handleBackendLogs(req *daemon.Request) *daemon.Response {
	logsReq, err := daemon.DecodePayload[daemon.LogsRequest](req.Payload)
	if err != nil {
		return daemon.ErrorResponse(req, err)
	}

	lines := h.sup.Output(logsReq.Lines)
	resp := daemon.LogsResponse{Lines: make([]daemon.LogLine, 0, len(lines))}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, logLine(l))
	}
	return daemon.SuccessResponse(req, resp)
}

func (h *Host) handleAttach(ctx context.Context, req *daemon.Request) *daemon.Response {
	conn := daemon.ConnFromContext(ctx)
	srv := daemon.ServerFromContext(ctx)
	if conn == nil || srv == nil {
		return daemon.ErrorResponse(req, daemon.NewServerError(req.Type, "internal error: missing connection context"))
	}
	srv.Attach(conn)
	return daemon.SuccessResponse(req, nil)
}

func (h *Host) handleDetach(ctx context.Context, req *daemon.Request) *daemon.Response {
	conn := daemon.ConnFromContext(ctx)
	srv := daemon.ServerFromContext(ctx)
	if conn == nil || srv == nil {
		return daemon.ErrorResponse(req, daemon.NewServerError(req.Type, "internal error: missing connection context"))
	}
	srv.Detach(conn)
	return daemon.SuccessResponse(req, nil)
}

// broadcast pushes supervisor events to attached clients.
func (h *Host) broadcast(e supervisor.Event) {
	if ev := streamEvent(e); ev != nil {
		h.server.Broadcast(ev)
	}
}

func streamEvent(e supervisor.Event) *daemon.StreamEvent {
	ev := &daemon.StreamEvent{
		Type:  string(e.Kind),
		RunID: e.RunID,
		Time:  e.At,
	}
	switch w := e.Worker.(type) {
	case worker.StdoutLine:
		ev.Line = &daemon.LogLine{Stream: string(worker.Stdout), Text: string(w.Line), At: e.At, RunID: e.RunID}
	case worker.StderrLine:
		ev.Line = &daemon.LogLine{Stream: string(worker.Stderr), Text: string(w.Line), At: e.At, RunID: e.RunID}
	case worker.ErrorEvent:
		ev.Line = &daemon.LogLine{Stream: string(worker.Stderr), Text: w.Message, At: e.At, RunID: e.RunID}
	case worker.Terminated:
		if e.Kind == supervisor.EventOutput {
			// The exit is reported by the EventExited that follows.
			return nil
		}
		ev.Exit = exitInfo(&w)
	}
	return ev
}

func logLine(l worker.Line) daemon.LogLine {
	return daemon.LogLine{
		Stream: string(l.Stream),
		Text:   l.Text,
		At:     l.At,
		RunID:  l.RunID,
	}
}

func exitInfo(t *worker.Terminated) *daemon.ExitInfo {
	if t == nil {
		return nil
	}
	return &daemon.ExitInfo{Code: t.Code, Signal: t.Signal}
}
