package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/executor"
	"github.com/aroton/aromcp-workflow/internal/ids"
	"github.com/aroton/aromcp-workflow/internal/loader"
)

// Server listens for Requests on a Unix domain socket and dispatches them against a
// single long-lived *executor.Executor, the same process-wide instance map for the
// server's whole lifetime (spec §5 "Shared-resource policy").
type Server struct {
	socketPath string
	ex         *executor.Executor
	logger     *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
}

// NewServer builds a Server bound to ex, listening at socketPath.
func NewServer(socketPath string, ex *executor.Executor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		ex:         ex,
		logger:     logger.With("component", "rpc-server"),
	}
}

// Path returns the socket path this server listens on.
func (s *Server) Path() string { return s.socketPath }

// Start begins listening and blocks until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing existing socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	s.logger.Info("rpc server started", "socket", s.socketPath)

	go s.acceptLoop(ctx)
	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown stops accepting connections and waits for in-flight ones to finish.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Error("error closing listener", "error", err)
		}
	}
	s.wg.Wait()
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("error removing socket", "error", err)
	}
	s.logger.Info("rpc server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("read error", "error", err)
			}
			return
		}
		resp := s.handle(line)
		if err := writeJSONLine(conn, resp); err != nil {
			s.logger.Error("write error", "error", err)
			return
		}
	}
}

func (s *Server) handle(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Err: fmt.Sprintf("decoding request: %v", err)}
	}

	switch req.Method {
	case MethodStart:
		return s.handleStart(req)
	case MethodGetNextStep:
		return s.handleGetNextStep(req)
	case MethodUpdateState:
		return s.handleUpdateState(req)
	case MethodSubmitStepResult:
		return s.handleSubmitStepResult(req)
	case MethodSubmitStepResults:
		return s.handleSubmitStepResults(req)
	case MethodCancel:
		return s.handleCancel(req)
	default:
		return Response{Err: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) handleStart(req Request) Response {
	format := loader.DetectFormat(req.WorkflowPath)
	if req.WorkflowFormat == "yaml" || req.WorkflowFormat == "yml" {
		format = loader.FormatYAML
	} else if req.WorkflowFormat == "toml" {
		format = loader.FormatTOML
	}
	def, err := loader.LoadFileAs(req.WorkflowPath, format)
	if err != nil {
		return Response{Err: err.Error()}
	}
	result, err := s.ex.Start(def, req.Inputs)
	if err != nil {
		return Response{Err: err.Error()}
	}
	return Response{WorkflowID: result.WorkflowID, Status: string(result.Status), DurationMs: result.DurationMs}
}

// rejectMalformedWorkflowID fails fast on a workflow ID that matches neither the wf_
// grammar nor the <task>.item<N> sub-agent grammar (internal/ids), before it ever
// reaches the executor's instance map.
func rejectMalformedWorkflowID(workflowID string) *Response {
	if ids.ValidWorkflowID(workflowID) {
		return nil
	}
	if _, _, ok := ids.ParseSubAgentID(workflowID); ok {
		return nil
	}
	resp := errorResponse(werrors.NewUnknownWorkflow(workflowID))
	return &resp
}

func (s *Server) handleGetNextStep(req Request) Response {
	if resp := rejectMalformedWorkflowID(req.WorkflowID); resp != nil {
		return *resp
	}
	result, err := s.ex.GetNextStep(req.WorkflowID)
	if err != nil {
		return errorResponse(err)
	}
	return Response{Steps: toWireSteps(result.Steps), Error: toWireError(result.Error), DurationMs: result.DurationMs}
}

func (s *Server) handleUpdateState(req Request) Response {
	if resp := rejectMalformedWorkflowID(req.WorkflowID); resp != nil {
		return *resp
	}
	result, err := s.ex.UpdateState(req.WorkflowID, req.Updates)
	if err != nil {
		return errorResponse(err)
	}
	return Response{DurationMs: result.DurationMs}
}

func (s *Server) handleSubmitStepResult(req Request) Response {
	if resp := rejectMalformedWorkflowID(req.WorkflowID); resp != nil {
		return *resp
	}
	result, err := s.ex.SubmitStepResult(req.WorkflowID, req.StepID, req.Result)
	if err != nil {
		return errorResponse(err)
	}
	return Response{DurationMs: result.DurationMs}
}

func (s *Server) handleSubmitStepResults(req Request) Response {
	if resp := rejectMalformedWorkflowID(req.WorkflowID); resp != nil {
		return *resp
	}
	entries := make([]executor.StepResult, len(req.Results))
	for i, e := range req.Results {
		entries[i] = executor.StepResult{StepID: e.StepID, Result: e.Result}
	}
	result, err := s.ex.SubmitStepResults(req.WorkflowID, entries)
	if err != nil {
		return errorResponse(err)
	}
	return Response{DurationMs: result.DurationMs}
}

func (s *Server) handleCancel(req Request) Response {
	if resp := rejectMalformedWorkflowID(req.WorkflowID); resp != nil {
		return *resp
	}
	result, err := s.ex.Cancel(req.WorkflowID)
	if err != nil {
		return errorResponse(err)
	}
	return Response{DurationMs: result.DurationMs}
}

// errorResponse distinguishes an engine *werrors.Error (carried in the error envelope,
// the same way workflow_get_next_step does) from any other failure (transport-level).
func errorResponse(err error) Response {
	var werr *werrors.Error
	if errors.As(err, &werr) {
		return Response{Error: toWireError(werr)}
	}
	return Response{Err: err.Error()}
}

func toWireSteps(steps []executor.StepEnvelope) []StepEnvelope {
	out := make([]StepEnvelope, len(steps))
	for i, s := range steps {
		out[i] = StepEnvelope{ID: s.ID, Type: s.Type, Definition: s.Definition}
	}
	return out
}

func toWireError(e *werrors.Error) *ErrorPayload {
	if e == nil {
		return nil
	}
	return &ErrorPayload{Code: string(e.Code), Message: e.Message, StepID: e.StepID, Details: e.Details}
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
