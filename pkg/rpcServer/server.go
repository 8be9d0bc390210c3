package rpcServer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/provider"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

/*
Server exposes a provider over JSON-RPC 2.0 so wallets and tooling that only speak
HTTP can use custodial signing.

  POST /:
    - A single request object or a batch array
    - Each request is handed to provider.Request with the HTTP request's context
    - Provider errors are rendered with their code, message and data
    - Requests without an id are notifications and get no response entry

  GET /healthz:
    - Returns 200 with the resolved chain id
*/

const (
	jsonRpcVersion = "2.0"

	maxRequestBodyBytes = 5 * 1024 * 1024
	maxBatchSize        = 100
	batchConcurrency    = 8

	codeParseError     = -32700
	codeInvalidRequest = -32600
)

type Config struct {
	Port int
	// ReadHeaderTimeout defaults to 10s.
	ReadHeaderTimeout time.Duration
}

type jsonRpcRequest struct {
	JsonRpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *jsonRpcRequest) isNotification() bool {
	return len(r.Id) == 0
}

type jsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type jsonRpcResponse struct {
	JsonRpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRpcError   `json:"error,omitempty"`
}

// Server handles HTTP requests for a provider
type Server struct {
	provider   provider.IProvider
	chainId    uint64
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a new server instance
func NewServer(p provider.IProvider, chainId uint64, cfg *Config, logger *zap.Logger) *Server {
	s := &Server{
		provider: p,
		chainId:  chainId,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRpc)
	mux.HandleFunc("/healthz", s.handleHealth)

	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 10 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting JSON-RPC server", "port", s.httpServer.Addr, "chainId", s.chainId)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("JSON-RPC server error", "error", err)
		}
	}()
	return nil
}

// Stop waits for in-flight requests until ctx is done, then closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "chainId": s.chainId})
}

func (s *Server) handleRpc(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, codeInvalidRequest, fmt.Sprintf("failed to read request: %v", err)))
		return
	}

	batch, isBatch, err := decodeRequests(body)
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, err.Error()))
		return
	}
	if isBatch && len(batch) == 0 {
		writeJSON(w, http.StatusOK, errorResponse(nil, codeInvalidRequest, "empty batch"))
		return
	}
	if len(batch) > maxBatchSize {
		writeJSON(w, http.StatusOK, errorResponse(nil, codeInvalidRequest, fmt.Sprintf("batch exceeds %d requests", maxBatchSize)))
		return
	}

	responses := s.handleBatch(r.Context(), batch)

	if !isBatch {
		if responses[0] == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, responses[0])
		return
	}

	out := make([]*jsonRpcResponse, 0, len(responses))
	for _, res := range responses {
		if res != nil {
			out = append(out, res)
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBatch runs the requests concurrently. Responses keep the request order; notifications leave a nil slot.
func (s *Server) handleBatch(ctx context.Context, batch []json.RawMessage) []*jsonRpcResponse {
	responses := make([]*jsonRpcResponse, len(batch))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, raw := range batch {
		g.Go(func() error {
			responses[i] = s.handleOne(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

func (s *Server) handleOne(ctx context.Context, raw json.RawMessage) *jsonRpcResponse {
	var req jsonRpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, codeInvalidRequest, fmt.Sprintf("invalid request: %v", err))
	}
	if req.JsonRpc != jsonRpcVersion || req.Method == "" {
		return errorResponse(req.Id, codeInvalidRequest, "invalid request")
	}

	result, err := s.provider.Request(ctx, types.RequestArguments{Method: req.Method, Params: req.Params})
	if req.isNotification() {
		return nil
	}
	if err != nil {
		return &jsonRpcResponse{JsonRpc: jsonRpcVersion, Id: req.Id, Error: toJsonRpcError(err)}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to encode result", "method", req.Method, "error", err)
		return errorResponse(req.Id, providerErrors.CodeInternal, "failed to encode result")
	}
	return &jsonRpcResponse{JsonRpc: jsonRpcVersion, Id: req.Id, Result: encoded}
}

// toJsonRpcError keeps provider error codes and forwards node errors as reported.
func toJsonRpcError(err error) *jsonRpcError {
	if pErr, ok := providerErrors.AsProviderRpcError(err); ok {
		return &jsonRpcError{Code: pErr.Code, Message: pErr.Message, Data: pErr.Data}
	}
	out := &jsonRpcError{Code: providerErrors.CodeInternal, Message: err.Error()}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		out.Code = rpcErr.ErrorCode()
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		out.Data = dataErr.ErrorData()
	}
	return out
}

func decodeRequests(body []byte) ([]json.RawMessage, bool, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, fmt.Errorf("parse error: %w", err)
	}
	if len(raw) > 0 && raw[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, true, fmt.Errorf("parse error: %w", err)
		}
		return batch, true, nil
	}
	return []json.RawMessage{raw}, false, nil
}

func errorResponse(id json.RawMessage, code int, message string) *jsonRpcResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &jsonRpcResponse{
		JsonRpc: jsonRpcVersion,
		Id:      id,
		Error:   &jsonRpcError{Code: code, Message: message},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
