package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kaptinlin/jsonschema"
	"github.com/oklog/ulid/v2"

	"toolseek/internal/domain"
	"toolseek/internal/infra/tracer"
)

// maxRequestBody bounds the chat completions request size.
const maxRequestBody = 1 << 20 // 1 MiB

// requestSchemaJSON validates the chat completions body before anything is
// sent upstream. Unknown fields pass through; malformed known fields do not.
const requestSchemaJSON = `{
	"type": "object",
	"required": ["messages"],
	"properties": {
		"model": {"type": "string"},
		"messages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role": {"type": "string", "enum": ["system", "user", "assistant"]},
					"content": {"type": "string"}
				}
			}
		},
		"stream": {"type": "boolean"},
		"max_tokens": {"type": "integer", "minimum": 1},
		"temperature": {"type": "number", "minimum": 0, "maximum": 2}
	}
}`

var requestSchema = func() *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(requestSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("gateway: compile request schema: %v", err))
	}
	return schema
}()

// Wire types for the OpenAI-compatible response surface. reasoning_content
// carries the relayed chain-of-thought, matching the upstream's field name.
type chunkDelta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type completionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type responseMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type responseChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type completionResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []responseChoice `json:"choices"`
	Usage   domain.Usage     `json:"usage"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := tracer.StartSpan(r.Context(), "gateway.chat_completions")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err))
		return
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: malformed JSON", domain.ErrInvalidInput))
		return
	}
	if result := requestSchema.Validate(raw); !result.IsValid() {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s", domain.ErrInvalidInput, result.Error()))
		return
	}

	var req domain.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}

	if req.Stream {
		s.streamTurn(ctx, w, req)
		return
	}
	s.completeChat(ctx, w, req)
}

// completeChat proxies a non-streaming request straight to the upstream.
// The tool loop only applies to streamed reasoning.
func (s *Server) completeChat(ctx context.Context, w http.ResponseWriter, req domain.ChatRequest) {
	resp, err := s.deps.LLM.Chat(ctx, req)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	out := completionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.CreatedAt.Unix(),
		Model:   resp.Model,
		Choices: []responseChoice{{
			Message: responseMessage{
				Role:             domain.RoleAssistant,
				Content:          resp.Message.Content,
				ReasoningContent: resp.Reasoning,
			},
			FinishReason: "stop",
		}},
		Usage: resp.Usage,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// streamTurn runs the tool loop and relays its deltas as SSE chunks.
func (s *Server) streamTurn(ctx context.Context, w http.ResponseWriter, req domain.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id := "chatcmpl-" + ulid.Make().String()
	created := time.Now().Unix()
	model := req.Model

	writeChunk := func(delta chunkDelta, finish *string) {
		chunk := completionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
		}
		writeSSE(w, chunk)
		flusher.Flush()
	}

	writeChunk(chunkDelta{Role: domain.RoleAssistant}, nil)

	for delta := range s.deps.Turns.RunTurn(ctx, req) {
		if delta.Err != nil {
			s.deps.Logger.Error("turn stream failed", "error", delta.Err)
			writeSSE(w, errorBody{Error: errorDetail{
				Message: delta.Err.Error(),
				Code:    string(domain.ErrorCodeOf(delta.Err)),
			}})
			flusher.Flush()
			break
		}
		if delta.Done {
			finish := "stop"
			writeChunk(chunkDelta{}, &finish)
			break
		}
		writeChunk(chunkDelta{
			Content:          delta.Content,
			ReasoningContent: delta.Reasoning,
		}, nil)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeSSE frames one JSON payload as an SSE data event.
func writeSSE(w io.Writer, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.deps.Logger.Warn("request rejected", "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Message: err.Error(),
		Code:    string(domain.ErrorCodeOf(err)),
	}})
}

// statusForError maps domain sentinels to HTTP statuses for non-streaming
// responses. Streams report errors in-band instead.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrContextOverflow):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadGateway
	}
}
