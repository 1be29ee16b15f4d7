package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// requestLine is the provider wire format for one batch request.
type requestLine struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     requestBody `json:"body"`
}

type requestBody struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Temperature    *float64  `json:"temperature,omitempty"`
	MaxTokens      *int      `json:"max_tokens,omitempty"`
	ResponseFormat any       `json:"response_format,omitempty"`
}

// responseLine is the provider wire format for one batch output line.
type responseLine struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteRequests serializes the requests as a JSONL batch input file, one
// provider request per line, with the metadata encoded into each custom_id.
func WriteRequests(w io.Writer, requests []Request, endpoint string) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for i, req := range requests {
		customID, err := EncodeCustomID(req.Metadata)
		if err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
		line := requestLine{
			CustomID: customID,
			Method:   "POST",
			URL:      endpoint,
			Body: requestBody{
				Model:          req.Config.Model,
				Messages:       req.Messages,
				Temperature:    req.Config.Temperature,
				MaxTokens:      req.Config.MaxTokens,
				ResponseFormat: req.Config.ResponseFormat,
			},
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode request %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ParseOutputLine turns one line of a batch output file into a Response.
// Provider-side errors and non-200 statuses do not fail the parse; they are
// reported through Response.ErrMessage so the caller can account for the
// request without aborting the rest of the file.
func ParseOutputLine(line []byte) (Response, error) {
	var parsed responseLine
	if err := json.Unmarshal(line, &parsed); err != nil {
		return Response{}, fmt.Errorf("failed to decode batch output line: %w", err)
	}

	meta, err := DecodeCustomID(parsed.CustomID)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		Metadata: meta,
		Raw:      append(json.RawMessage(nil), line...),
	}

	switch {
	case parsed.Error != nil:
		resp.ErrMessage = parsed.Error.Message
		if resp.ErrMessage == "" {
			resp.ErrMessage = "provider reported an unspecified error"
		}
	case parsed.Response == nil:
		resp.ErrMessage = "output line has neither response nor error payload"
	case parsed.Response.StatusCode != 200:
		detail := ""
		if parsed.Response.Body.Error != nil {
			detail = parsed.Response.Body.Error.Message
		}
		resp.ErrMessage = fmt.Sprintf("non-200 status (%d): %s", parsed.Response.StatusCode, detail)
	case len(parsed.Response.Body.Choices) == 0:
		resp.ErrMessage = "response body has no choices"
	default:
		resp.Content = parsed.Response.Body.Choices[0].Message.Content
	}

	return resp, nil
}

// ParseOutputFile parses a whole batch output file, skipping blank lines.
// Malformed lines are counted rather than failing the file.
func ParseOutputFile(content []byte) (responses []Response, malformed int) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp, err := ParseOutputLine([]byte(line))
		if err != nil {
			malformed++
			continue
		}
		responses = append(responses, resp)
	}
	return responses, malformed
}
