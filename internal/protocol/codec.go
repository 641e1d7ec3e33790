package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type wireRequest struct {
	Action   Action `json:"action"`
	Selector string `json:"selector,omitempty"`
}

type wireResponse struct {
	Action  Action          `json:"action"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EncodeRequest marshals req as {"action": ..., "selector": ...}.
func EncodeRequest(req Request) ([]byte, error) {
	w := wireRequest{Action: req.Action()}
	if s, ok := req.(ScrapeSite); ok {
		w.Selector = s.Selector
	}
	return json.Marshal(w)
}

// DecodeRequest parses a wire request into its variant.
func DecodeRequest(data []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return ParseAction(string(w.Action), w.Selector)
}

// EncodeResponse marshals resp as {"action", "results"} or {"action", "error"}.
func EncodeResponse(resp Response) ([]byte, error) {
	w := wireResponse{Action: resp.Action, Error: resp.Err}
	if resp.Err == "" && resp.Result != nil {
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", resp.Action, err)
		}
		w.Results = raw
	}
	return json.Marshal(w)
}

// DecodeResponse parses a wire response, choosing the payload type from the
// action.
func DecodeResponse(data []byte) (Response, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	resp := Response{Action: w.Action, Err: w.Error}
	if w.Error != "" || len(w.Results) == 0 {
		return resp, nil
	}

	req, err := ParseAction(string(w.Action), "")
	if err != nil {
		return Response{}, err
	}
	switch req.(type) {
	case ScrapeSite:
		var p ScrapeResult
		err = json.Unmarshal(w.Results, &p)
		resp.Result = p
	case CheckSchemas:
		var p SchemaReport
		err = json.Unmarshal(w.Results, &p)
		resp.Result = p
	case GrabPageContent:
		var p PageContent
		err = json.Unmarshal(w.Results, &p)
		resp.Result = p
	}
	if err != nil {
		return Response{}, fmt.Errorf("decode %s results: %w", w.Action, err)
	}
	return resp, nil
}
