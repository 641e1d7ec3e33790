package protocol

import (
	"errors"
	"testing"
	"time"

	"chathud/internal/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		action string
		want   Request
	}{
		{"check-schemas", CheckSchemas{}},
		{"grab-page-content", GrabPageContent{}},
		{"scrape-chatgpt", ScrapeSite{Site: "chatgpt"}},
		{"Scrape-LMArena", ScrapeSite{Site: "lmarena"}},
		{"checkSchemas", CheckSchemas{}},
		{"grabPageContent", GrabPageContent{}},
		{"scrapeChatGPT", ScrapeSite{Site: "chatgpt"}},
		{"scrapeLMArena", ScrapeSite{Site: "lmarena"}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := ParseAction(tt.action, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "scrape-", "scrape", "delete-all"} {
		_, err := ParseAction(bad, "")
		assert.Truef(t, errors.Is(err, ErrUnknownAction), "action %q: got %v", bad, err)
	}
}

func TestActionNames(t *testing.T) {
	assert.Equal(t, Action("scrape-claude"), ScrapeSite{Site: "Claude"}.Action())
	assert.Equal(t, ActionCheckSchemas, CheckSchemas{}.Action())
	assert.Equal(t, ActionGrabPageContent, GrabPageContent{}.Action())
}

func TestRequestCodec(t *testing.T) {
	for _, req := range []Request{
		ScrapeSite{Site: "claude", Selector: ".font-claude-message"},
		CheckSchemas{},
		GrabPageContent{},
	} {
		data, err := EncodeRequest(req)
		require.NoError(t, err)
		got, err := DecodeRequest(data)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	}

	_, err := DecodeRequest([]byte(`{"action":"format-disk"}`))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestResponseCodec_Scrape(t *testing.T) {
	req := ScrapeSite{Site: "chatgpt"}
	resp := Succeeded(req, ScrapeResult{
		Site:     "chatgpt",
		Selector: ".text-base",
		Result: extract.Result{
			Fragments: []string{"buy AAPL"},
			Status:    extract.Status{Total: 2, Processed: 1, Errors: []string{"boom"}},
		},
	})

	data, err := EncodeResponse(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"scrape-chatgpt","results":{"site":"chatgpt","selector":".text-base",
		"fragments":["buy AAPL"],"status":{"total":2,"processed":1,"errors":["boom"]}}}`, string(data))

	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestResponseCodec_SchemaReport(t *testing.T) {
	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	resp := Succeeded(CheckSchemas{}, SchemaReport{States: []SchemaState{
		{Site: "chatgpt", Selector: ".text-base", Working: true, Count: 4, LastChecked: checked},
		{Site: "grok", Selector: ".message-bubble", LastChecked: checked},
	}})

	data, err := EncodeResponse(resp)
	require.NoError(t, err)
	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp, got)

	report := got.Result.(SchemaReport)
	st, ok := report.Lookup("GROK")
	require.True(t, ok)
	assert.Equal(t, "Stale", st.Label())
}

func TestResponseCodec_Error(t *testing.T) {
	resp := Failed(GrabPageContent{}, errors.New("no active tab"))
	assert.False(t, resp.OK())

	data, err := EncodeResponse(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"grab-page-content","error":"no active tab"}`, string(data))

	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
	assert.Nil(t, got.Result)
}
