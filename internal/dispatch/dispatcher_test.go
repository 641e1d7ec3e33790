package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chathud/internal/dispatch/mocks"
	"chathud/internal/extract"
	"chathud/internal/metrics"
	"chathud/internal/protocol"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const chatURL = "https://chatgpt.com/c/abc"

func newDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *mocks.MockExecutor) {
	t.Helper()
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	return New(exec, NewRegistry(nil), opts...), exec
}

func TestHandle_Scrape(t *testing.T) {
	d, exec := newDispatcher(t, WithMaxFragmentBytes(4096))
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, ".text-base", 4096).Return(
		[]byte(`{"fragments":["buy AAPL","buy GOOG"],"status":{"total":3,"processed":2,"errors":["detached node"]}}`), nil)

	resp := d.Handle(context.Background(), protocol.ScrapeSite{Site: "chatgpt"})
	require.True(t, resp.OK(), resp.Err)
	assert.Equal(t, protocol.Action("scrape-chatgpt"), resp.Action)

	res := resp.Result.(protocol.ScrapeResult)
	assert.Equal(t, chatURL, res.URL)
	assert.Equal(t, ".text-base", res.Selector)
	assert.Equal(t, []string{"buy AAPL", "buy GOOG"}, res.Fragments)
	assert.Equal(t, 2, res.Status.Processed)
	assert.Equal(t, res.Status.Total-len(res.Status.Errors), res.Status.Processed)
}

func TestHandle_ScrapeZeroMatches(t *testing.T) {
	d, exec := newDispatcher(t)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, ".prose", 0).Return(
		[]byte(`{"fragments":[],"status":{"total":0,"processed":0,"errors":[]}}`), nil)

	resp := d.Handle(context.Background(), protocol.ScrapeSite{Site: "mistral"})
	require.True(t, resp.OK())
	res := resp.Result.(protocol.ScrapeResult)
	assert.Empty(t, res.Fragments)
	assert.Zero(t, res.Status.Total)
	assert.Zero(t, res.Status.Processed)
}

func TestHandle_ScrapeUnknownSite(t *testing.T) {
	d, _ := newDispatcher(t)

	resp := d.Handle(context.Background(), protocol.ScrapeSite{Site: "bard"})
	assert.False(t, resp.OK())
	assert.Equal(t, "unknown site: bard", resp.Err)
}

func TestHandle_ScrapeSelectorOverride(t *testing.T) {
	d, exec := newDispatcher(t)
	exec.EXPECT().ActiveURL(gomock.Any()).Return("https://example.com", nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, "article p", 0).Return(
		[]byte(`{"fragments":["x"],"status":{"total":1,"processed":1,"errors":[]}}`), nil)

	resp := d.Handle(context.Background(), protocol.ScrapeSite{Site: "custom", Selector: "article p"})
	require.True(t, resp.OK(), resp.Err)
	assert.Equal(t, "article p", resp.Result.(protocol.ScrapeResult).Selector)
}

func TestHandle_ScrapeMetricLabels(t *testing.T) {
	d, exec := newDispatcher(t)
	exec.EXPECT().ActiveURL(gomock.Any()).Return("https://example.com", nil).Times(2)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, "article p", 0).Return(
		[]byte(`{"fragments":["x","y"],"status":{"total":3,"processed":2,"errors":["too big"]}}`), nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, ".font-claude-message", 0).Return(
		[]byte(`{"fragments":["z"],"status":{"total":1,"processed":1,"errors":[]}}`), nil)

	customBefore := testutil.ToFloat64(metrics.FragmentsExtracted.WithLabelValues(customSiteLabel))
	claudeBefore := testutil.ToFloat64(metrics.FragmentsExtracted.WithLabelValues("claude"))

	resp := d.Handle(context.Background(), protocol.ScrapeSite{Site: "made-up-site-42", Selector: "article p"})
	require.True(t, resp.OK(), resp.Err)
	resp = d.Handle(context.Background(), protocol.ScrapeSite{Site: "Claude"})
	require.True(t, resp.OK(), resp.Err)

	assert.Equal(t, customBefore+2, testutil.ToFloat64(metrics.FragmentsExtracted.WithLabelValues(customSiteLabel)))
	assert.Equal(t, claudeBefore+1, testutil.ToFloat64(metrics.FragmentsExtracted.WithLabelValues("claude")))
	assert.False(t, metrics.FragmentsExtracted.DeleteLabelValues("made-up-site-42"))
	assert.False(t, metrics.ExtractionErrors.DeleteLabelValues("made-up-site-42"))
	assert.False(t, metrics.FragmentsExtracted.DeleteLabelValues("Claude"))
}

func TestHandle_NoActiveTab(t *testing.T) {
	d, exec := newDispatcher(t)
	exec.EXPECT().ActiveURL(gomock.Any()).Return("", errors.New("no active tab"))

	resp := d.Handle(context.Background(), protocol.ScrapeSite{Site: "claude"})
	assert.False(t, resp.OK())
	assert.Equal(t, "no active tab", resp.Err)
	assert.Nil(t, resp.Result)
}

func TestHandle_InconsistentResult(t *testing.T) {
	d, exec := newDispatcher(t)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, ".text-base", 0).Return(
		[]byte(`{"fragments":["a"],"status":{"total":1,"processed":0,"errors":[]}}`), nil)

	resp := d.Handle(context.Background(), protocol.ScrapeSite{Site: "chatgpt"})
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Err, "inconsistent")
}

func TestHandle_CheckSchemas(t *testing.T) {
	checked := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	d, exec := newDispatcher(t, WithClock(func() time.Time { return checked }), WithSchemaConcurrency(2))
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.CountScript, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, args ...any) ([]byte, error) {
			switch args[0].(string) {
			case ".text-base":
				return []byte(`3`), nil
			case ".message-bubble":
				return nil, errors.New("execution context was destroyed")
			default:
				return []byte(`0`), nil
			}
		}).Times(len(DefaultSites()))

	resp := d.Handle(context.Background(), protocol.CheckSchemas{})
	require.True(t, resp.OK(), resp.Err)

	report := resp.Result.(protocol.SchemaReport)
	require.Len(t, report.States, len(DefaultSites()))
	for i, site := range DefaultSites() {
		assert.Equal(t, site.Name, report.States[i].Site)
		assert.True(t, report.States[i].LastChecked.Equal(checked))
	}

	gpt, _ := report.Lookup("chatgpt")
	assert.True(t, gpt.Working)
	assert.Equal(t, 3, gpt.Count)

	grok, _ := report.Lookup("grok")
	assert.False(t, grok.Working)
	assert.Equal(t, "execution context was destroyed", grok.Err)

	claude, _ := report.Lookup("claude")
	assert.Equal(t, "Stale", claude.Label())
}

func TestHandle_Grab(t *testing.T) {
	d, exec := newDispatcher(t)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.OuterHTMLScript).Return([]byte(`"<html><body>hi</body></html>"`), nil)

	resp := d.Handle(context.Background(), protocol.GrabPageContent{})
	require.True(t, resp.OK(), resp.Err)
	page := resp.Result.(protocol.PageContent)
	assert.Equal(t, chatURL, page.URL)
	assert.Equal(t, "<html><body>hi</body></html>", page.HTML)
}

func TestHandle_NilRequest(t *testing.T) {
	d, _ := newDispatcher(t)
	resp := d.Handle(context.Background(), nil)
	assert.False(t, resp.OK())
	assert.True(t, strings.HasPrefix(resp.Err, protocol.ErrUnknownAction.Error()))
}

func TestHandle_EvalTimeout(t *testing.T) {
	d, exec := newDispatcher(t, WithEvalTimeout(20*time.Millisecond))
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.OuterHTMLScript).
		DoAndReturn(func(ctx context.Context, _ string, _ ...any) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	resp := d.Handle(context.Background(), protocol.GrabPageContent{})
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Err, "deadline exceeded")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(map[string]string{
		"ChatGPT": ".markdown",
		"poe":     ".Message_botMessageBubble",
		"gemini":  "message-content",
	})

	gpt, err := r.Lookup("CHATGPT")
	require.NoError(t, err)
	assert.Equal(t, ".markdown", gpt.Selector)
	assert.Equal(t, "ChatGPT", gpt.Display)

	all := r.All()
	require.Equal(t, len(DefaultSites())+2, r.Len())
	assert.Equal(t, "gemini", all[len(all)-2].Name)
	assert.Equal(t, "poe", all[len(all)-1].Name)

	_, err = r.Lookup("bard")
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestDo_KeepsErrorChain(t *testing.T) {
	d, _ := newDispatcher(t)
	_, err := d.Do(context.Background(), protocol.ScrapeSite{Site: "altavista"})
	assert.ErrorIs(t, err, ErrUnknownSite)
}
