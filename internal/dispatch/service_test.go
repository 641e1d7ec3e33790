package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chathud/internal/dispatch/mocks"
	"chathud/internal/extract"
	"chathud/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type countingReloader struct{ calls int }

func (r *countingReloader) Reload(context.Context) error {
	r.calls++
	return nil
}

func newService(t *testing.T, trim bool) (*Service, *mocks.MockExecutor, *store.LocalStore, *countingReloader) {
	t.Helper()
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	st, err := store.NewLocalStore(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	cache := &countingReloader{}
	return NewService(New(exec, NewRegistry(nil)), st, cache, trim), exec, st, cache
}

func texts(notices []Notice) []string {
	out := make([]string, len(notices))
	for i, n := range notices {
		out[i] = n.Text
	}
	return out
}

func TestService_ScrapeStoresAndReloads(t *testing.T) {
	svc, exec, st, cache := newService(t, false)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, ".text-base", 0).Return(
		[]byte(`{"fragments":["buy AAPL","sell TSLA","buy GOOG"],"status":{"total":5,"processed":3,"errors":["e1","e2"]}}`), nil)

	rep, err := svc.Scrape(context.Background(), "chatgpt")
	require.NoError(t, err)
	assert.Len(t, rep.Stored, 3)
	assert.Equal(t, 1, cache.calls)
	assert.Equal(t, []string{
		"Scraping ChatGPT: 3/5",
		"Errors: e1, e2",
		"Stored 3 fragments.",
		"ChatGPT scraping completed.",
	}, texts(rep.Notices))
	assert.Equal(t, LevelError, rep.Notices[1].Level)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestService_ZeroMatchesWritesNothing(t *testing.T) {
	svc, exec, st, cache := newService(t, false)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, ".prose", 0).Return(
		[]byte(`{"fragments":[],"status":{"total":0,"processed":0,"errors":[]}}`), nil)

	rep, err := svc.Scrape(context.Background(), "perplexity")
	require.NoError(t, err)
	assert.Empty(t, rep.Stored)
	assert.Zero(t, cache.calls)
	assert.Equal(t, []string{"Scraping Perplexity: 0/0", "Perplexity scraping completed."}, texts(rep.Notices))

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_TrimDropsBlankFragments(t *testing.T) {
	svc, exec, st, _ := newService(t, true)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.Script, ".text-base", 0).Return(
		[]byte(`{"fragments":["  hello \n","   "],"status":{"total":2,"processed":2,"errors":[]}}`), nil)

	_, err := svc.Scrape(context.Background(), "chatgpt")
	require.NoError(t, err)

	all, err := st.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "hello", all[0].Text)
}

func TestService_ScrapeError(t *testing.T) {
	svc, exec, _, cache := newService(t, false)
	exec.EXPECT().ActiveURL(gomock.Any()).Return("", errors.New("no active tab"))

	rep, err := svc.Scrape(context.Background(), "claude")
	require.Error(t, err)
	assert.Zero(t, cache.calls)
	require.Len(t, rep.Notices, 1)
	assert.Equal(t, Notice{Level: LevelError, Text: "Scraping Claude error: no active tab"}, rep.Notices[0])
}

func TestService_CheckSchemas(t *testing.T) {
	svc, exec, _, _ := newService(t, false)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.CountScript, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, args ...any) ([]byte, error) {
			if args[0] == ".text-base" {
				return []byte(`2`), nil
			}
			return []byte(`0`), nil
		}).AnyTimes()

	_, notices, err := svc.CheckSchemas(context.Background())
	require.NoError(t, err)
	require.Len(t, notices, len(DefaultSites()))
	assert.Equal(t, Notice{Level: LevelSuccess, Text: "ChatGPT schema: Working"}, notices[0])
	assert.Equal(t, Notice{Level: LevelWarning, Text: "LMArena schema: Stale"}, notices[len(notices)-1])
}

func TestService_Grab(t *testing.T) {
	svc, exec, _, _ := newService(t, false)
	exec.EXPECT().ActiveURL(gomock.Any()).Return(chatURL, nil)
	exec.EXPECT().Evaluate(gomock.Any(), extract.OuterHTMLScript).Return([]byte(`"<p>x</p>"`), nil)

	page, notices, err := svc.Grab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", page.HTML)
	assert.Equal(t, []string{"Page content logged to console."}, texts(notices))
}

func TestToMarkdown(t *testing.T) {
	md, err := ToMarkdown(`<html><head><script>alert(1)</script></head><body>
		<h1>Portfolio</h1><p>buy <a href="/q/AAPL">AAPL</a></p></body></html>`, "https://chatgpt.com")
	require.NoError(t, err)
	assert.Contains(t, md, "# Portfolio")
	assert.Contains(t, md, "[AAPL](https://chatgpt.com/q/AAPL)")
	assert.NotContains(t, md, "alert")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "success", LevelSuccess.String())
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "error", LevelError.String())
}

func TestService_ScrapeHTML(t *testing.T) {
	svc, _, st, cache := newService(t, false)
	page := `<html><body>
		<div class="text-base">buy AAPL</div>
		<div class="other">skip</div>
		<div class="text-base">buy GOOG</div>
	</body></html>`

	rep, err := svc.ScrapeHTML(context.Background(), "chatgpt", "", strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Scraping ChatGPT: 2/2",
		"Stored 2 fragments.",
		"ChatGPT scraping completed.",
	}, texts(rep.Notices))
	assert.Equal(t, 1, cache.calls)

	all, err := st.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "chatgpt", all[1].Site)
}

func TestService_ScrapeHTMLUnknownSite(t *testing.T) {
	svc, _, _, _ := newService(t, false)
	_, err := svc.ScrapeHTML(context.Background(), "altavista", "", strings.NewReader("<p>x</p>"))
	assert.ErrorIs(t, err, ErrUnknownSite)

	rep, err := svc.ScrapeHTML(context.Background(), "altavista", "p", strings.NewReader("<p>x</p>"))
	require.NoError(t, err)
	assert.Equal(t, "Scraping altavista: 1/1", rep.Notices[0].Text)
}
