package dispatch

import (
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer = bluemonday.UGCPolicy()
	mdConv    = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// ToMarkdown sanitises a grabbed page and converts it to Markdown. Links
// are resolved against pageURL when it is set.
func ToMarkdown(html, pageURL string) (string, error) {
	clean := sanitizer.Sanitize(html)
	var opts []converter.ConvertOptionFunc
	if pageURL != "" {
		opts = append(opts, converter.WithDomain(pageURL))
	}
	md, err := mdConv.ConvertString(clean, opts...)
	if err != nil {
		return "", fmt.Errorf("convert page to markdown: %w", err)
	}
	return md, nil
}
