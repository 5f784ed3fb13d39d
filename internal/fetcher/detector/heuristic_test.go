package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

func page(body string) stock.FetchResult {
	return stock.FetchResult{StatusCode: 200, Kind: stock.RenderedDOM, Body: []byte(body)}
}

func TestHeuristic_ShouldPromote(t *testing.T) {
	t.Parallel()

	hydrated := `<html><body><div id="root"><main><button>Add to bag</button></main></div>` +
		strings.Repeat("<p>copy</p>", 300) + `</body></html>`

	tests := []struct {
		name   string
		result stock.FetchResult
		want   bool
	}{
		{name: "empty body", result: page("  "), want: true},
		{name: "empty mount node", result: page(`<html><body><div id="__next"></div>` + strings.Repeat("<p>x</p>", 400) + `</body></html>`), want: true},
		{name: "script heavy shell", result: page(`<html><script>var a=1;</script><p>t</p></html>`), want: true},
		{name: "server rendered", result: page(hydrated), want: false},
		{name: "non 200", result: stock.FetchResult{StatusCode: 404, Body: []byte("not found")}, want: false},
		{name: "json api", result: stock.FetchResult{StatusCode: 200, Kind: stock.StructuredJSON, Body: []byte("{}")}, want: false},
		{name: "already rendered", result: stock.FetchResult{StatusCode: 200, Rendered: true, Body: []byte("")}, want: false},
	}
	h := NewHeuristic(1000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, h.ShouldPromote(tt.result))
		})
	}
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2048, NewHeuristic(0).BodyLengthThreshold)
	require.Equal(t, 10, NewHeuristic(10).BodyLengthThreshold)
}
