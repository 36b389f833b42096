package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/masahif/marketpulse/internal/config"
	"github.com/masahif/marketpulse/internal/extract"
)

const listingPage = `<!DOCTYPE html>
<html><head><title>Ordinateurs portables</title>
<script>var tracking = "ignore me";</script></head>
<body>
<div class="listing">
  <a class="card" href="/fr/casablanca/ordinateurs/hp_elitebook_840_i5_8go_123.htm">
    <div><span>Il y a 5 minutes</span></div>
    <p class="title">HP EliteBook 840 i5 8Go</p>
    <div><span>4 500</span>&nbsp;<span>DH</span></div>
  </a>
  <a class="card" href="https://market.example/ad/456">
    <p class="title">MacBook Air M1 16Go</p>
    <div>7 900 DH</div>
  </a>
  <div class="card">
    <p class="title">Lenovo ThinkPad</p>
    <a href="/ad/789">voir</a>
    <div>Prix non spécifié</div>
  </div>
</div>
</body></html>`

func testCrawlConfig(baseURL string) *config.CrawlConfig {
	cfg := config.DefaultConfig().Crawl
	cfg.BaseURL = baseURL
	cfg.ItemSelector = ".card"
	cfg.TitleSelector = "p.title"
	cfg.UserAgent = "Test-Agent/1.0"
	cfg.PageTimeout = 5 * time.Second
	return &cfg
}

func TestPagerURL(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		param string
		page  int
		want  string
	}{
		{"first page is base", "https://www.avito.ma/fr/maroc/ordinateurs_portables", "o", 1, "https://www.avito.ma/fr/maroc/ordinateurs_portables"},
		{"second page", "https://www.avito.ma/fr/maroc/ordinateurs_portables", "o", 2, "https://www.avito.ma/fr/maroc/ordinateurs_portables?o=2"},
		{"keeps existing query", "https://market.example/search?q=laptop", "o", 7, "https://market.example/search?o=7&q=laptop"},
		{"custom param", "https://market.example/list", "page", 3, "https://market.example/list?page=3"},
		{"default param", "https://market.example/list", "", 4, "https://market.example/list?o=4"},
		{"page zero treated as first", "https://market.example/list", "o", 0, "https://market.example/list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pager, err := NewPager(tt.base, tt.param)
			if err != nil {
				t.Fatalf("NewPager failed: %v", err)
			}
			if got := pager.URL(tt.page); got != tt.want {
				t.Errorf("URL(%d) = %s, want %s", tt.page, got, tt.want)
			}
		})
	}
}

func TestNewPagerErrors(t *testing.T) {
	if _, err := NewPager("", "o"); !errors.Is(err, config.ErrEmptyBaseURL) {
		t.Errorf("empty base: err = %v", err)
	}
	if _, err := NewPager("/relative/path", "o"); err == nil {
		t.Error("relative base URL should be rejected")
	}
	if _, err := NewPager("http://bad host/%zz", "o"); err == nil {
		t.Error("unparsable base URL should be rejected")
	}
}

func TestNewSelectsFetcher(t *testing.T) {
	cfg := testCrawlConfig("https://market.example/list")

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = f.Close() }()
	if _, ok := f.(*HTTPFetcher); !ok {
		t.Errorf("expected *HTTPFetcher, got %T", f)
	}

	cfg.Fetcher = "wget"
	if _, err := New(cfg); !errors.Is(err, config.ErrUnknownFetcher) {
		t.Errorf("unknown fetcher: err = %v", err)
	}
}

func TestHTTPFetcherFetch(t *testing.T) {
	var gotPages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPages = append(gotPages, r.URL.Query().Get("o"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("o") == "3" {
			_, _ = w.Write([]byte("<html><body><p>Aucune annonce</p></body></html>"))
			return
		}
		_, _ = w.Write([]byte(listingPage))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(testCrawlConfig(server.URL + "/list"))
	if err != nil {
		t.Fatalf("NewHTTPFetcher failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	blocks, err := f.Fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}

	first := blocks[0]
	if first.Href != "/fr/casablanca/ordinateurs/hp_elitebook_840_i5_8go_123.htm" {
		t.Errorf("first href = %q", first.Href)
	}
	if first.Title != "HP EliteBook 840 i5 8Go" {
		t.Errorf("first title = %q", first.Title)
	}
	wantText := "Il y a 5 minutes\nHP EliteBook 840 i5 8Go\n4 500 DH"
	if first.Text != wantText {
		t.Errorf("first text = %q, want %q", first.Text, wantText)
	}

	if blocks[2].Href != "/ad/789" {
		t.Errorf("non-anchor card should use its first link, got %q", blocks[2].Href)
	}

	empty, err := f.Fetch(context.Background(), 3)
	if err != nil {
		t.Fatalf("Fetch page 3 failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("page without cards returned %d blocks", len(empty))
	}

	if gotPages[0] != "" || gotPages[1] != "3" {
		t.Errorf("requested pages = %v, want first page without param", gotPages)
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(testCrawlConfig(server.URL))
	if err != nil {
		t.Fatalf("NewHTTPFetcher failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	_, err = f.Fetch(context.Background(), 2)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 status error, got %v", err)
	}
}

func TestHTTPFetcherRequiresSelector(t *testing.T) {
	cfg := testCrawlConfig("https://market.example")
	cfg.ItemSelector = " "
	if _, err := NewHTTPFetcher(cfg); err == nil {
		t.Error("expected error for empty item selector")
	}
}

func TestRenderText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"inline spans join", `<div><span>4 500</span> <span>DH</span></div>`, "4 500 DH"},
		{"blocks break lines", `<div><p>Dell XPS</p><p>9 000 DH</p></div>`, "Dell XPS\n9 000 DH"},
		{"br breaks lines", `<div>Asus<br>3 000 DH</div>`, "Asus\n3 000 DH"},
		{"whitespace collapses", "<div>  HP \n\t  ProBook  </div>", "HP ProBook"},
		{"price split across source lines", "<div><span>7 000</span>\n    <span>DH</span></div>", "7 000 DH"},
		{"source newlines inside text", "<p>Dell Latitude\n  i7 16Go</p><p>6 000 DH</p>", "Dell Latitude i7 16Go\n6 000 DH"},
		{"scripts skipped", `<div>Acer<script>alert(1)</script><style>p{}</style></div>`, "Acer"},
		{"empty", `<div></div>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if got := RenderText(doc); got != tt.want {
				t.Errorf("RenderText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBlocksSourceFormattedPrice(t *testing.T) {
	const page = `<html><body>
<a class="card" href="/ad/42">
  <p class="title">HP i5 8Go/256Go</p>
  <div>
    <span>7 000</span>
    <span>DH</span>
  </div>
</a>
</body></html>`

	f, err := NewHTTPFetcher(testCrawlConfig("https://market.example/list"))
	if err != nil {
		t.Fatalf("NewHTTPFetcher failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	blocks, err := f.Blocks([]byte(page))
	if err != nil {
		t.Fatalf("Blocks failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	if want := "HP i5 8Go/256Go\n7 000 DH"; blocks[0].Text != want {
		t.Errorf("Text = %q, want %q", blocks[0].Text, want)
	}

	raw, ok := extract.New(extract.Options{BaseURL: "https://market.example"}).Extract(blocks[0], 1)
	if !ok {
		t.Fatal("listing with a source-formatted price was discarded")
	}
	if raw.Price != 7000 {
		t.Errorf("Price = %v, want 7000", raw.Price)
	}
}
