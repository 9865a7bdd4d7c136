// Package apod fetches and parses the Astronomy Picture of the Day page.
package apod

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/apodmail/apodmail/internal/model"
)

// DefaultBaseURL is the APOD archive root.
const DefaultBaseURL = "https://apod.nasa.gov/apod"

// Scraper fetches APOD pages over HTTP and extracts the structured record.
type Scraper struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewScraper creates a Scraper. baseURL defaults to the NASA archive when
// empty; tests point it at a local server.
func NewScraper(baseURL string, logger *slog.Logger) *Scraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "apod.scraper"),
	}
}

var (
	// "Explanation:" prefix, possibly bolded, at the start of the
	// explanation block. The email template adds its own label.
	explanationPrefixRe = regexp.MustCompile(`(?i)^\s*(?:<b>\s*)?Explanation:\s*(?:</b>\s*)?`)

	copyrightRe = regexp.MustCompile(`(?i)copyright:\s+(.+?)\s+explanation`)
	creditRe    = regexp.MustCompile(`(?i)credit:\s+(.+?)\s+(?:;|explanation)`)
)

// Fetch retrieves and parses the APOD page for a calendar date.
func (s *Scraper) Fetch(ctx context.Context, date time.Time) (*model.APOD, error) {
	pageURL := fmt.Sprintf("%s/ap%s.html", s.baseURL, date.Format("060102"))
	s.logger.Info("fetching APOD page", slog.String("url", pageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	return s.parse(doc, date)
}

func (s *Scraper) parse(doc *goquery.Document, date time.Time) (*model.APOD, error) {
	record := &model.APOD{
		Date: date.Format("2006-01-02"),
	}

	// Title: modern pages carry it in <title> as "APOD: <date> - <title>";
	// very old pages only bold it in the first <center>.
	if doc.Find("center").Length() < 2 {
		title := doc.Find("title").Text()
		if _, after, ok := strings.Cut(title, " - "); ok {
			record.Title = strings.TrimSpace(after)
		} else {
			record.Title = strings.TrimSpace(title)
		}
	} else {
		bold := doc.Find("b").First().Text()
		record.Title = strings.TrimSpace(strings.SplitN(bold, "\n", 2)[0])
	}

	// Media: an inline image linking to the full-size file, or an embedded
	// video frame.
	if img := doc.Find(`a[href^="image"] img[src^="image"]`); img.Length() > 0 {
		if src, ok := img.Attr("src"); ok {
			record.MediaURL = s.baseURL + "/" + src
		}
		if href, ok := doc.Find(`a[href^="image"]`).Attr("href"); ok {
			record.HDMediaURL = s.baseURL + "/" + href
		}
		record.MediaType = model.MediaImage
	} else if src, ok := doc.Find("iframe").Attr("src"); ok {
		record.MediaURL = src
		record.MediaType = model.MediaVideo
	} else if src, ok := doc.Find("embed").Attr("src"); ok {
		record.MediaURL = src
		record.MediaType = model.MediaVideo
	} else {
		record.MediaType = model.MediaOther
	}

	// Explanation: the paragraph after the title and media blocks, HTML
	// preserved so inline links survive.
	if expl := doc.Find("center ~ center ~ p").First(); expl.Length() > 0 {
		html, err := expl.Html()
		if err != nil {
			return nil, fmt.Errorf("extract explanation: %w", err)
		}
		html = explanationPrefixRe.ReplaceAllString(strings.TrimSpace(html), "")
		record.Explanation = absolutizeLinks(html, s.baseURL)
	}

	// Copyright/credit from the flattened page text; credit is the fallback.
	body := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if m := copyrightRe.FindStringSubmatch(body); m != nil {
		record.Copyright = strings.TrimSpace(m[1])
	} else if m := creditRe.FindStringSubmatch(body); m != nil {
		record.Copyright = strings.TrimSpace(m[1])
	}

	if record.Title == "" {
		return nil, fmt.Errorf("no title found for %s", record.Date)
	}

	return record, nil
}

// absolutizeLinks rewrites relative hrefs in an HTML fragment against the
// APOD archive root.
func absolutizeLinks(html, baseURL string) string {
	var out strings.Builder
	rest := html
	for {
		i := strings.Index(rest, `href="`)
		if i < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:i+len(`href="`)])
		rest = rest[i+len(`href="`):]

		if !strings.HasPrefix(rest, "http") && !strings.HasPrefix(rest, "mailto") {
			out.WriteString(baseURL + "/")
		}
	}
	return out.String()
}
