// Package email composes the daily APOD email.
package email

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/apodmail/apodmail/internal/model"
)

// recipientPlaceholder marks where the recipient's email is substituted
// during personalization (unsubscribe link).
const recipientPlaceholder = "{{email}}"

// Builder renders APOD records into email HTML.
type Builder struct {
	baseURL       string // service base URL, for unsubscribe links
	measurementID string // GA4 measurement ID; empty disables the pixel
}

// NewBuilder creates a Builder.
func NewBuilder(baseURL, measurementID string) *Builder {
	return &Builder{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		measurementID: measurementID,
	}
}

// Template is a rendered daily email, built once per fan-out and
// personalized per recipient.
type Template struct {
	Subject       string
	html          string
	measurementID string
}

// Daily renders the email template for one APOD record. Outbound links are
// tagged with UTM parameters; the template is parsed and rewritten once so
// per-recipient personalization stays a string substitution.
func (b *Builder) Daily(apod *model.APOD) (*Template, error) {
	var media strings.Builder

	switch apod.MediaType {
	case model.MediaImage:
		href := apod.HDMediaURL
		if href == "" {
			href = apod.MediaURL
		}
		fmt.Fprintf(&media, `<center><a href="%s"><img src="%s" alt="%s" style="max-width:100%%"></a></center>`,
			href, apod.MediaURL, htmlEscape(apod.Title))

	case model.MediaVideo:
		if thumb, ok := youtubeThumbnail(apod.MediaURL); ok {
			fmt.Fprintf(&media, `<center><a href="%s">%s</a></center><br><center><a href="%s"><img src="%s"></a></center>`,
				apod.MediaURL, apod.MediaURL, apod.MediaURL, thumb)
		} else {
			// Native HTML5 video cannot be embedded in email; link out to
			// the APOD page for the day instead.
			fmt.Fprintf(&media, `<center><p>Today's picture is a video that cannot be displayed in email.</p><a href="%s">Watch it on NASA APOD</a></center>`,
				apodPageURL(apod.Date))
		}
	}

	copyrightHTML := ""
	if apod.Copyright != "" {
		copyrightHTML = fmt.Sprintf("<b>Image Credit &amp; Copyright:</b> %s", htmlEscape(apod.Copyright))
	}

	unsubscribeURL := fmt.Sprintf("%s/unsubscribe?email=%s&action=unsubscribe", b.baseURL, recipientPlaceholder)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body bgcolor="#F4F4FF" text="#000000" link="#0000FF">
<center>
	<h1>Astronomy Picture of the Day</h1>
	<p>%s</p>
	<b>%s</b><br>
</center>
%s
<center>%s</center>
<p><b>Explanation:</b> %s</p>
<hr>
<center>
	<p><a href="%s">Unsubscribe</a> from this newsletter.</p>
</center>
</body>
</html>`,
		htmlEscape(apod.Title),
		apod.Date,
		htmlEscape(apod.Title),
		media.String(),
		copyrightHTML,
		apod.Explanation,
		unsubscribeURL,
	)

	tagged, err := addUTMParams(html)
	if err != nil {
		return nil, fmt.Errorf("failed to tag outbound links: %w", err)
	}

	return &Template{
		Subject:       "APOD - " + apod.Title,
		html:          tagged,
		measurementID: b.measurementID,
	}, nil
}

// Personalize substitutes the recipient into the unsubscribe link and
// appends an open-tracking pixel with a fresh client id.
func (t *Template) Personalize(recipient string) string {
	html := strings.ReplaceAll(t.html, recipientPlaceholder, url.QueryEscape(recipient))

	if t.measurementID != "" {
		pixel := url.URL{
			Scheme: "https",
			Host:   "www.google-analytics.com",
			Path:   "/g/collect",
		}
		q := pixel.Query()
		q.Set("v", "2")
		q.Set("tid", t.measurementID)
		q.Set("cid", uuid.NewString())
		q.Set("en", "email_open")
		q.Set("cs", "newsletter")
		q.Set("cm", "email")
		q.Set("cn", "daily_apod")
		pixel.RawQuery = q.Encode()

		html += fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none;"/>`, pixel.String())
	}

	return html
}

// addUTMParams rewrites every outbound link with newsletter UTM parameters.
// Anchors, mailto links, and the unsubscribe link are left untouched.
func addUTMParams(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.Contains(href, "action=unsubscribe") {
			return
		}

		u, err := url.Parse(href)
		if err != nil || !u.IsAbs() {
			return
		}

		q := u.Query()
		q.Set("utm_source", "newsletter")
		q.Set("utm_medium", "email")
		q.Set("utm_campaign", "daily_apod")
		u.RawQuery = q.Encode()
		sel.SetAttr("href", u.String())
	})

	return doc.Html()
}

// youtubeThumbnail extracts a preview image URL from a YouTube embed link.
func youtubeThumbnail(mediaURL string) (string, bool) {
	if !strings.Contains(mediaURL, "youtube.com/embed") && !strings.Contains(mediaURL, "youtu.be") {
		return "", false
	}

	rest := mediaURL
	if i := strings.Index(rest, "embed/"); i >= 0 {
		rest = rest[i+len("embed/"):]
	}
	if i := strings.IndexAny(rest, "?&"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}

	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", rest), true
}

// apodPageURL builds the APOD page URL for a YYYY-MM-DD date, e.g.
// "2026-01-13" -> "https://apod.nasa.gov/apod/ap260113.html".
func apodPageURL(date string) string {
	compact := strings.ReplaceAll(date, "-", "")
	if len(compact) == 8 {
		compact = compact[2:]
	}
	return "https://apod.nasa.gov/apod/ap" + compact + ".html"
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
