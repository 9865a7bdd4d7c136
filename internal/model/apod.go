package model

// MediaType classifies the picture of the day's media.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaOther MediaType = "other"
)

// APOD is the structured record scraped from the Astronomy Picture of the
// Day page for one calendar date.
type APOD struct {
	Title       string    `json:"title"`
	Explanation string    `json:"explanation"` // HTML, relative links absolutized
	Date        string    `json:"date"`        // YYYY-MM-DD
	MediaURL    string    `json:"url"`
	HDMediaURL  string    `json:"hdurl,omitempty"`
	MediaType   MediaType `json:"media_type"`
	Copyright   string    `json:"copyright,omitempty"`
}
