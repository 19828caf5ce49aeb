package telegram

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Post is a single message lifted from a channel preview page
type Post struct {
	Time time.Time
	Text string
	Link string
	ID   int64
}

// moreRecent orders posts newest first, by post time and then by id.
// Post ids are monotonic within a channel, so the id settles ties between
// posts sharing a timestamp.
func moreRecent(a, b Post) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.After(b.Time)
	}

	return a.ID > b.ID
}

// ParsePage extracts posts from a t.me/s preview page, in document order
// (oldest first). Messages without a numeric id are dropped; a missing or
// malformed timestamp leaves Time zero for the scanner to reject.
func ParsePage(r io.Reader) ([]Post, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to construct query doc: %w", err)
	}

	var posts []Post

	doc.Find(".tgme_widget_message_wrap .tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		dataPost, ok := sel.Attr("data-post")
		if !ok {
			return
		}

		// data-post is "<channel>/<id>"
		idx := strings.LastIndex(dataPost, "/")
		if idx == -1 {
			return
		}

		id, err := strconv.ParseInt(dataPost[idx+1:], 10, 64)
		if err != nil {
			return
		}

		textSel := sel.Find(".tgme_widget_message_text").First()

		// Line breaks carry meaning for per-line parsers
		textSel.Find("br").ReplaceWithHtml("\n")

		post := Post{
			ID:   id,
			Text: textSel.Text(),
		}

		if link, ok := sel.Find("a.tgme_widget_message_date").Attr("href"); ok {
			post.Link = link
		}

		if dt, ok := sel.Find(".tgme_widget_message_date time").Attr("datetime"); ok {
			if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(dt)); err == nil {
				post.Time = ts
			}
		}

		posts = append(posts, post)
	})

	return posts, nil
}
