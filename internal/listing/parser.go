// Package listing parses SIEPE annals listing pages into work items.
package listing

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

const columns = 5

// Parse returns one WorkItem per well-formed row of the first table in body.
// The header row is skipped, rows without exactly five cells or without a
// link are dropped, and relative links are resolved against pageURL.
func Parse(body []byte, pageURL string) ([]rag.WorkItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil
	}

	var items []rag.WorkItem
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() != columns {
			return
		}
		href, ok := cells.Eq(4).Find("a").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		items = append(items, rag.WorkItem{
			Presenter: cellText(cells.Eq(0)),
			Title:     cellText(cells.Eq(1)),
			Authors:   cellText(cells.Eq(2)),
			Advisor:   cellText(cells.Eq(3)),
			Link:      resolve(base, href),
		})
	})
	return items, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
