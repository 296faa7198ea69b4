package gridconv

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// UTMZoneFromHTML extracts the UTM zone number from an INEGI metadata page.
// The zone appears as `<dt><em>UTM_Zone_Number:</em> 14</dt>`.
func UTMZoneFromHTML(r io.Reader) (int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, fmt.Errorf("UTMZoneFromHTML: %w", err)
	}
	zone := findUTMZone(doc)
	if zone == 0 {
		return 0, fmt.Errorf("UTMZoneFromHTML: UTM_Zone_Number not found")
	}
	return zone, nil
}

func findUTMZone(n *html.Node) int {
	if n.Type == html.ElementNode && n.Data == "em" && strings.TrimSpace(nodeText(n)) == "UTM_Zone_Number:" {
		for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
			if zone, err := strconv.Atoi(strings.TrimSpace(nodeText(sib))); err == nil {
				return zone
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if zone := findUTMZone(c); zone != 0 {
			return zone
		}
	}
	return 0
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
