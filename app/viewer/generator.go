package viewer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"time"
)

// Channel describes the RSS channel that lists the reports.
type Channel struct {
	Title   string
	Link    string // viewer base URL
	Version string
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders an RSS 2.0 document with one item per report.
func (g *Generator) Run(channel Channel, reports []ReportFile) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", channel.Title, 4)
	g.writeElement(&buf, "link", channel.Link+"/", 4)
	g.writeElement(&buf, "description", "Daily AI news digests", 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(channel.Link+"/feed.xml")))

	lastBuildDate := time.Now().In(time.Local)
	if len(reports) > 0 {
		lastBuildDate = reports[0].ModTime
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("AI-News-Engine/%s", channel.Version), 4)
	g.writeElement(&buf, "language", "en", 4)

	for _, report := range reports {
		g.writeItem(&buf, channel, report)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, channel Channel, report ReportFile) {
	link := channel.Link + "/view/" + url.PathEscape(report.Name)

	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"true\">")
	xml.EscapeText(buf, []byte(link))
	buf.WriteString("</guid>\n")

	title := report.Name
	if !report.Date.IsZero() {
		title = "AI News Summary - " + report.Date.String()
	}
	g.writeElement(buf, "title", title, 6)
	g.writeElement(buf, "link", link, 6)
	g.writeElement(buf, "description", fmt.Sprintf("Report %s (%d bytes)", report.Name, report.Size), 6)
	g.writeElement(buf, "pubDate", report.ModTime.Format(time.RFC1123Z), 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
