package viewer

import "html/template"

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <link rel="alternate" type="application/rss+xml" href="/feed.xml">
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Reports}}
  <ul>
    {{range .Reports}}
    <li><a href="/view/{{.Name}}">{{.Name}}</a> <a href="/reports/{{.Name}}">(raw)</a></li>
    {{end}}
  </ul>
  {{else}}
  <p>No reports yet.</p>
  {{end}}
  {{if .Recent}}
  <h2>Recently stored</h2>
  <ul>
    {{range .Recent}}
    <li>{{.Published}} [{{.Source}}] <a href="{{.Link}}">{{.Title}}</a></li>
    {{end}}
  </ul>
  {{end}}
</body>
</html>
`))

var viewTemplate = template.Must(template.New("view").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Name}}</title>
</head>
<body>
  <p><a href="/">&larr; All reports</a></p>
  <article>
{{.Content}}
  </article>
</body>
</html>
`))
