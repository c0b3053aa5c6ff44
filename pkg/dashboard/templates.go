package dashboard

const pageTemplates = `
{{define "header"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Web Tools</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; vertical-align: top; }
th { background: #f0f0f0; }
.err { color: #b00; }
.low { color: #b00; font-weight: bold; }
nav a { margin-right: 1em; }
</style>
</head>
<body>
<nav><a href="/">Stores</a><a href="/limits">Rate limits</a></nav>
{{end}}

{{define "footer"}}</body>
</html>
{{end}}

{{define "index"}}{{template "header"}}
<h1>Stores</h1>
<p>Files matching <code>{{.Glob}}</code></p>
{{if not .Stores}}<p>No stores yet.</p>{{end}}
{{range .Stores}}
<h2><a href="/?db={{.Name}}">{{.Name}}</a>{{if .UserID}} (user {{.UserID}}){{end}}</h2>
{{if .Err}}<p class="err">{{.Err}}</p>{{else}}
<table>
<tr><th>Table</th><th>Rows</th></tr>
{{range .Tables}}<tr><td>{{.Name}}</td><td>{{.Rows}}</td></tr>
{{end}}</table>
{{end}}
{{end}}
{{template "footer"}}{{end}}

{{define "store"}}{{template "header"}}
<h1>{{.Name}}{{if .UserID}} (user {{.UserID}}){{end}}</h1>
{{$db := .Name}}
{{range .Tables}}
<h2><a href="/?db={{$db}}&table={{.Name}}">{{.Name}}</a></h2>
<p>{{.Rows}} rows{{if .Truncated}}, showing the first {{len .Data}}{{end}}</p>
<table>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Data}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{end}}
{{template "footer"}}{{end}}

{{define "limits"}}{{template "header"}}
<h1>Rate limits</h1>
{{if not .Configured}}<p>No rate-limit mirror configured (set redis.addr).</p>
{{else}}
{{if .Err}}<p class="err">{{.Err}}</p>{{end}}
{{if not .Limits}}<p>No requests recorded yet.</p>{{else}}
<table>
<tr><th>Endpoint</th><th>Remaining</th><th>Limit</th><th>Resets</th><th>% remaining</th><th>Delta</th><th>Checked</th></tr>
{{range .Limits}}<tr>
<td>{{.Endpoint}}</td>
<td>{{.Remaining}}</td>
<td>{{.Limit}}</td>
<td>{{.ResetClock}}</td>
<td{{if .Exhausted}} class="low"{{end}}>{{.PercentRemaining}}</td>
<td>{{.Delta}}</td>
<td>{{.CheckedAt.Format "15:04:05"}}</td>
</tr>
{{end}}</table>
{{end}}
{{end}}
{{template "footer"}}{{end}}
`
