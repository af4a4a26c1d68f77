// Package web holds the page templates and browser assets served by the
// cashflow server.
package web

import "embed"

// TemplatesFS holds the page shell and the dashboard and form partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds app.js and style.css, served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
