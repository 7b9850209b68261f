package handlers

import (
	"embed"
	"html/template"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexView struct {
	Prediction      string
	Confidence      float64
	HasConfidence   bool
	IsError         bool
	Recommendations bool
}
