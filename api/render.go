package api

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/saquibalam09/kanban/board"
	"github.com/saquibalam09/kanban/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const boardTemplate = "board.html"

// pageData feeds board.html.
type pageData struct {
	Board   board.View
	Form    domain.TaskInput
	Columns []domain.Column
	Loading bool
	Error   string
}

// Renderer renders the embedded page templates for echo.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() *Renderer {
	return &Renderer{templates: template.Must(template.ParseFS(templateFS, "templates/*.html"))}
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}
