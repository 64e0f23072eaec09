// internal/app/features/phone/templates.go
package phone

import (
	"embed"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var FS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "phone",
		FS:       FS,
		Patterns: []string{"templates/*.gohtml"},
	})
}
