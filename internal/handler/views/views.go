// Package views renders the companion's pages as templ components. The
// *_templ.go files are generated from the .templ sources with `templ generate`.
package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/companion/internal/model"
)

// appPath prefixes an absolute app path with the request's base path.
func appPath(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

// FormatMarks prints marks without trailing zeros: 3, 3.5, 2.25.
func FormatMarks(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
