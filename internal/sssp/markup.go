package sssp

import (
	"fmt"
	"html"
	"strings"
)

// Markup converts a vendor result into the HTML written into a container.
// iframe results carry the frame URL in Data and are rendered as a sized,
// borderless iframe; code results are vendor HTML written as is.
func Markup(r AdResult) (string, error) {
	switch r.Type {
	case TypeIframe:
		if r.Data == "" {
			return "", fmt.Errorf("%w: iframe without src", ErrUnsupportedType)
		}
		parts := []string{fmt.Sprintf(`src="%s"`, html.EscapeString(r.Data))}
		if r.Width > 0 {
			parts = append(parts, fmt.Sprintf(`width="%d"`, r.Width))
		}
		if r.Height > 0 {
			parts = append(parts, fmt.Sprintf(`height="%d"`, r.Height))
		}
		parts = append(parts, `frameborder="0"`, `scrolling="no"`, `style="border:0;display:block;"`)
		return fmt.Sprintf("<iframe %s></iframe>", strings.Join(parts, " ")), nil
	case TypeCode:
		return r.Data, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, r.Type)
	}
}
