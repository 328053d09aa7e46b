package email

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
	"unicode"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
)

var bodyTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
  <body>
    <p>Hello {{.Name}},</p>
    <p>{{.Intro}}</p>
    {{if .Details}}<table>
      {{range .Details}}<tr><td><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>
      {{end}}</table>{{end}}
    <p>Thank you!</p>
    {{if .PixelURL}}<img src="{{.PixelURL}}" width="1" height="1" alt="" style="display:none" />{{end}}
  </body>
</html>
`))

type templateDetail struct {
	Label string
	Value string
}

type templateData struct {
	Name     string
	Intro    string
	Details  []templateDetail
	PixelURL string
}

func introFor(typ domain.Type) string {
	switch typ {
	case domain.TypePromotion:
		return "We have a special offer picked out for you."
	case domain.TypeOrderUpdate:
		return "There is an update on your order."
	case domain.TypeRecommendation:
		return "Here are some products we think you will like."
	case domain.TypeUserUpdate:
		return "Your account was recently updated."
	default:
		return "You have a new notification."
	}
}

// renderHTML builds the notification body. Content entries are flattened into
// a details table in key order so renders are stable.
func renderHTML(name string, typ domain.Type, content domain.Payload, pixelURL string) (string, error) {
	data := templateData{
		Name:     name,
		Intro:    introFor(typ),
		Details:  contentDetails(content),
		PixelURL: pixelURL,
	}

	var sb strings.Builder
	if err := bodyTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render email body: %w", err)
	}
	return sb.String(), nil
}

func renderText(name string, typ domain.Type, content domain.Payload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello %s,\n\n%s\n", name, introFor(typ))
	for _, detail := range contentDetails(content) {
		fmt.Fprintf(&sb, "%s: %s\n", detail.Label, detail.Value)
	}
	sb.WriteString("\nThank you!\n")
	return sb.String()
}

func contentDetails(content domain.Payload) []templateDetail {
	if len(content) == 0 {
		return nil
	}

	keys := make([]string, 0, len(content))
	for key := range content {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	details := make([]templateDetail, 0, len(keys))
	for _, key := range keys {
		details = append(details, templateDetail{
			Label: labelFor(key),
			Value: fmt.Sprintf("%v", content[key]),
		})
	}
	return details
}

// labelFor turns a camelCase payload key into a display label, so
// "orderId" reads as "Order Id".
func labelFor(key string) string {
	var sb strings.Builder
	for i, r := range key {
		if i == 0 {
			sb.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			sb.WriteRune(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
