package mailer

import (
	"fmt"
	"html/template"
	"strings"

	"rentwatch/internal/domain"
)

var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="ru">
<body style="font-family: sans-serif; color: #222; max-width: 600px;">
  <h2 style="margin-bottom: 4px;">{{.Title}}</h2>
  <div style="white-space: pre-line;">{{.Message}}</div>
  <hr style="border: none; border-top: 1px solid #ddd; margin-top: 24px;">
  <p style="color: #888; font-size: 12px;">Это автоматическое уведомление, отвечать на него не нужно.</p>
</body>
</html>`))

// RenderEmail собирает HTML-тело письма по задаче доставки.
func RenderEmail(job domain.DeliveryJob) (string, error) {
	var b strings.Builder
	err := emailTmpl.Execute(&b, struct {
		Title   string
		Message string
	}{Title: job.Title, Message: job.Message})
	if err != nil {
		return "", fmt.Errorf("рендер письма: %w", err)
	}
	return b.String(), nil
}
