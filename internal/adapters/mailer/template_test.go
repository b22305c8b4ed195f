package mailer

import (
	"strings"
	"testing"

	"rentwatch/internal/domain"
)

func TestRenderEmailEscapesHTML(t *testing.T) {
	body, err := RenderEmail(domain.DeliveryJob{
		Title:   "Счёт <b>INV-1</b>",
		Message: "Остаток: 100.00 €",
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if strings.Contains(body, "<b>INV-1</b>") {
		t.Fatalf("разметка из заголовка должна экранироваться: %q", body)
	}
	if !strings.Contains(body, "Остаток: 100.00 €") {
		t.Fatalf("в теле нет текста уведомления: %q", body)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("noreply@example.com", "t@example.com", "Тема", "<p>Тело</p>"))
	for _, want := range []string{
		"From: noreply@example.com\r\n",
		"To: t@example.com\r\n",
		"Subject: Тема\r\n",
		"Content-Type: text/html; charset=\"UTF-8\"\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("в письме нет заголовка %q: %q", want, msg)
		}
	}
}
