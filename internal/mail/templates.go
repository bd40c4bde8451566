package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var otpHTML = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Email Verification</h2>
  <p>Use the code below to verify your email:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>This code expires in {{.Minutes}} minutes.</p>
  <p>If you didn't request this code, please ignore this email.</p>
</body>
</html>`))

var welcomeHTML = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Welcome aboard!</h2>
  <p>Hello {{.Email}},</p>
  <p>Your email has been verified. You now have full access to your account.</p>
</body>
</html>`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func otpMessage(to, code string, ttl time.Duration) (Message, error) {
	minutes := int(ttl.Minutes())
	html, err := render(otpHTML, struct {
		Code    string
		Minutes int
	}{code, minutes})
	if err != nil {
		return Message{}, fmt.Errorf("render otp email: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Verify Your Email - OTP Code",
		Text:    fmt.Sprintf("Your OTP code is: %s\n\nThis code will expire in %d minutes.\n\nIf you didn't request this, please ignore this email.", code, minutes),
		HTML:    html,
	}, nil
}

func welcomeMessage(to string) (Message, error) {
	html, err := render(welcomeHTML, struct{ Email string }{to})
	if err != nil {
		return Message{}, fmt.Errorf("render welcome email: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Welcome! Your account is verified",
		Text:    "Welcome! Your email has been successfully verified.\n\nThank you for joining us!",
		HTML:    html,
	}, nil
}
