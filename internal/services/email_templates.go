package services

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>{{.Title}}</h1>
    <p>{{.Intro}}</p>
    <p><a href="{{.Link}}" style="display: inline-block; background-color: #0066cc; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 4px;">{{.Action}}</a></p>
    <p>Or paste this link into your browser:<br><code>{{.Link}}</code></p>
    <p>This link expires in {{.ExpiresIn}}.</p>
    <p style="color: #666; font-size: 12px;">{{.Footer}}</p>
  </div>
</body>
</html>
`))

type emailContent struct {
	Title     string
	Intro     string
	Action    string
	Link      string
	ExpiresIn string
	Footer    string
}

func renderEmail(to, subject string, c emailContent) (Message, error) {
	var html bytes.Buffer
	if err := emailLayout.Execute(&html, c); err != nil {
		return Message{}, fmt.Errorf("failed to render %q email: %w", subject, err)
	}

	text := fmt.Sprintf("%s\n\n%s\n\n%s\n\nThis link expires in %s.\n\n%s\n",
		c.Title, c.Intro, c.Link, c.ExpiresIn, c.Footer)

	return Message{To: to, Subject: subject, HTMLBody: html.String(), TextBody: text}, nil
}

func verificationEmail(to, link string, ttl time.Duration) (Message, error) {
	return renderEmail(to, "Verify your email address", emailContent{
		Title:     "Verify your email address",
		Intro:     "Thanks for signing up. Confirm your address to finish creating your account.",
		Action:    "Verify email",
		Link:      link,
		ExpiresIn: humanDuration(ttl),
		Footer:    "If you did not create this account you can ignore this email.",
	})
}

func passwordResetEmail(to, link string, ttl time.Duration) (Message, error) {
	return renderEmail(to, "Reset your password", emailContent{
		Title:     "Reset your password",
		Intro:     "We received a request to reset the password for your account.",
		Action:    "Reset password",
		Link:      link,
		ExpiresIn: humanDuration(ttl),
		Footer:    "If you did not ask for a reset, no action is needed. Your password is unchanged.",
	})
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
