package mailer

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// Branding fills the shared footer/header fields of every mail.
type Branding struct {
	CompanyName  string
	FrontendURL  string
	SupportEmail string
}

type otpData struct {
	Name string
	Code string
	Branding
}

type resetData struct {
	Name      string
	ResetLink string
	Branding
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func RenderOTP(name, code string, branding Branding) (subject, body string, err error) {
	body, err = render("verify-otp.html.tmpl", otpData{Name: name, Code: code, Branding: branding})
	return "Verify your account", body, err
}

func RenderReset(name, resetLink string, branding Branding) (subject, body string, err error) {
	body, err = render("reset-password.html.tmpl", resetData{Name: name, ResetLink: resetLink, Branding: branding})
	return "Reset Your Password", body, err
}
