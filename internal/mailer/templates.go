package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

type kind string

const (
	kindWelcome kind = "welcome"
	kindVerify  kind = "verify"
	kindReset   kind = "reset"
)

var subjects = map[kind]string{
	kindWelcome: "Welcome to %s",
	kindVerify:  "%s: verify your email",
	kindReset:   "%s: password reset code",
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:sans-serif;max-width:560px;margin:auto">
<h2>{{.App}}</h2>
<p>Hello {{.Name}},</p>
{{template "body" .}}
<p style="color:#888;font-size:12px">If you did not request this, you can ignore this email.</p>
</body></html>{{end}}`

var bodies = map[kind]string{
	kindWelcome: `{{define "body"}}<p>Your account for {{.Email}} has been created.</p>
<p>Verify your email from the app to unlock every feature.</p>{{end}}`,
	kindVerify: `{{define "body"}}<p>Your verification code is:</p>
<p style="font-size:28px;letter-spacing:6px"><b>{{.OTP}}</b></p>
<p>It expires in {{.TTL}}.</p>{{end}}`,
	kindReset: `{{define "body"}}<p>Use this code to reset your password:</p>
<p style="font-size:28px;letter-spacing:6px"><b>{{.OTP}}</b></p>
<p>It expires in {{.TTL}}.</p>{{end}}`,
}

type templateData struct {
	App   string
	Name  string
	Email string
	OTP   string
	TTL   string
}

type templates map[kind]*template.Template

func parseTemplates() (templates, error) {
	out := make(templates, len(bodies))
	for k, body := range bodies {
		t, err := template.New(string(k)).Parse(layout)
		if err != nil {
			return nil, err
		}
		if _, err := t.Parse(body); err != nil {
			return nil, fmt.Errorf("template %s: %w", k, err)
		}
		out[k] = t
	}
	return out, nil
}

func (ts templates) render(k kind, d templateData) (subject string, html []byte, err error) {
	t, ok := ts[k]
	if !ok {
		return "", nil, fmt.Errorf("no template %q", k)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", d); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(subjects[k], d.App), buf.Bytes(), nil
}

func humanTTL(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(d.Round(time.Minute)/time.Minute))
}
