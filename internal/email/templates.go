package email

import "html/template"

// templates holds the HTML alternative for each notification mail.
// Styles stay inline so the messages render predictably across mail
// clients.
var templates = template.Must(template.New("").Parse(`
{{define "activation"}}<!DOCTYPE html>
<html>
  <body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933;margin:0;padding:24px">
    <p>Hello {{.Name}},</p>
    <p>Confirm your email address to activate your Chronicle account:</p>
    <p style="margin:24px 0">
      <a href="{{.Link}}" style="background:#1a73e8;color:#ffffff;padding:12px 24px;border-radius:4px;text-decoration:none">Activate account</a>
    </p>
    <p>This link expires in 24 hours.</p>
    <p style="color:#6b7280;font-size:13px">If you did not sign up, ignore this email.</p>
  </body>
</html>
{{end}}

{{define "password_reset"}}<!DOCTYPE html>
<html>
  <body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933;margin:0;padding:24px">
    <p>Hello {{.Name}},</p>
    <p>We received a request to reset your Chronicle password:</p>
    <p style="margin:24px 0">
      <a href="{{.Link}}" style="background:#1a73e8;color:#ffffff;padding:12px 24px;border-radius:4px;text-decoration:none">Reset password</a>
    </p>
    <p>This link expires in 1 hour.</p>
    <p style="color:#6b7280;font-size:13px">If you did not request a reset, ignore this email; your password has not changed.</p>
  </body>
</html>
{{end}}

{{define "password_changed"}}<!DOCTYPE html>
<html>
  <body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933;margin:0;padding:24px">
    <p>Hello {{.Name}},</p>
    <p>Your Chronicle password was just changed.</p>
    <p style="color:#6b7280;font-size:13px">If this was not you, request a password reset immediately.</p>
  </body>
</html>
{{end}}
`))
