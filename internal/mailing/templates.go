package mailing

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"net/url"
	"strings"

	"github.com/osteele/liquid"

	"github.com/lumail/lumail/internal/domain"
)

// Renderer turns a campaign's subject/content plus one recipient into the
// final HTML and plain-text message bodies. Personalization tags use Liquid
// ({{ first_name | default: "Friend" }}); missing variables render empty.
type Renderer struct {
	engine     *liquid.Engine
	wrapper    *template.Template
	appBaseURL string
	fromName   string
}

// NewRenderer creates a renderer. appBaseURL is the public base for
// unsubscribe links; fromName appears in the branding header and footer.
func NewRenderer(appBaseURL, fromName string) *Renderer {
	engine := liquid.NewEngine()

	// Default value filter: {{ first_name | default: "Friend" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// URL encode: {{ email | urlencode }}
	engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	return &Renderer{
		engine:     engine,
		wrapper:    template.Must(template.New("email").Parse(emailWrapperHTML)),
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		fromName:   fromName,
	}
}

// RenderedMessage is the output of rendering one recipient's email.
type RenderedMessage struct {
	Subject string
	HTML    string
	Text    string
}

// Render produces the personalized subject, HTML body, and plain-text body
// for a single recipient. The unsubscribe token must already be minted.
func (r *Renderer) Render(req *domain.SendRequest, rcpt domain.Recipient, token string) (*RenderedMessage, error) {
	bindings := r.bindings(rcpt)

	subject := r.personalize(req.Subject, bindings)
	content := r.personalize(req.Content, bindings)
	if req.IsTest {
		subject = "[TEST] " + subject
	}

	unsubscribeURL := fmt.Sprintf("%s/unsubscribe?token=%s", r.appBaseURL, url.QueryEscape(token))

	// Escape first, then convert line breaks to the HTML display form.
	escaped := html.EscapeString(content)
	htmlContent := strings.ReplaceAll(escaped, "\n", "<br>\n")

	var buf bytes.Buffer
	err := r.wrapper.Execute(&buf, wrapperData{
		IsTest:         req.IsTest,
		FromName:       r.fromName,
		FromEmail:      req.FromEmail,
		Content:        template.HTML(htmlContent),
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return nil, fmt.Errorf("render wrapper: %w", err)
	}

	text := content + "\n\n--\nUnsubscribe: " + unsubscribeURL + "\n"

	return &RenderedMessage{Subject: subject, HTML: buf.String(), Text: text}, nil
}

// personalize runs Liquid substitution, falling back to the raw source when
// the template fails to parse. Production sends must never abort on a bad tag.
func (r *Renderer) personalize(source string, bindings liquid.Bindings) string {
	if !strings.Contains(source, "{{") && !strings.Contains(source, "{%") {
		return source
	}
	out, err := r.engine.ParseAndRenderString(source, bindings)
	if err != nil {
		return source
	}
	return out
}

func (r *Renderer) bindings(rcpt domain.Recipient) liquid.Bindings {
	firstName := rcpt.Name
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	return liquid.Bindings{
		"email":      rcpt.Email,
		"name":       rcpt.Name,
		"first_name": firstName,
		"id":         rcpt.ID,
	}
}

type wrapperData struct {
	IsTest         bool
	FromName       string
	FromEmail      string
	Content        template.HTML
	UnsubscribeURL string
}

// emailWrapperHTML is the fixed branding wrapper around every campaign body.
const emailWrapperHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Email</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f8f9fa;
        }
        .email-container {
            background-color: #ffffff;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);
        }
        .email-header {
            border-bottom: 2px solid #e9ecef;
            padding-bottom: 20px;
            margin-bottom: 30px;
        }
        .email-content {
            margin-bottom: 30px;
        }
        .email-footer {
            border-top: 1px solid #e9ecef;
            padding-top: 20px;
            font-size: 12px;
            color: #6c757d;
            text-align: center;
        }
        .unsubscribe-link {
            color: #6c757d;
            text-decoration: none;
        }
        .test-banner {
            background-color: #fff3cd;
            border: 1px solid #ffeaa7;
            color: #856404;
            padding: 10px;
            border-radius: 4px;
            margin-bottom: 20px;
            text-align: center;
            font-weight: bold;
        }
    </style>
</head>
<body>
    <div class="email-container">
        {{if .IsTest}}<div class="test-banner">This is a test email</div>{{end}}

        <div class="email-header">
            <h2 style="margin: 0; color: #2c3e50;">{{.FromName}} Newsletter</h2>
        </div>

        <div class="email-content">
            {{.Content}}
        </div>

        <div class="email-footer">
            <p>
                This email was sent from <strong>{{.FromEmail}}</strong><br>
                If you no longer wish to receive these emails, you can
                <a href="{{.UnsubscribeURL}}" class="unsubscribe-link">unsubscribe here</a>.
            </p>
            <p>
                Sent by {{.FromName}} Campaign Manager
            </p>
        </div>
    </div>
</body>
</html>
`
