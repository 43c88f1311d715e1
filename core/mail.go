package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"path"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/tmalira/shule/fs"
)

var (
	textTemplates *texttmpl.Template
	htmlTemplates *htmltmpl.Template
	tmplInit      sync.Once
	tmplInitErr   error
)

type (
	Attachment struct {
		Content     *bytes.Buffer
		ContentType string
		Filename    string
	}

	// EmailMessage is a transport-agnostic email. Content is either a plain
	// BodyStr or a pair of embedded templates named TemplateName (.txt/.html)
	// rendered with TemplateData.
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string
		Attachments []Attachment

		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string

		// FrontendBaseURL is exposed to templates for building links.
		FrontendBaseURL string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently.
		SendMessages(messages ...*EmailMessage)
	}
)

func loadTemplates() error {
	tmplInit.Do(func() {
		textTemplates, tmplInitErr = texttmpl.ParseFS(appfs.FS, "templates/*.txt")
		if tmplInitErr != nil {
			tmplInitErr = errors.Wrap(tmplInitErr, "parsing text templates")
			return
		}
		htmlTemplates, tmplInitErr = htmltmpl.ParseFS(appfs.FS, "templates/*.html")
		if tmplInitErr != nil {
			tmplInitErr = errors.Wrap(tmplInitErr, "parsing html templates")
		}
	})
	return tmplInitErr
}

func (m *EmailMessage) contextData() ContextData {
	return ContextData{
		FrontendBaseURL: m.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

// Render resolves TextContent and HTMLContent from BodyStr or the message's
// templates. It is idempotent.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" || m.TextContent != "" {
		return nil
	}
	if err := loadTemplates(); err != nil {
		return err
	}

	var text bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, path.Base(m.TemplateName)+".txt", m.contextData()); err != nil {
		return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
	}
	m.TextContent = text.String()

	var html bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, path.Base(m.TemplateName)+".html", m.contextData()); err != nil {
		return errors.Wrapf(err, "rendering %s.html", m.TemplateName)
	}
	m.HTMLContent = html.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool {
	return len(m.To) > 0 || len(m.Cc) > 0 || len(m.Bcc) > 0
}

func (m *EmailMessage) HasContent() bool {
	return m.BodyStr != "" || m.TemplateName != "" || m.TextContent != "" || m.HTMLContent != ""
}

func (m *EmailMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}
