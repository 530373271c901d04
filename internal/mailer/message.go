package mailer

import (
	"bytes"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/newsflash/internal/email"
)

// Message is a single-recipient HTML email
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Date     time.Time
}

// Bytes renders the message as RFC 5322 data with a multipart/alternative
// body: a plain text rendition of the HTML followed by the HTML itself.
func (m *Message) Bytes() ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := writePart(mw, "text/plain; charset=utf-8", htmlToText(m.HTML)); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=utf-8", m.HTML); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	from := (&mail.Address{Name: m.FromName, Address: m.From}).String()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), email.ExtractDomainOrDefault(m.From, "localhost"))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	buf.WriteString("\r\n")
	buf.Write(body.Bytes())

	return buf.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, content string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(pw)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}

var (
	invisibleBlocks = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	blockBreaks     = regexp.MustCompile(`(?i)<(br|/p|/div|/h[1-6]|/li|/tr|hr)[^>]*>`)
	anyTag          = regexp.MustCompile(`<[^>]+>`)
	blankRuns       = regexp.MustCompile(`[ \t]+`)
	lineRuns        = regexp.MustCompile(`\n{3,}`)
)

// htmlToText produces a readable plain text fallback from an HTML body
func htmlToText(s string) string {
	s = invisibleBlocks.ReplaceAllString(s, "")
	s = blockBreaks.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankRuns.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = lineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
