package gmail

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

// Email is one message reduced to the fields the extractor needs.
type Email struct {
	ID          string
	Sender      string
	Subject     string
	Date        time.Time
	Body        string
	Attachments []string
}

// ParseMessage flattens a full Gmail message into an Email. The body
// prefers text/plain parts; HTML parts are tag-stripped as a fallback.
// Attachment contents are not fetched, but their filenames are noted in
// the body so the extractor knows referenced material exists.
func ParseMessage(msg *gmail.Message) *Email {
	e := &Email{ID: msg.Id}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				e.Sender = h.Value
			case "subject":
				e.Subject = h.Value
			case "date":
				if t, err := parseDateHeader(h.Value); err == nil {
					e.Date = t
				}
			}
		}
	}
	if e.Date.IsZero() && msg.InternalDate > 0 {
		e.Date = time.UnixMilli(msg.InternalDate)
	}

	var plain, html strings.Builder
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if part.Filename != "" {
			e.Attachments = append(e.Attachments, part.Filename)
			return
		}
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		data, err := decodeBody(part.Body.Data)
		if err != nil {
			return
		}
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain"):
			plain.Write(data)
		case strings.HasPrefix(part.MimeType, "text/html"):
			html.Write(data)
		}
	})

	e.Body = plain.String()
	if strings.TrimSpace(e.Body) == "" {
		e.Body = StripHTML(html.String())
	}
	for _, name := range e.Attachments {
		e.Body += fmt.Sprintf("\n[Archivo adjunto: %s]", name)
	}
	return e
}

// walkParts visits a message part and all nested parts.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, p := range part.Parts {
		walkParts(p, fn)
	}
}

// decodeBody decodes Gmail body data, which is base64url per RFC 4648
// but occasionally standard base64 in the wild.
func decodeBody(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(data)
}

var (
	tagPattern    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	breakPattern  = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</tr>`)
	htmlPattern   = regexp.MustCompile(`<[^>]*>`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	entityReplace = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
)

// StripHTML reduces an HTML body to readable plain text.
func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = breakPattern.ReplaceAllString(s, "\n")
	s = htmlPattern.ReplaceAllString(s, "")
	s = entityReplace.Replace(s)
	s = spacePattern.ReplaceAllString(s, " ")
	s = blankPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func parseDateHeader(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", "2 Jan 2006 15:04:05 -0700"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date header %q", v)
}

// IsIgnoredSubject reports whether the subject matches one of the
// configured throwaway subjects, ignoring case and surrounding noise.
func IsIgnoredSubject(subject string, ignored []string) bool {
	s := strings.ToLower(subject)
	for _, ig := range ignored {
		ig = strings.ToLower(strings.TrimSpace(ig))
		if ig != "" && strings.Contains(s, ig) {
			return true
		}
	}
	return false
}
