package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mail2cal/internal/logging"
	"mail2cal/internal/reconcile"
)

// Classify reports whether the email announces anything that belongs on a
// calendar. It is a cheap pre-filter so newsletters and administrivia
// never reach the extractor.
func (c *Client) Classify(ctx context.Context, m Message) (bool, error) {
	prompt := fmt.Sprintf(`Eres un asistente que revisa correos de un colegio chileno.

¿Contiene este correo al menos un evento concreto con fecha (reunión, salida, acto, taller, prueba, celebración u otro)? Información general sin fecha no cuenta.

Responde con una sola palabra: YES o NO.

Asunto: %s
Remitente: %s
Fecha del correo: %s

%s`, m.Subject, m.Sender, m.Date.Format("2006-01-02"), truncate(m.Body, 6000))

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return false, err
	}
	answer := strings.ToUpper(strings.TrimSpace(text))
	return strings.HasPrefix(answer, "YES") || strings.HasPrefix(answer, "SÍ") || strings.HasPrefix(answer, "SI"), nil
}

// extractedEvent mirrors the JSON shape the extraction prompt asks for.
type extractedEvent struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Recurring   bool   `json:"recurring"`
}

// Extract pulls every dated event out of one email. Events whose date
// cannot be parsed come back with a zero date so the caller can report
// them instead of silently dropping them.
func (c *Client) Extract(ctx context.Context, m Message) ([]*reconcile.CandidateEvent, error) {
	prompt := c.extractionPrompt(m)
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extracting events from %s: %w", m.ID, err)
	}

	doc, err := extractJSON(text, '[')
	if err != nil {
		return nil, fmt.Errorf("extracting events from %s: %w", m.ID, err)
	}
	var raw []extractedEvent
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("decoding events from %s: %w", m.ID, err)
	}

	var out []*reconcile.CandidateEvent
	for _, ev := range raw {
		if strings.TrimSpace(ev.Title) == "" {
			continue
		}
		cand := &reconcile.CandidateEvent{
			SourceID:    m.ID,
			Sender:      m.Sender,
			Title:       strings.TrimSpace(ev.Title),
			Description: strings.TrimSpace(ev.Description),
			Location:    strings.TrimSpace(ev.Location),
			Recurring:   ev.Recurring,
		}
		date, err := time.ParseInLocation("2006-01-02", ev.Date, c.loc)
		if err != nil {
			c.logger.Warn("extracted event has unusable date",
				logging.SourceID(m.ID),
				"date", ev.Date,
				"title", ev.Title)
			out = append(out, cand)
			continue
		}
		cand.Date = date
		if start, ok := parseClock(ev.StartTime); ok {
			t := date.Add(start)
			cand.Start = &t
			if end, ok := parseClock(ev.EndTime); ok && end > start {
				e := date.Add(end)
				cand.End = &e
			}
		}
		out = append(out, cand)
	}
	return out, nil
}

func (c *Client) extractionPrompt(m Message) string {
	return fmt.Sprintf(`Eres un asistente que extrae eventos escolares de correos de un colegio chileno. El año escolar corre de marzo a diciembre. Las fechas sin año pertenecen al año escolar en curso.

Extrae TODOS los eventos con fecha concreta del siguiente correo. Para cada evento entrega:
- "title": título corto del evento
- "date": fecha en formato YYYY-MM-DD
- "start_time": hora de inicio "HH:MM" en formato 24 horas, o null si el correo no la indica. No inventes horas.
- "end_time": hora de término "HH:MM", o null
- "description": detalles relevantes (qué llevar, uniforme, curso)
- "location": lugar, o "" si no se indica
- "recurring": true solo si el correo dice que se repite semanalmente

Responde ÚNICAMENTE con un arreglo JSON. Sin eventos: [].

Asunto: %s
Remitente: %s
Fecha del correo: %s

%s`, m.Subject, m.Sender, m.Date.Format("2006-01-02"), truncate(m.Body, 10000))
}

// parseClock parses "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, false
	}
	var h, min int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &min); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || min < 0 || min > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(min)*time.Minute, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return cutAtRune(s, max) + "\n[... truncado ...]"
}
