package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mail2cal/internal/reconcile"
	"mail2cal/internal/store"
)

// CompareBatch scores one candidate against every tracked event in a
// single prompt. It satisfies the reconcile.SimilarityScorer interface;
// timeout and retry live in the caller.
func (c *Client) CompareBatch(ctx context.Context, cand *reconcile.CandidateEvent, existing []*store.TrackedEvent) ([]float64, error) {
	if len(existing) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Eres un asistente que detecta eventos escolares duplicados. Dos descripciones pueden referirse al mismo evento real aunque vengan de distintos profesores, con títulos distintos o fechas levemente corridas.

Evento nuevo:
%s

Eventos existentes:
`, describeCandidate(cand))
	for i, ev := range existing {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeTracked(ev))
	}
	fmt.Fprintf(&b, `
Para cada evento existente entrega un puntaje de similitud entre 0.0 (sin relación) y 1.0 (mismo evento real), en el mismo orden.

Responde ÚNICAMENTE con JSON de la forma {"scores": [%d números]}.`, len(existing))

	text, err := c.complete(ctx, b.String())
	if err != nil {
		return nil, err
	}
	doc, err := extractJSON(text, '{')
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("decoding similarity scores: %w", err)
	}
	return parsed.Scores, nil
}

func describeCandidate(c *reconcile.CandidateEvent) string {
	window := "sin hora"
	if c.Start != nil {
		window = c.Start.Format("15:04")
		if c.End != nil {
			window += "-" + c.End.Format("15:04")
		}
	}
	return fmt.Sprintf("título: %q, fecha: %s, hora: %s, lugar: %q, detalles: %s",
		c.Title, c.Date.Format("2006-01-02"), window, c.Location, clip(c.Description))
}

func describeTracked(ev *store.TrackedEvent) string {
	window := "sin hora"
	switch {
	case ev.AllDay:
		window = "todo el día"
	case ev.Start != nil:
		window = ev.Start.Format("15:04")
		if ev.End != nil {
			window += "-" + ev.End.Format("15:04")
		}
	}
	return fmt.Sprintf("título: %q, fecha: %s, hora: %s, lugar: %q, detalles: %s",
		ev.Title, ev.Date.Format("2006-01-02"), window, ev.Location, clip(ev.Description))
}

func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 300 {
		s = cutAtRune(s, 300) + "..."
	}
	if s == "" {
		s = "ninguno"
	}
	return s
}
