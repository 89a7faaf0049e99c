package estimator

import (
	"strings"
	"text/template"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// EndOfReasoning separa el razonamiento libre del JSON final en la respuesta del modelo.
const EndOfReasoning = "[END_OF_REASONING]"

const promptTemplate = `**[Persona]**
You are a committee of three world-class prediction market analysts and domain experts, assembled to analyze a prediction market.
- **Analyst A (The Bull):** Build the strongest case for "YES".
- **Analyst B (The Bear):** Build the strongest case for "NO".
- **Analyst C (The Moderator):** Weigh both sides and give a precise probability.

**[Market Information]**
- **Question:** {{.Question}}
- **Resolution Criteria:** {{.Criteria}}
- **Resolution Date:** {{.CloseDate}}

**[Deep Research Protocol]**
Use official sources, news, blogs/experts, social sentiment, and historical context.

**[Output Format]**
Stream your reasoning. After you have explained your thinking, write the token ` + "`" + EndOfReasoning + "`" + ` on a new line.
Then provide a JSON object with keys "probability" (0..1) and "confidence" ("Low"|"Medium"|"High").
`

var tmpl = template.Must(template.New("prompt").Parse(promptTemplate))

type promptData struct {
	Question  string
	Criteria  string
	CloseDate string
}

// BuildPrompt arma el prompt del comité de analistas para un mercado.
func BuildPrompt(m domain.Market) string {
	data := promptData{
		Question:  orNA(m.Question),
		Criteria:  orNA(m.Description),
		CloseDate: formatCloseTime(m.CloseTime),
	}
	var b strings.Builder
	// el template es constante y los campos son strings: Execute no puede fallar
	_ = tmpl.Execute(&b, data)
	return b.String()
}

func formatCloseTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
