package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"smart-mail-responder-go/internal/model"
)

var (
	classifyPromptPattern = regexp.MustCompile(`(?s)Asunto: (.*?)\nContenido: (.*?)\nResponde solo con la categoría:`)
	respondPromptPattern  = regexp.MustCompile(`clasificado como '([^']*)'`)
)

const subjectPlaceholder = "{subject}"

var demoReplies = map[model.Category]string{
	model.CategorySupport: "Estimado cliente,\n\n" +
		"Hemos recibido su reporte sobre '" + subjectPlaceholder + "'. " +
		"Nuestro equipo de soporte se contactará con usted en las próximas 24 horas.\n\n" +
		"Atentamente,\nEl equipo de soporte",
	model.CategoryInquiry: "Gracias por su interés en nuestros servicios.\n\n" +
		"Hemos recibido su consulta sobre '" + subjectPlaceholder + "'. " +
		"Adjunto encontrará información detallada sobre nuestros productos.\n\n" +
		"Quedamos atentos a sus comentarios.\n\n" +
		"Cordialmente,\nEl equipo comercial",
	model.CategorySales: "Estimado/a,\n\n" +
		"Agradecemos su interés en colaborar con nosotros. " +
		"Nos encantaría programar una reunión para discutir oportunidades. " +
		"¿Estaría disponible el próximo miércoles a las 2pm?\n\n" +
		"Saludos cordiales,\nEl equipo de alianzas",
	model.CategoryOther: "Hemos recibido su mensaje con asunto: '" + subjectPlaceholder + "'.\n\n" +
		"Nos pondremos en contacto con usted pronto.\n\n" +
		"Atentamente,\nEl equipo de atención al cliente",
}

// DemoGenerator simulates the generation service without network access.
// Classification uses fixed keyword rules; replies are canned per category.
type DemoGenerator struct{}

// NewDemoGenerator creates a demo generator
func NewDemoGenerator() *DemoGenerator {
	return &DemoGenerator{}
}

// Name returns the provider name
func (g *DemoGenerator) Name() string {
	return "demo"
}

// Generate answers classification and reply prompts built by the template package.
func (g *DemoGenerator) Generate(_ context.Context, prompt string, opts Options) (string, error) {
	switch opts.Purpose {
	case PurposeClassify:
		m := classifyPromptPattern.FindStringSubmatch(prompt)
		if m == nil {
			return "", fmt.Errorf("demo: unrecognized classification prompt")
		}
		return KeywordCategory(m[1], m[2]).String(), nil
	case PurposeRespond:
		m := respondPromptPattern.FindStringSubmatch(prompt)
		if m == nil {
			return "", fmt.Errorf("demo: unrecognized reply prompt")
		}
		return DemoReply(model.ParseCategory(m[1]), opts.Subject), nil
	}
	return "", fmt.Errorf("demo: unsupported purpose %q", opts.Purpose)
}

// DemoReply returns the canned reply for category, quoting subject.
func DemoReply(category model.Category, subject string) string {
	reply, ok := demoReplies[category]
	if !ok {
		reply = demoReplies[model.CategoryOther]
	}
	return strings.ReplaceAll(reply, subjectPlaceholder, subject)
}

// KeywordCategory applies the demo keyword rules to a subject and body.
// It never yields spam.
func KeywordCategory(subject, body string) model.Category {
	subject = strings.ToLower(subject)
	body = strings.ToLower(body)

	switch {
	case strings.Contains(body, "problema") || strings.Contains(body, "dañado"):
		return model.CategorySupport
	case strings.Contains(subject, "consulta") || strings.Contains(body, "información"):
		return model.CategoryInquiry
	case strings.Contains(body, "colaboración") || strings.Contains(body, "reunión"):
		return model.CategorySales
	}
	return model.CategoryOther
}
