package template

import (
	"fmt"
	"strings"

	"smart-mail-responder-go/internal/model"
)

const (
	// MaxPromptBody is the number of body characters embedded in a reply prompt.
	MaxPromptBody = 2000
	// MaxClassificationBody is the number of body characters sent for classification.
	MaxClassificationBody = 1000
)

var categoryInstructions = map[model.Category]string{
	model.CategorySupport: "El cliente está reportando un problema. " +
		"Ofrece disculpas si corresponde, explica los próximos pasos " +
		"y asegura que el equipo de soporte se contactará pronto.",
	model.CategorySales: "Es una consulta comercial. Responde de manera persuasiva, " +
		"destaca los beneficios y ofrece continuar la conversación.",
	model.CategoryInquiry: "Es una consulta general. Proporciona información clara y concisa, " +
		"y ofrece ayuda adicional si es necesario.",
}

var fallbackResponses = map[model.Category]string{
	model.CategorySupport: "Estimado cliente,\n\n" +
		"Hemos recibido su solicitud de soporte. " +
		"Nuestro equipo se contactará con usted pronto.\n\n" +
		"Atentamente,\nEl equipo de soporte",
	model.CategorySales: "Estimado/a,\n\n" +
		"Gracias por su interés en nuestros productos. " +
		"Pronto nos comunicaremos con usted.\n\n" +
		"Cordialmente,\nEl equipo comercial",
	model.CategoryInquiry: "Estimado/a,\n\n" +
		"Hemos recibido su consulta y le responderemos a la brevedad.\n\n" +
		"Atentamente,\nEl equipo de atención al cliente",
}

const genericFallback = "Hemos recibido su mensaje. Nos pondremos en contacto pronto.\n\n" +
	"Atentamente,\nEl equipo de atención al cliente"

// Builder composes generation prompts for a given operator locale.
type Builder struct {
	language    string
	companyName string
}

// NewBuilder creates a prompt builder. language names the reply language
// (e.g. "español"); companyName is used for the signature element.
func NewBuilder(language, companyName string) *Builder {
	if language == "" {
		language = "español"
	}
	return &Builder{language: language, companyName: companyName}
}

// BuildPrompt builds the reply-generation prompt for body and category.
func (b *Builder) BuildPrompt(body string, category model.Category) string {
	signature := "- Nombre del equipo/firma\n\n"
	if b.companyName != "" {
		signature = fmt.Sprintf("- Nombre del equipo/firma (%s)\n\n", b.companyName)
	}

	prompt := "Eres un asistente automatizado de respuestas por email. " +
		fmt.Sprintf("Genera una respuesta profesional y adecuada en %s. ", b.language) +
		fmt.Sprintf("El email recibido es clasificado como '%s'. ", category) +
		"El contenido del email es:\n\n" +
		Truncate(body, MaxPromptBody) + "\n\n" +
		"Por favor genera una respuesta adecuada que incluya:\n" +
		"- Saludo personalizado\n" +
		"- Reconocimiento del tema\n" +
		"- Solución o siguiente paso\n" +
		"- Despedida cordial\n" +
		signature +
		"Respuesta:"

	return prompt + "\n" + categoryInstructions[category]
}

// BuildFallback returns the static reply used when generation fails.
func BuildFallback(category model.Category) string {
	if text, ok := fallbackResponses[category]; ok {
		return text
	}
	return genericFallback
}

// BuildClassificationPrompt asks for exactly one label out of the category set.
func BuildClassificationPrompt(subject, body string) string {
	labels := make([]string, 0, len(model.Categories()))
	for _, c := range model.Categories() {
		labels = append(labels, "'"+c.String()+"'")
	}

	return fmt.Sprintf(
		"Clasifica este email en una de estas categorías: [%s]\n\n"+
			"Asunto: %s\n"+
			"Contenido: %s\n"+
			"Responde solo con la categoría:",
		strings.Join(labels, ", "), subject, Truncate(body, MaxClassificationBody),
	)
}

// Truncate cuts s to at most n characters (runes).
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
