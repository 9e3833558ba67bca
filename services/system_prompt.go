package services

import "google.golang.org/genai"

// stuffPromptTemplate places every retrieved chunk into one prompt.
const stuffPromptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.context}}

Question: {{.question}}
Helpful Answer:`

// GetSystemPrompt returns the instructions sent with every generation request.
func GetSystemPrompt() *genai.Content {
	prompt := `You are a precise assistant answering questions about a single set of documents, such as the files of a GitHub repository or the pages of a PDF.

Answer only from the context supplied with the question. When asked for a summary, cover the main topics of the context in a few short paragraphs. Quote file paths or page numbers when they help the reader find the source. Do not invent information. If the context does not contain the answer, say so.`

	contents := genai.Text(prompt)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}
