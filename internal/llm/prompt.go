package llm

import (
	"strings"
)

const SystemPrompt = "You are a helpful assistant. Only respond with valid JSON."

const tablesInstructions = `You are a helpful assistant. Below is a table extracted from a PDF file in plain text. Your job is to extract the table(s) into valid JSON with proper structure.

Instructions:
- Identify each table using its heading (e.g. 'TABLE 1. Patient demographics').
- Use the first row of data as the column headers (e.g. 'SOA (n = 32)', 'TTA (n = 25)', 'p Value').
- For each data row, create an object with the exact column header names as keys.
- If a row acts as a group label (e.g. 'Presenting symptom, n (%)'), create a row with only a 'group' key.
- Do NOT create duplicate columns or add extra keys like 'Value', 'Value_TTA', 'p_Value'.
- Use the exact column names from the first row as keys.
- Output a JSON object like { "table_1": [...], "table_2": [...] }.
- Only return the JSON object, with no explanations or markdown formatting.

Example structure:
{
  "table_1": [
    {"group": "Clinical description"},
    {"SOA (n = 32)": "Age in yrs, mean ± SD", "TTA (n = 25)": "58.16 ± 16.16", "p Value": "0.87"},
    {"group": "Presenting symptom, n (%)"},
    {"SOA (n = 32)": "Incidental finding", "TTA (n = 25)": "6 (24)", "p Value": "0.73"}
  ]
}

`

// BuildUserPrompt composes the user message. With a template the model is
// asked one question per attribute; otherwise it transcribes the tables.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	if len(req.Template) == 0 {
		b.WriteString(tablesInstructions)
		b.WriteString(req.Markdown)
		return b.String()
	}

	b.WriteString("You are a helpful assistant. Below is a document converted from PDF to markdown. ")
	b.WriteString("Answer each attribute query from the document and return a JSON object.\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("- Use exactly the attribute names below as the top-level keys, in the same order.\n")
	b.WriteString("- When an answer lists several values, separate them with '; '.\n")
	b.WriteString("- When an answer is a table, use an array of objects keyed by the column headers.\n")
	b.WriteString("- When the document does not answer a query, use an empty string.\n")
	b.WriteString("- Only return the JSON object, with no explanations or markdown formatting.\n\n")
	b.WriteString("Attributes:\n")
	for _, a := range req.Template {
		b.WriteString("- ")
		b.WriteString(a.Name)
		if q := strings.TrimSpace(a.Query); q != "" {
			b.WriteString(": ")
			b.WriteString(q)
		}
		b.WriteString("\n")
	}
	if req.FilenameHint != "" {
		b.WriteString("\nFilename: ")
		b.WriteString(req.FilenameHint)
		b.WriteString("\n")
	}
	b.WriteString("\nDocument:\n")
	b.WriteString(req.Markdown)
	return b.String()
}
