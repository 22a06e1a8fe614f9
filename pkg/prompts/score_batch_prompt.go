package prompts

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed templates/score_batch_prompt.tmpl
var scoreBatchPromptTemplate string

//go:embed templates/score_batch_input.tmpl
var scoreBatchInputTemplate string

type ScoreBatchPrompt struct {
	Count      int
	Categories string
	Schema     string
}

type ScoreBatchEmail struct {
	Index   int
	Sender  string
	Subject string
	Excerpt string
}

type ScoreBatchInput struct {
	Emails []ScoreBatchEmail
}

func BuildScoreBatchPrompt(data ScoreBatchPrompt) (string, error) {
	tmpl, err := template.New("score_batch").Parse(scoreBatchPromptTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}

func BuildScoreBatchInput(data ScoreBatchInput) (string, error) {
	tmpl, err := template.New("score_batch_input").Parse(scoreBatchInputTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
