package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
	"github.com/vmaslov/safety-docs-qa/internal/observability/logging"
)

type questionEntry struct {
	Question string `json:"question"`
}

type columnResult struct {
	Answer string
	Source string
	Score  string
}

func main() {
	apiURL := flag.String("api", "http://127.0.0.1:8080/ask", "ask endpoint URL")
	questionsFile := flag.String("questions", "questions.json", "path to the questions file")
	flag.Parse()

	slog.SetDefault(logging.New("evaluate", "info"))

	questions, err := loadQuestions(*questionsFile)
	if err != nil {
		slog.Error("load_questions_failed", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 60 * time.Second}

	var rows [][]string
	for _, item := range questions {
		slog.Info("evaluating", "question", item.Question)

		baseline := queryAPI(client, *apiURL, item.Question, domain.ModeBaseline)
		reranked := queryAPI(client, *apiURL, item.Question, domain.ModeReranked)

		rows = append(rows, []string{
			item.Question,
			baseline.Answer,
			baseline.Source,
			reranked.Answer,
			reranked.Source,
		})
	}

	fmt.Println()
	fmt.Println("--- Evaluation Results ---")
	printMarkdownTable(
		[]string{"Question", "Baseline Answer (Top Chunk)", "Baseline Source", "Reranked Answer (Top Chunk)", "Reranked Source"},
		rows,
	)
}

func loadQuestions(path string) ([]questionEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	var questions []questionEntry
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("parse questions file: %w", err)
	}
	return questions, nil
}

func queryAPI(client *http.Client, apiURL, question string, mode domain.Mode) columnResult {
	payload, _ := json.Marshal(map[string]any{
		"q":    question,
		"k":    1,
		"mode": string(mode),
	})

	resp, err := client.Post(apiURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return columnResult{Answer: fmt.Sprintf("API Error: %v", err), Source: "N/A", Score: "N/A"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return columnResult{Answer: fmt.Sprintf("API Error: status %d", resp.StatusCode), Source: "N/A", Score: "N/A"}
	}

	var data domain.AnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return columnResult{Answer: fmt.Sprintf("API Error: %v", err), Source: "N/A", Score: "N/A"}
	}

	if data.Answer == nil {
		reason := ""
		if data.AbstainReason != nil {
			reason = *data.AbstainReason
		}
		return columnResult{Answer: "**ABSTAINED**: " + reason, Source: "N/A", Score: "N/A"}
	}
	if len(data.Contexts) == 0 {
		return columnResult{Answer: truncateAnswer(*data.Answer, 100), Source: "N/A", Score: "N/A"}
	}

	top := data.Contexts[0]
	return columnResult{
		Answer: truncateAnswer(*data.Answer, 100),
		Source: top.Title,
		Score:  fmt.Sprintf("%.3f", top.Score),
	}
}

func truncateAnswer(s string, limit int) string {
	flat := strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	runes := []rune(flat)
	if len(runes) > limit {
		flat = string(runes[:limit])
	}
	return flat + "..."
}

func printMarkdownTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf(" %-*s ", widths[i], cell)
		}
		fmt.Println("|" + strings.Join(parts, "|") + "|")
	}

	printRow(headers)
	separators := make([]string, len(headers))
	for i := range headers {
		separators[i] = strings.Repeat("-", widths[i])
	}
	printRow(separators)
	for _, row := range rows {
		printRow(row)
	}
}
