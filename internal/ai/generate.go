package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ArticleRequest carries everything the generator needs for one article.
type ArticleRequest struct {
	Topic       string
	Description string
	Keywords    []string
	Subtopics   []string // optional hints; the model may pick one
	Language    string
	Tone        string
	MinWords    int
	MaxWords    int
}

// Article is the generator's response.
type Article struct {
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	Excerpt       string   `json:"excerpt"`
	Subtopic      string   `json:"subtopic"`
	Tags          []string `json:"tags"`
	ImageKeywords []string `json:"image_keywords"`
}

// stripMarkdownCodeBlock removes markdown code block delimiters from AI responses
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)

	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return response
	}

	endIdx := strings.LastIndex(response, "}")
	if endIdx == -1 || endIdx < startIdx {
		return response
	}

	return response[startIdx : endIdx+1]
}

// GenerateArticle asks Claude to write a full article for the given topic.
func (c *Client) GenerateArticle(ctx context.Context, req ArticleRequest) (*Article, error) {
	subtopicHint := ""
	if len(req.Subtopics) > 0 {
		subtopicHint = fmt.Sprintf(SubtopicHintPrompt, "- "+strings.Join(req.Subtopics, "\n- "))
	}

	userPrompt := fmt.Sprintf(ArticleUserPrompt,
		req.Topic,
		req.Description,
		strings.Join(req.Keywords, ", "),
		req.Language,
		req.Tone,
		req.MinWords,
		req.MaxWords,
		subtopicHint,
	)

	response, err := c.CompleteWithJSON(ctx, ArticleSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var article Article
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &article); err != nil {
		c.log.Error().
			Err(err).
			Str("response", response).
			Msg("Failed to parse article response")
		return nil, fmt.Errorf("failed to parse article response: %w", err)
	}
	if article.Title == "" || article.Body == "" {
		return nil, fmt.Errorf("generator returned an incomplete article")
	}

	return &article, nil
}
