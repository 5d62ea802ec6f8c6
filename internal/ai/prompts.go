package ai

// Article generation prompts
const (
	ArticleSystemPrompt = `You are an experienced editorial writer producing complete blog articles.

Guidelines:
- Write in the requested language and tone
- Stay within the requested word-count range
- Structure the article with a clear introduction, body sections and conclusion
- Use plain paragraphs; headings are allowed but keep them sparse
- Provide genuine, specific information; avoid filler and clickbait
- The excerpt is a 2-3 sentence teaser suitable for a listing page`

	ArticleUserPrompt = `Write a complete article.

Topic: %s
Description: %s
Keywords to work in naturally: %s
Language: %s
Tone: %s
Target length: %d-%d words
%s
Respond in JSON format:
{
  "title": "<article title>",
  "body": "<the full article text>",
  "excerpt": "<2-3 sentence teaser>",
  "subtopic": "<the specific angle or subtopic you chose, if any>",
  "tags": ["<tag1>", "<tag2>"],
  "image_keywords": ["<2-4 short search phrases for illustrative images>"]
}`

	// Appended to the user prompt when the fixed topic carries suggested
	// subtopics for the writer to pick from.
	SubtopicHintPrompt = `Suggested subtopics (pick the one you can write best about, or propose your own):
%s
`
)
