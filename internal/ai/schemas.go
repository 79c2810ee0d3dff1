package ai

// Per-kind system prompts and JSON Schemas enforced server-side via OpenAI
// structured outputs. Each schema matches the corresponding model struct so
// responses parse directly.

const (
	biasPrompt = "You are a media-bias analyst. Rate the political and framing bias " +
		"of the provided news article. Quote loaded phrases verbatim."

	sentimentPrompt = "You are a sentiment analyst. Rate the overall tone of the " +
		"provided news article."

	claimsPrompt = "You are a fact-extraction engine. Extract the checkable factual " +
		"claims from the provided news article. Assign each claim a short stable id " +
		"(c1, c2, ...) and an importance level."

	factCheckPrompt = "You are a fact-checking engine. Given one extracted claim and " +
		"the article it came from, return a verdict on the claim. Never invent " +
		"supporting evidence; use \"unverifiable\" when the article and common " +
		"knowledge are insufficient."

	credibilityPrompt = "You are a source-credibility analyst. Assess the " +
		"trustworthiness of the provided article based on its sourcing, attribution, " +
		"and reporting style. List concrete red flags."

	summaryPrompt = "You are a news editor. Write an executive summary of the " +
		"provided article: a one-line headline, a short paragraph, and key points."
)

var biasSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"leaning": map[string]any{
			"type": "string",
			"enum": []string{"left", "center-left", "center", "center-right", "right"},
		},
		"score":          map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"biased_phrases": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"explanation":    map[string]any{"type": "string"},
	},
	"required": []string{"leaning", "score", "biased_phrases", "explanation"},
}

var sentimentSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"overall": map[string]any{
			"type": "string",
			"enum": []string{"positive", "neutral", "negative", "mixed"},
		},
		"score":      map[string]any{"type": "number", "minimum": -1, "maximum": 1},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
	"required": []string{"overall", "score", "confidence"},
}

var claimsSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"claims": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"id":        map[string]any{"type": "string"},
					"statement": map[string]any{"type": "string"},
					"importance": map[string]any{
						"type": "string",
						"enum": []string{"high", "medium", "low"},
					},
				},
				"required": []string{"id", "statement", "importance"},
			},
		},
	},
	"required": []string{"claims"},
}

var factCheckSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"claim_id": map[string]any{"type": "string"},
		"verdict": map[string]any{
			"type": "string",
			"enum": []string{"supported", "disputed", "unverifiable"},
		},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"reasoning":  map[string]any{"type": "string"},
	},
	"required": []string{"claim_id", "verdict", "confidence", "reasoning"},
}

var credibilitySchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"rating": map[string]any{
			"type": "string",
			"enum": []string{"high", "medium", "low"},
		},
		"score":       map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"red_flags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"explanation": map[string]any{"type": "string"},
	},
	"required": []string{"rating", "score", "red_flags", "explanation"},
}

var summarySchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"headline": map[string]any{"type": "string"},
		"text":     map[string]any{"type": "string"},
		"key_points": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"minItems": 2,
			"maxItems": 5,
		},
	},
	"required": []string{"headline", "text", "key_points"},
}
