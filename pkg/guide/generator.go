package guide

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shaandjain/local-audio-pins/pkg/geo"
	"github.com/Shaandjain/local-audio-pins/pkg/llm"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
)

// Intent name for model profile resolution and prompt logging.
const intentPinContent = "pin_content"

// maxOffsetMeters caps how far the model may nudge a pin away from the job
// center. The model suggests an offset to spread pins apart, not a new spot.
const maxOffsetMeters = 50

// Request carries the context for generating one pin's content.
type Request struct {
	Center         geo.Point
	AreaName       string
	Category       model.Category
	TopCategories  []model.Category
	ExistingTitles []string
	PinIndex       int // zero-based position in the batch
	TotalPins      int
}

// Content is a generated pin before narration synthesis.
type Content struct {
	Title       string
	Description string
	Transcript  string
	Category    model.Category
	Location    geo.Point
}

// response matches the JSON contract the prompt instructs the model to emit.
type response struct {
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Transcript         string  `json:"transcript"`
	SuggestedLatOffset float64 `json:"suggestedLatOffset"`
	SuggestedLngOffset float64 `json:"suggestedLngOffset"`
}

// Generator produces pin content through an LLM provider.
type Generator struct {
	llm llm.Provider
}

// NewGenerator creates a content generator.
func NewGenerator(provider llm.Provider) *Generator {
	return &Generator{llm: provider}
}

// Generate asks the LLM for one pin's title, description, and narration
// script. Failures are unit-scoped: the caller records the pin as failed and
// continues the batch.
func (g *Generator) Generate(ctx context.Context, req Request) (*Content, error) {
	prompt := buildPrompt(req)

	var resp response
	if err := g.llm.GenerateJSON(ctx, intentPinContent, prompt, &resp); err != nil {
		return nil, fmt.Errorf("gemini content generation: %w", err)
	}

	if resp.Title == "" || resp.Description == "" || resp.Transcript == "" {
		return nil, fmt.Errorf("gemini content generation: incomplete response")
	}

	return &Content{
		Title:       truncate(resp.Title, 50),
		Description: truncate(resp.Description, 200),
		Transcript:  resp.Transcript,
		Category:    req.Category,
		Location:    clampOffset(req.Center, resp.SuggestedLatOffset, resp.SuggestedLngOffset),
	}, nil
}

const systemPrompt = `You are a friendly, knowledgeable local tour guide creating audio content for walking tours.

Your task is to generate engaging, informative content about points of interest for a specific location.

Guidelines:
- Write in a warm, conversational tone as if speaking to a visitor
- Keep transcripts between 40-50 words (approximately 15-20 seconds when spoken)
- Include interesting facts, local tips, or historical context
- Make content specific to the location and category
- Avoid generic descriptions - be specific and memorable
- Do not repeat topics from existing pins in the area
- Suggest a slight coordinate offset (within 50 meters) to spread pins apart

Respond ONLY with valid JSON in this exact format:
{
  "title": "Short, catchy title (max 50 characters)",
  "description": "2-3 sentence description for reading (max 200 characters)",
  "transcript": "40-50 word script for audio narration. Speak directly to the listener.",
  "suggestedLatOffset": 0.0003,
  "suggestedLngOffset": -0.0002
}`

func buildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Generate a %s point of interest for the %s area.\n", req.Category, req.AreaName)
	fmt.Fprintf(&sb, "Base coordinates: %.6f, %.6f\n", req.Center.Lat, req.Center.Lng)
	fmt.Fprintf(&sb, "This is pin %d of %d in the tour.\n", req.PinIndex+1, req.TotalPins)

	if len(req.TopCategories) > 0 {
		names := make([]string, len(req.TopCategories))
		for i, c := range req.TopCategories {
			names[i] = string(c)
		}
		fmt.Fprintf(&sb, "\nUser's preferred categories (in order): %s\n", strings.Join(names, ", "))
	}

	if len(req.ExistingTitles) > 0 {
		sb.WriteString("\nExisting topics in this area to avoid duplicating:\n")
		for _, t := range req.ExistingTitles {
			fmt.Fprintf(&sb, "- %s\n", t)
		}
	}

	fmt.Fprintf(&sb, "\nCreate something unique and interesting about this %s location that a visitor would find engaging.", req.Category)
	return sb.String()
}

// clampOffset applies the model's suggested offset to the center, pulling
// the result back toward the center if it lands more than maxOffsetMeters
// away.
func clampOffset(center geo.Point, latOffset, lngOffset float64) geo.Point {
	suggested := geo.Point{Lat: center.Lat + latOffset, Lng: center.Lng + lngOffset}

	dist := geo.Distance(center, suggested)
	if dist <= maxOffsetMeters {
		return suggested
	}

	// Scale the offset vector down to the maximum radius.
	scale := maxOffsetMeters / dist
	return geo.Point{
		Lat: center.Lat + latOffset*scale,
		Lng: center.Lng + lngOffset*scale,
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
