package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/api"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// ========== Gemini suggestion provider ==========

// ErrBadAIResponse marks model output that could not be turned into activities.
var ErrBadAIResponse = errors.New("invalid AI response")

// textGenerator produces raw model output for a prompt.
type textGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type geminiModel struct {
	model *genai.GenerativeModel
}

func (g geminiModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	res, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	var text strings.Builder
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		for _, part := range res.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text.WriteString(string(txt))
			}
		}
	}
	return text.String(), nil
}

// GeminiSuggester asks Gemini directly for activity suggestions.
type GeminiSuggester struct {
	gen    textGenerator
	client *genai.Client
	logger *logging.Logger
}

// NewGeminiSuggester connects to Gemini with an API key.
func NewGeminiSuggester(ctx context.Context, apiKey, modelName string, logger *logging.Logger) (*GeminiSuggester, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetMaxOutputTokens(8192)
	model.SetTemperature(0.7)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text("You are an expert travel assistant."))

	return &GeminiSuggester{gen: geminiModel{model: model}, client: client, logger: logger.WithComponent("gemini")}, nil
}

// Close releases the client.
func (g *GeminiSuggester) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// SuggestAdditions implements chat.Suggester.
func (g *GeminiSuggester) SuggestAdditions(ctx context.Context, req api.AddActivityRequest) ([]plan.Activity, error) {
	if strings.TrimSpace(req.UserQuery) == "" {
		return nil, errors.New("user query is missing")
	}
	raw, err := g.generate(ctx, addPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseSuggestions(raw, func(string) string { return "12:00" })
}

// SuggestReplacement implements chat.Suggester.
func (g *GeminiSuggester) SuggestReplacement(ctx context.Context, req api.ReplaceActivityRequest) ([]plan.Activity, error) {
	if strings.TrimSpace(req.Message) == "" || req.Plan == nil {
		return nil, errors.New("missing required fields")
	}
	original := "any suitable time"
	if day, ok := req.Plan.Day(req.DayIndex); ok && req.ActivityIndex >= 0 && req.ActivityIndex < len(day.Activities) {
		if t := day.Activities[req.ActivityIndex].Time; t != "" {
			original = t
		}
	}
	raw, err := g.generate(ctx, replacePrompt(req, original))
	if err != nil {
		return nil, err
	}
	return parseSuggestions(raw, func(current string) string {
		if current != "" {
			return current
		}
		return original
	})
}

func (g *GeminiSuggester) generate(ctx context.Context, prompt string) (string, error) {
	raw, err := g.gen.GenerateText(ctx, prompt)
	if err != nil {
		g.logger.Warn("gemini request failed", "error", err)
		return "", fmt.Errorf("gemini generate: %w", errors.Join(errors.ErrNetwork, err))
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("no response from AI: %w", errors.ErrSuggestionEmpty)
	}
	return raw, nil
}

// ========== Prompts ==========

func addPrompt(req api.AddActivityRequest) string {
	city, country := splitDestination(req.Destination, req.Plan)

	existing := "This day is currently empty."
	if len(req.ExistingActivitiesToday) > 0 {
		b, _ := json.Marshal(req.ExistingActivitiesToday)
		existing = string(b)
	}

	insertion := "at the beginning of the day."
	after, before := deref(req.InsertAfterActivityDescription), deref(req.NextActivityDescription)
	switch {
	case after != "" && before != "":
		insertion = fmt.Sprintf("between '%s' and '%s'.", after, before)
	case after != "":
		insertion = fmt.Sprintf("after '%s'.", after)
	case before != "":
		insertion = fmt.Sprintf("before '%s' (as the first activity).", before)
	}

	prefs := req.OriginalTripPreferences
	var b strings.Builder
	fmt.Fprintf(&b, "The user wants to add a new activity to their trip plan for %s, %s on %s.\n", city, country, req.CurrentDayTitle)
	fmt.Fprintf(&b, "User's request: '%s'\n\n", req.UserQuery)
	fmt.Fprintf(&b, "Existing activities for this day: %s\n", existing)
	fmt.Fprintf(&b, "The new activity should be added: %s\n\n", insertion)
	b.WriteString(preferenceLines(prefs))
	b.WriteString("\nSuggest one or more activities that fit the request, the insertion point and the preferences. ")
	fmt.Fprintf(&b, "Keep them feasible with the transportation mode '%s'. All cost estimates MUST be in USD.\n\n", prefs.TransportationMode)
	b.WriteString("Return ONLY a JSON object with a key 'activities' holding an ARRAY of activity objects.\n")
	b.WriteString(activityFields)
	return b.String()
}

func replacePrompt(req api.ReplaceActivityRequest, originalTime string) string {
	city, country := splitDestination("", req.Plan)
	prefs := api.PreferencesFrom(req.Plan.OriginalRequest)

	var original plan.Activity
	if day, ok := req.Plan.Day(req.DayIndex); ok && req.ActivityIndex >= 0 && req.ActivityIndex < len(day.Activities) {
		original = day.Activities[req.ActivityIndex]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The user wants to replace an activity in their trip plan for %s, %s.\n", city, country)
	fmt.Fprintf(&b, "User message: '%s'\n\n", req.Message)
	fmt.Fprintf(&b, "The activity to be replaced (Day %d, Activity Index %d): %s\n", req.DayIndex+1, req.ActivityIndex, jsonOr(&original, ""))
	fmt.Fprintf(&b, "Activity immediately before: %s\n", jsonOr(req.PreviousActivity, "No specific previous activity to consider."))
	fmt.Fprintf(&b, "Activity immediately after: %s\n\n", jsonOr(req.NextActivity, "No specific next activity to consider."))
	b.WriteString(preferenceLines(prefs))
	fmt.Fprintf(&b, "\nKeep the original time slot (around %s) in mind. ", originalTime)
	b.WriteString("If a direct replacement creates a long travel segment, suggest a sequence of 1 to 3 smaller activities instead. ")
	b.WriteString("Ensure all cost estimates are in USD.\n\n")
	b.WriteString("Return ONLY a JSON object with a key 'activities': an OBJECT for a single replacement or an ARRAY for a sequence.\n")
	b.WriteString(activityFields)
	return b.String()
}

const activityFields = `Each activity object MUST include:
  - 'time': string, HH:MM
  - 'description': string
  - 'place_name_for_lookup': string or null, a searchable place name
  - 'place_details': object or null with 'name', 'category', optional 'price_level' (1-4)
  - 'cost_estimate': object with 'min', 'max' and 'currency': 'USD'
  - 'ticket_url': string or null
`

func preferenceLines(p api.TripPreferences) string {
	interests, style := strings.Join(p.Interests, ", "), strings.Join(p.TripStyle, ", ")
	if interests == "" {
		interests = "general interests"
	}
	if style == "" {
		style = "standard"
	}
	return fmt.Sprintf("Traveler's original preferences:\n- Interests: %s\n- Pace: %s\n- Budget Level: %s\n- Trip Style: %s\n- Primary Transportation Mode: %s\n",
		interests, p.Pace, p.Budget, style, p.TransportationMode)
}

func splitDestination(destination string, p *plan.Plan) (string, string) {
	city, country := "the destination city", "the destination country"
	if p != nil && p.DestinationInfo != nil {
		if p.DestinationInfo.City != "" {
			city = p.DestinationInfo.City
		}
		if p.DestinationInfo.Country != "" {
			country = p.DestinationInfo.Country
		}
	}
	parts := strings.Split(destination, ",")
	if c := strings.TrimSpace(parts[0]); c != "" {
		city = c
	}
	if len(parts) > 1 {
		if c := strings.TrimSpace(parts[1]); c != "" {
			country = c
		}
	}
	return city, country
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func jsonOr(a *plan.Activity, fallback string) string {
	if a == nil {
		return fallback
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fallback
	}
	return string(b)
}

// ========== Output normalization ==========

var (
	fencedJSON = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	clockTime  = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// extractJSON pulls the JSON object out of model output that may be
// wrapped in a code fence or surrounded by prose.
func extractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil && json.Valid([]byte(m[1])) {
		return m[1], true
	}
	first, last := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if first >= 0 && last > first && json.Valid([]byte(raw[first:last+1])) {
		return raw[first : last+1], true
	}
	return "", false
}

// parseSuggestions decodes and normalizes model output. timeFor maps the
// model's time (possibly invalid or empty) to the time to use.
func parseSuggestions(raw string, timeFor func(string) string) ([]plan.Activity, error) {
	cleaned, ok := extractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in output: %w", ErrBadAIResponse)
	}
	var envelope struct {
		Activities json.RawMessage `json:"activities"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil || len(envelope.Activities) == 0 {
		return nil, fmt.Errorf("missing 'activities' key: %w", ErrBadAIResponse)
	}

	var items []map[string]any
	switch strings.TrimSpace(string(envelope.Activities))[0] {
	case '[':
		var list []any
		if err := json.Unmarshal(envelope.Activities, &list); err != nil {
			return nil, fmt.Errorf("decode activities: %w", errors.Join(ErrBadAIResponse, err))
		}
		for _, v := range list {
			if obj, ok := v.(map[string]any); ok {
				items = append(items, obj)
			}
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(envelope.Activities, &obj); err != nil {
			return nil, fmt.Errorf("decode activity: %w", errors.Join(ErrBadAIResponse, err))
		}
		items = append(items, obj)
	default:
		return nil, fmt.Errorf("'activities' must be an object or an array: %w", ErrBadAIResponse)
	}

	acts := make([]plan.Activity, 0, len(items))
	for _, obj := range items {
		act, err := normalizeActivity(obj, timeFor)
		if err != nil {
			return nil, err
		}
		acts = append(acts, act)
	}
	if len(acts) == 0 {
		return nil, errors.ErrSuggestionEmpty
	}
	return acts, nil
}

func normalizeActivity(obj map[string]any, timeFor func(string) string) (plan.Activity, error) {
	desc, _ := obj["description"].(string)
	if strings.TrimSpace(desc) == "" {
		return plan.Activity{}, fmt.Errorf("activity without 'description': %w", ErrBadAIResponse)
	}

	t, _ := obj["time"].(string)
	if !clockTime.MatchString(t) {
		t = timeFor(t)
	}
	lookup, _ := obj["place_name_for_lookup"].(string)
	ticket, _ := obj["ticket_url"].(string)

	act := plan.Activity{
		Time:           t,
		Description:    desc,
		PlaceLookupKey: lookup,
		TicketURL:      ticket,
		CostEstimate:   &plan.CostEstimate{Currency: plan.DefaultCurrency},
	}
	if cost, ok := obj["cost_estimate"].(map[string]any); ok {
		act.CostEstimate.Min, _ = cost["min"].(float64)
		act.CostEstimate.Max, _ = cost["max"].(float64)
	}

	if details, ok := obj["place_details"].(map[string]any); ok {
		pd := &plan.PlaceDetails{}
		pd.Name, _ = details["name"].(string)
		pd.Category, _ = details["category"].(string)
		if lvl, ok := details["price_level"].(float64); ok {
			n := int(lvl)
			pd.PriceLevel = &n
		}
		if pd.Name == "" {
			pd.Name = lookup
		}
		act.PlaceDetails = pd
	} else if lookup != "" {
		act.PlaceDetails = &plan.PlaceDetails{Name: lookup, Category: "attraction"}
	}
	return act, nil
}
