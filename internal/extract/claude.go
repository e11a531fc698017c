package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/cost"
	"github.com/parcelscope/zoning-cli/internal/model"
	"github.com/parcelscope/zoning-cli/internal/resolver"
	"github.com/parcelscope/zoning-cli/pkg/anthropic"
)

const extractSystemPrompt = `You extract zoning district facts from municipal code text.
Given an ordinance document, return a JSON array where each element describes one zoning district:
{
  "number": "the section or ordinance number, e.g. 30-28",
  "title": "the section title",
  "summary": "one-paragraph summary of the district's purpose",
  "district_code": "e.g. R-1",
  "district_name": "e.g. Single-Family Residential",
  "category": "residential|commercial|industrial|mixed_use|agricultural|overlay|other",
  "section_ref": "the section the facts came from, e.g. Sec. 30-28",
  "standards": {"min_lot_area_sqft":0,"min_lot_width_ft":0,"front_setback_ft":0,"side_setback_ft":0,"rear_setback_ft":0,"max_height_ft":0,"max_stories":0,"max_lot_coverage_pct":0,"max_density_du_acre":0,"min_open_space_pct":0},
  "uses": {"permitted":[],"conditional":[],"prohibited":[]}
}
Omit standards fields the code does not specify. Return only the JSON array, no prose.
If the document contains no zoning district content, return [].`

// maxDocChars bounds the document text sent per extraction call.
const maxDocChars = 150_000

// ClaudeExtractor produces candidate records by prompting Claude over the
// fetched document. Section bodies are attached locally from the document
// itself, so the model never has to echo ordinance text back.
type ClaudeExtractor struct {
	client anthropic.Client
	calc   *cost.Calculator
	model  string
	log    *zap.Logger
}

func NewClaudeExtractor(client anthropic.Client, calc *cost.Calculator, modelID string, log *zap.Logger) *ClaudeExtractor {
	if log == nil {
		log = zap.L()
	}
	return &ClaudeExtractor{client: client, calc: calc, model: modelID, log: log}
}

// Extract implements resolver.Extractor. The extraction spend is added to
// the content's running cost so the lookup log attributes it to the miss.
func (e *ClaudeExtractor) Extract(ctx context.Context, content *resolver.RawContent) ([]model.CandidateRecord, error) {
	doc := content.Markdown
	if len(doc) > maxDocChars {
		doc = doc[:maxDocChars]
	}
	if strings.TrimSpace(doc) == "" {
		return nil, nil
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 8192,
		System: []anthropic.SystemBlock{
			{Text: extractSystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "1h"}},
		},
		Messages: []anthropic.Message{
			{Role: "user", Content: doc},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: claude call")
	}

	if e.calc != nil {
		spend := e.calc.Claude(e.model,
			int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens),
			int(resp.Usage.CacheCreationInputTokens), int(resp.Usage.CacheReadInputTokens))
		content.CostUSD += spend
		e.log.Debug("extraction spend",
			zap.String("model", e.model),
			zap.Int64("input_tokens", resp.Usage.InputTokens),
			zap.Int64("output_tokens", resp.Usage.OutputTokens),
			zap.Float64("cost_usd", spend))
	}

	items, err := parseCandidates(resp.Text())
	if err != nil {
		return nil, err
	}

	sections := SplitSections(content.Markdown)
	candidates := make([]model.CandidateRecord, 0, len(items))
	for _, it := range items {
		c := model.CandidateRecord{
			Number:       it.Number,
			Title:        it.Title,
			Summary:      it.Summary,
			DistrictCode: it.DistrictCode,
			DistrictName: it.DistrictName,
			Category:     model.DistrictCategory(it.Category),
			Standards:    it.Standards,
			Uses:         it.Uses,
			SourceURL:    content.URL,
			SectionRef:   it.SectionRef,
		}
		if sec := FindSection(sections, it.SectionRef); sec != nil {
			c.Body = sec.Body
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

type candidateJSON struct {
	Number       string                     `json:"number"`
	Title        string                     `json:"title"`
	Summary      string                     `json:"summary"`
	DistrictCode string                     `json:"district_code"`
	DistrictName string                     `json:"district_name"`
	Category     string                     `json:"category"`
	SectionRef   string                     `json:"section_ref"`
	Standards    model.DimensionalStandards `json:"standards"`
	Uses         model.UseRules             `json:"uses"`
}

// parseCandidates decodes the model's JSON array, tolerating a fenced code
// block around it.
func parseCandidates(text string) ([]candidateJSON, error) {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var items []candidateJSON
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, eris.Wrap(err, "extract: parse model output")
	}
	return items, nil
}
