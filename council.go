package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Querier is the router surface the council depends on.
type Querier interface {
	Query(ctx context.Context, model string, messages []ChatMessage, timeout time.Duration) QueryResult
	QueryMany(ctx context.Context, models []string, messages []ChatMessage) map[string]QueryResult
	QueryBatch(ctx context.Context, requests []QueryRequest) map[string]QueryResult
}

// CouncilConfigSource supplies the membership snapshot for one run.
type CouncilConfigSource interface {
	Load() (CouncilConfig, error)
}

// DefaultTitle is used whenever title generation fails.
const DefaultTitle = "New Conversation"

const stage1SystemPrompt = `You are a member of an LLM Council. Answer the user's question as accurately and helpfully as you can. Your answer will be reviewed anonymously by other models, so be clear and self-contained.`

const noAnswerPlaceholder = "(This council member did not produce a response.)"

// Council runs the three-stage consensus pipeline.
type Council struct {
	querier         Querier
	configs         CouncilConfigSource
	chairmanTimeout time.Duration
	titleModel      string
	titleTimeout    time.Duration
}

// CouncilOptions tunes the single-shot calls. Zero values pick defaults.
type CouncilOptions struct {
	ChairmanTimeout time.Duration
	TitleModel      string
	TitleTimeout    time.Duration
}

// NewCouncil creates a pipeline over a querier and a config source.
func NewCouncil(querier Querier, configs CouncilConfigSource, opts CouncilOptions) *Council {
	if opts.TitleModel == "" {
		opts.TitleModel = DefaultTitleModel
	}
	if opts.TitleTimeout <= 0 {
		opts.TitleTimeout = 30 * time.Second
	}
	return &Council{
		querier:         querier,
		configs:         configs,
		chairmanTimeout: opts.ChairmanTimeout,
		titleModel:      opts.TitleModel,
		titleTimeout:    opts.TitleTimeout,
	}
}

// Snapshot reads the council membership for one run. It is read fresh every
// time so operators can change membership between turns.
func (c *Council) Snapshot() (CouncilConfig, error) {
	cfg, err := c.configs.Load()
	if err != nil {
		return CouncilConfig{}, &PipelineError{Op: "load council config", Err: err}
	}
	if len(cfg.CouncilModels) == 0 || cfg.ChairmanModel == "" {
		return CouncilConfig{}, &PipelineError{Op: "load council config", Err: errors.New("council has no members or no chairman")}
	}
	return cfg, nil
}

// Stage1CollectResponses collects individual responses from all council models.
// Every configured model gets an entry, in configuration order; failed calls
// are kept with Failed set.
func (c *Council) Stage1CollectResponses(ctx context.Context, cfg CouncilConfig, userQuery string) []Stage1Response {
	ctx, span := tracer.Start(ctx, "council.stage1")
	defer span.End()

	messages := []ChatMessage{
		{Role: RoleSystem, Content: stage1SystemPrompt},
		{Role: RoleUser, Content: userQuery},
	}

	responses := c.querier.QueryMany(ctx, cfg.CouncilModels, messages)

	results := make([]Stage1Response, 0, len(cfg.CouncilModels))
	for _, model := range cfg.CouncilModels {
		response := responses[model]
		results = append(results, Stage1Response{
			Model:     model,
			Response:  response.Content,
			Reasoning: response.Reasoning,
			Failed:    response.Failed,
			Error:     response.Error,
		})
	}

	span.SetAttributes(attribute.Int("council.failed", countFailedStage1(results)))
	return results
}

// Stage2CollectRankings asks each council model to rank its peers' answers.
// Answers are anonymized with a fresh LabelMap; each ranker's prompt omits its
// own answer entirely, so it is never told which label, if any, is its own.
func (c *Council) Stage2CollectRankings(ctx context.Context, cfg CouncilConfig, userQuery string, stage1Results []Stage1Response) ([]Stage2Ranking, LabelMap) {
	ctx, span := tracer.Start(ctx, "council.stage2")
	defer span.End()

	authors := make([]string, len(stage1Results))
	answers := make(map[string]string, len(stage1Results))
	for i, result := range stage1Results {
		authors[i] = result.Model
		answers[result.Model] = answerText(result)
	}
	labels := NewLabelMap(authors)

	var requests []QueryRequest
	shown := make(map[string][]string, len(cfg.CouncilModels))
	for _, ranker := range cfg.CouncilModels {
		peerLabels := labels.LabelsExcept(ranker)
		shown[ranker] = peerLabels
		if len(peerLabels) == 0 {
			continue
		}
		requests = append(requests, QueryRequest{
			Model: ranker,
			Messages: []ChatMessage{
				{Role: RoleUser, Content: buildRankingPrompt(userQuery, peerLabels, labels, answers)},
			},
		})
	}

	responses := c.querier.QueryBatch(ctx, requests)

	results := make([]Stage2Ranking, 0, len(cfg.CouncilModels))
	for _, ranker := range cfg.CouncilModels {
		if len(shown[ranker]) == 0 {
			results = append(results, Stage2Ranking{
				Model:         ranker,
				ParsedRanking: []string{},
				Failed:        true,
				Error:         "no peer responses to rank",
			})
			continue
		}

		response := responses[ranker]
		parsed := []string{}
		if !response.Failed {
			var err error
			parsed, err = parseRanking(response.Content, shown[ranker])
			if err != nil {
				slog.WarnContext(ctx, "ranking text had no usable labels", "model", ranker, "error", err)
			}
		}
		results = append(results, Stage2Ranking{
			Model:         ranker,
			Ranking:       response.Content,
			ParsedRanking: parsed,
			Failed:        response.Failed,
			Error:         response.Error,
		})
	}

	return results, labels
}

// parseRanking extracts the labels a ranker was shown. Zero usable labels is an
// ErrParse alongside an empty, non-nil ranking.
func parseRanking(text string, shown []string) ([]string, error) {
	parsed := filterRanking(ParseRankingFromText(text), shown)
	if len(parsed) == 0 {
		return parsed, fmt.Errorf("%w: no recognizable labels in ranking text", ErrParse)
	}
	return parsed, nil
}

func answerText(result Stage1Response) string {
	if result.Failed || strings.TrimSpace(result.Response) == "" {
		return noAnswerPlaceholder
	}
	return result.Response
}

func buildRankingPrompt(userQuery string, peerLabels []string, labels LabelMap, answers map[string]string) string {
	var responsesText strings.Builder
	for _, label := range peerLabels {
		model, _ := labels.ModelFor(label)
		fmt.Fprintf(&responsesText, "%s:\n%s\n\n", label, answers[model])
	}

	example := exampleRanking(peerLabels)

	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s
Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. %s")
- Do not add any other text or explanations in the ranking section

Example of the correct format for the ranking section:

FINAL RANKING:
%s
Now provide your evaluation and ranking:`, userQuery, responsesText.String(), peerLabels[0], example)
}

func exampleRanking(peerLabels []string) string {
	var b strings.Builder
	for i := range peerLabels {
		// Reverse order so the example does not suggest the presented order.
		fmt.Fprintf(&b, "%d. %s\n", i+1, peerLabels[len(peerLabels)-1-i])
	}
	return b.String()
}

// Stage3SynthesizeFinal asks the chairman for the final answer. The chairman
// sees real model identifiers. A failed chairman call is returned as a failed
// response, not an error.
func (c *Council) Stage3SynthesizeFinal(ctx context.Context, cfg CouncilConfig, userQuery string, stage1Results []Stage1Response, stage2Results []Stage2Ranking, labels LabelMap) Stage3Response {
	ctx, span := tracer.Start(ctx, "council.stage3")
	defer span.End()

	var stage1Text strings.Builder
	for _, result := range stage1Results {
		if result.Failed {
			fmt.Fprintf(&stage1Text, "Model: %s\nResponse: (failed: %s)\n\n", result.Model, result.Error)
			continue
		}
		fmt.Fprintf(&stage1Text, "Model: %s\nResponse: %s\n\n", result.Model, result.Response)
	}

	var stage2Text strings.Builder
	for _, result := range stage2Results {
		if result.Failed {
			fmt.Fprintf(&stage2Text, "Model: %s\nRanking: (failed: %s)\n\n", result.Model, result.Error)
			continue
		}
		fmt.Fprintf(&stage2Text, "Model: %s\nRanking: %s\nParsed ranking:\n%s\n\n",
			result.Model, result.Ranking, describeRanking(result.ParsedRanking, labels))
	}

	var legend strings.Builder
	for _, label := range labels.Labels() {
		model, _ := labels.ModelFor(label)
		fmt.Fprintf(&legend, "%s = %s\n", label, model)
	}

	chairmanPrompt := fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s
STAGE 2 - Peer Rankings (labels were anonymous to the rankers):
%s
Label legend:
%s
Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`, userQuery, stage1Text.String(), stage2Text.String(), legend.String())

	messages := []ChatMessage{
		{Role: RoleUser, Content: chairmanPrompt},
	}

	response := c.querier.Query(ctx, cfg.ChairmanModel, messages, c.chairmanTimeout)
	return Stage3Response{
		Model:     cfg.ChairmanModel,
		Response:  response.Content,
		Reasoning: response.Reasoning,
		Failed:    response.Failed,
		Error:     response.Error,
	}
}

// GenerateConversationTitle generates a short title for a conversation with a
// single best-effort call. Any failure yields DefaultTitle.
func (c *Council) GenerateConversationTitle(ctx context.Context, userQuery string) string {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	messages := []ChatMessage{
		{Role: RoleUser, Content: titlePrompt},
	}

	response := c.querier.Query(ctx, c.titleModel, messages, c.titleTimeout)
	if response.Failed {
		slog.WarnContext(ctx, "title generation failed", "model", c.titleModel, "error", response.Error)
		return DefaultTitle
	}

	return cleanTitle(response.Content)
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'")
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}

	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:47]) + "..."
	}
	return title
}

// RunResult is everything one council run produces.
type RunResult struct {
	Stage1   []Stage1Response
	Stage2   []Stage2Ranking
	Stage3   Stage3Response
	Metadata Metadata
}

// RunFullCouncil runs the complete 3-stage council process without progress
// events. Only a config snapshot failure is returned as an error; backend
// failures are carried inside the result.
func (c *Council) RunFullCouncil(ctx context.Context, userQuery string) (RunResult, error) {
	return c.run(ctx, userQuery, nil)
}

// stageHooks lets the session driver observe stage boundaries.
type stageHooks struct {
	stage1Start    func()
	stage1Complete func([]Stage1Response)
	stage2Start    func()
	stage2Complete func([]Stage2Ranking, Metadata)
	stage3Start    func()
	stage3Complete func(Stage3Response)
}

func (c *Council) run(ctx context.Context, userQuery string, hooks *stageHooks) (RunResult, error) {
	if hooks == nil {
		hooks = &stageHooks{}
	}
	call := func(f func()) {
		if f != nil {
			f()
		}
	}

	cfg, err := c.Snapshot()
	if err != nil {
		return RunResult{}, err
	}

	timings := make(map[string]int64, 3)

	call(hooks.stage1Start)
	start := time.Now()
	stage1 := c.Stage1CollectResponses(withStage(ctx, "stage1"), cfg, userQuery)
	timings["stage1"] = time.Since(start).Milliseconds()
	if hooks.stage1Complete != nil {
		hooks.stage1Complete(stage1)
	}

	call(hooks.stage2Start)
	start = time.Now()
	stage2, labels := c.Stage2CollectRankings(withStage(ctx, "stage2"), cfg, userQuery, stage1)
	timings["stage2"] = time.Since(start).Milliseconds()

	metadata := Metadata{
		LabelToModel:      labels.ToMap(),
		AggregateRankings: CalculateAggregateRankings(stage2, labels),
		Timings:           timings,
		FailedModels:      failedModels(stage1),
	}
	if hooks.stage2Complete != nil {
		hooks.stage2Complete(stage2, metadata)
	}

	call(hooks.stage3Start)
	start = time.Now()
	stage3 := c.Stage3SynthesizeFinal(withStage(ctx, "stage3"), cfg, userQuery, stage1, stage2, labels)
	timings["stage3"] = time.Since(start).Milliseconds()
	metadata.ChairmanFailed = stage3.Failed
	if hooks.stage3Complete != nil {
		hooks.stage3Complete(stage3)
	}

	return RunResult{
		Stage1:   stage1,
		Stage2:   stage2,
		Stage3:   stage3,
		Metadata: metadata,
	}, nil
}

func withStage(ctx context.Context, stage string) context.Context {
	return WithLogFields(ctx, LogFields{Stage: stage})
}

func failedModels(stage1 []Stage1Response) []string {
	var failed []string
	for _, result := range stage1 {
		if result.Failed {
			failed = append(failed, result.Model)
		}
	}
	return failed
}

func countFailedStage1(stage1 []Stage1Response) int {
	return len(failedModels(stage1))
}
