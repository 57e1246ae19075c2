package core

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/telemetry"
)

// Planner turns a user message into a bounded QueryPlan. Planning never
// fails upward: any model or parsing problem yields the deterministic
// fallback plan.
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	metrics     *telemetry.Metrics
	logger      *log.Logger

	mu    sync.Mutex
	cache map[string]*list.Element
	order *list.List
	size  int
}

type cacheEntry struct {
	key  string
	plan QueryPlan
}

// NewPlanner creates a new planner instance.
func NewPlanner(cfg *config.Config, llmProvider LLMProvider, metrics *telemetry.Metrics) *Planner {
	size := cfg.Agent.PlanCacheSize
	if size <= 0 {
		size = 64
	}
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		metrics:     metrics,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
		cache:       make(map[string]*list.Element),
		order:       list.New(),
		size:        size,
	}
}

var simpleCheckPhrases = []string{
	"is there a", "is there an", "does it have", "do you have",
	"do you support", "is it supported", "is there support for",
	"can i connect", "integration for", "piece for", "connector for",
}

var configDetailPhrases = []string{
	"how do i", "how to", "how can i", "configure", "set up", "setup",
}

// complexPhrases suppress both fast paths: these questions need the
// model to plan.
var complexPhrases = []string{
	"build a flow", "create a flow", "build a workflow", "error",
	"not working", "fails", "troubleshoot", "why does",
}

// Plan returns the plan for message, consulting fast paths and the LRU
// cache before the model.
func (p *Planner) Plan(ctx context.Context, message string, history []HistoryTurn, toolNames []string) QueryPlan {
	normalized := normalizeMessage(message)

	if plan, ok := p.cacheGet(normalized); ok {
		p.metrics.PlanCacheTotal.WithLabelValues("hit").Inc()
		return plan
	}
	p.metrics.PlanCacheTotal.WithLabelValues("miss").Inc()

	if plan, ok := p.fastPath(message, normalized); ok {
		p.metrics.PlansTotal.WithLabelValues(string(plan.QueryType)).Inc()
		p.cachePut(normalized, plan)
		return plan
	}

	plan, err := p.planWithModel(ctx, message, history, toolNames)
	if err != nil {
		p.logger.Printf("planning failed, using fallback plan: %v", err)
		p.metrics.PlanFallbacksTotal.Inc()
		plan = FallbackPlan(message)
		p.metrics.PlansTotal.WithLabelValues(string(plan.QueryType)).Inc()
		return plan
	}

	p.metrics.PlansTotal.WithLabelValues(string(plan.QueryType)).Inc()
	p.cachePut(normalized, plan)
	return plan
}

// fastPath recognizes common question shapes without calling the model.
// Configuration-detail phrases win over simple-check phrases: "how do I
// set up the Slack piece" is configuration even though it names a piece.
func (p *Planner) fastPath(message, normalized string) (QueryPlan, bool) {
	for _, phrase := range complexPhrases {
		if strings.Contains(normalized, phrase) {
			return QueryPlan{}, false
		}
	}
	for _, phrase := range configDetailPhrases {
		if strings.Contains(normalized, phrase) {
			topic := strings.TrimRight(normalized, "?!. ")
			plan := QueryPlan{
				Intent:            "Explain how to configure or use: " + topic,
				QueryType:         QueryConfiguration,
				ActionPlan:        []string{"search the documentation for the relevant guide", "answer with the concrete steps"},
				RecommendedTools:  []string{"search_docs"},
				SearchQueries:     []string{topic},
				MaxToolCalls:      1,
				StoppingCondition: "a relevant documentation passage was found",
				FallbackStrategy:  "answer from general platform knowledge",
			}
			p.logger.Printf("fast path: configuration detail for %q", topic)
			return plan, true
		}
	}
	for _, phrase := range simpleCheckPhrases {
		if strings.Contains(normalized, phrase) {
			subject := extractSubject(normalized, phrase)
			plan := QueryPlan{
				Intent:            "Check whether an integration exists for: " + subject,
				QueryType:         QuerySimpleCheck,
				ActionPlan:        []string{"look up the integration in the catalog", "answer yes or no with details"},
				RecommendedTools:  []string{"check_pieces"},
				SearchQueries:     []string{subject},
				MaxToolCalls:      1,
				StoppingCondition: "catalog lookup completed",
				FallbackStrategy:  "search the documentation",
			}
			p.logger.Printf("fast path: simple check for %q", subject)
			return plan, true
		}
	}
	return QueryPlan{}, false
}

// planWithModel asks the planning model for a plan and normalizes it.
func (p *Planner) planWithModel(ctx context.Context, message string, history []HistoryTurn, toolNames []string) (QueryPlan, error) {
	if p.config.Agent.PlanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Agent.PlanTimeout)
		defer cancel()
	}

	start := time.Now()
	prompt := createPlanningPrompt(message, history, toolNames)
	model := p.config.LLM.Routing.Planning

	response, inTok, outTok, err := p.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  800,
	})
	if err != nil {
		return QueryPlan{}, err
	}
	p.metrics.LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(inTok))
	p.metrics.LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(outTok))
	p.metrics.LLMCostTotal.Add(p.llmProvider.CalculateCost(inTok, outTok, model))

	var plan QueryPlan
	if err := json.Unmarshal([]byte(extractFirstJSON(response)), &plan); err != nil {
		return QueryPlan{}, err
	}
	plan = p.normalizePlan(plan, message)
	p.logger.Printf("plan generated in %v (type=%s, tools=%v)", time.Since(start), plan.QueryType, plan.RecommendedTools)
	return plan, nil
}

// normalizePlan enforces the closed enum and loop bounds on whatever
// the model produced.
func (p *Planner) normalizePlan(plan QueryPlan, message string) QueryPlan {
	plan.QueryType = NormalizeQueryType(string(plan.QueryType))
	if plan.Intent == "" {
		plan.Intent = "Answer: " + strings.TrimSpace(message)
	}
	if plan.MaxToolCalls <= 0 {
		plan.MaxToolCalls = 2
	}
	if cap := p.config.Agent.MaxToolCalls; cap > 0 && plan.MaxToolCalls > cap {
		plan.MaxToolCalls = cap
	}
	if len(plan.SearchQueries) == 0 {
		plan.SearchQueries = []string{strings.TrimSpace(message)}
	}
	if plan.QueryType == QuerySimpleCheck && !containsTool(plan.RecommendedTools, "check_pieces") {
		plan.RecommendedTools = append([]string{"check_pieces"}, plan.RecommendedTools...)
	}
	if len(plan.RecommendedTools) == 0 {
		plan.RecommendedTools = []string{"search_docs"}
	}
	return plan
}

// FallbackPlan is the deterministic plan used when planning itself
// breaks. Every tool stays on the table because nothing is known about
// the question, and the router narrows down from there.
func FallbackPlan(message string) QueryPlan {
	return QueryPlan{
		Intent:            "Answer the user's question about the automation platform",
		QueryType:         QueryExplanation,
		ActionPlan:        []string{"search the documentation", "answer from the results"},
		RecommendedTools:  []string{"search_docs", "check_pieces", "web_search", "code_guidelines"},
		SearchQueries:     []string{strings.TrimSpace(message)},
		MaxToolCalls:      2,
		StoppingCondition: "a relevant documentation passage was found",
		FallbackStrategy:  "answer from general platform knowledge and say what could not be verified",
		Fallback:          true,
	}
}

func (p *Planner) cacheGet(key string) (QueryPlan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.cache[key]; ok {
		p.order.MoveToFront(el)
		return el.Value.(*cacheEntry).plan, true
	}
	return QueryPlan{}, false
}

func (p *Planner) cachePut(key string, plan QueryPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.cache[key]; ok {
		p.order.MoveToFront(el)
		el.Value.(*cacheEntry).plan = plan
		return
	}
	el := p.order.PushFront(&cacheEntry{key: key, plan: plan})
	p.cache[key] = el
	if p.order.Len() > p.size {
		oldest := p.order.Back()
		p.order.Remove(oldest)
		delete(p.cache, oldest.Value.(*cacheEntry).key)
	}
}

func normalizeMessage(message string) string {
	return strings.Join(strings.Fields(strings.ToLower(message)), " ")
}

// extractSubject pulls the thing being asked about out of a simple
// check question, e.g. "is there a notion integration" -> "notion".
func extractSubject(normalized, phrase string) string {
	idx := strings.Index(normalized, phrase)
	subject := strings.TrimSpace(normalized[idx+len(phrase):])
	subject = strings.TrimRight(subject, "?!. ")
	for _, suffix := range []string{"integration", "piece", "connector", "available", "supported"} {
		subject = strings.TrimSpace(strings.TrimSuffix(subject, suffix))
	}
	if subject == "" {
		subject = strings.TrimRight(normalized, "?!. ")
	}
	return subject
}

func containsTool(tools []string, name string) bool {
	for _, t := range tools {
		if t == name {
			return true
		}
	}
	return false
}
