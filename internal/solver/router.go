package solver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Registry maps capabilities to the workers implementing them.
type Registry map[Capability]Worker

type routeRule struct {
	name       string
	capability Capability
	match      func(text string) bool
	// cascade lists the capabilities tried, in order, when the primary
	// worker reports an error. Intermediate candidates only win with an
	// answer; the last candidate's result is returned as is.
	cascade []Capability
}

var instructionURLRE = regexp.MustCompile(`https?://[^\s"'<>]+`)

func containsAny(keywords ...string) func(string) bool {
	return func(text string) bool {
		for _, keyword := range keywords {
			if strings.Contains(text, keyword) {
				return true
			}
		}
		return false
	}
}

func matchCommand(text string) bool {
	if strings.Contains(text, "curl http request") {
		return true
	}
	return strings.Contains(text, "curl") && strings.Contains(text, "accept: application/json")
}

// routeTable is evaluated top to bottom; the first matching rule wins.
var routeTable = []routeRule{
	{
		name:       "command",
		capability: CapabilityCommand,
		match:      matchCommand,
	},
	{
		name:       "data_processing",
		capability: CapabilityDataProcessing,
		match:      containsAny("download", ".csv", ".xlsx", "pdf", "table", "sum", "mean", "average", "value column"),
	},
	{
		name:       "api_sourcing",
		capability: CapabilityAPISourcing,
		match:      containsAny("api", "call", "fetch", "headers", "endpoint", "json"),
		cascade:    []Capability{CapabilityWebScraping, CapabilityLLM},
	},
	{
		name:       "data_cleaning",
		capability: CapabilityDataCleaning,
		match:      containsAny("clean", "normalize", "remove na", "null", "strip"),
	},
	{
		name:       "visualization",
		capability: CapabilityVisualization,
		match:      containsAny("chart", "plot", "visualize", "figure", "image"),
	},
	{
		name:       "analysis",
		capability: CapabilityAnalysis,
		match:      containsAny("analyze", "ml", "regression", "cluster", "correlation"),
	},
}

var defaultRoute = routeRule{name: "default", capability: CapabilityWebScraping}

type Router struct {
	workers       Registry
	commandTarget string
}

type RouterOption func(*Router)

// WithCommandTarget sets the URL used in synthesized commands when the
// instruction does not mention one.
func WithCommandTarget(target string) RouterOption {
	return func(r *Router) {
		r.commandTarget = strings.TrimSpace(target)
	}
}

func NewRouter(workers Registry, opts ...RouterOption) *Router {
	router := &Router{workers: Registry{}}
	for capability, worker := range workers {
		router.workers[capability] = worker
	}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	return router
}

// Classify returns the capability the instruction is routed to.
func Classify(instruction string) Capability {
	return selectRule(instruction).capability
}

func selectRule(instruction string) routeRule {
	text := strings.ToLower(instruction)
	for _, rule := range routeTable {
		if rule.match(text) {
			return rule
		}
	}
	return defaultRoute
}

// Route picks one worker for the page's instruction and returns its result.
// Worker call failures come back as error results.
func (r *Router) Route(ctx context.Context, page PageInfo, req Request, deadline time.Time) WorkerResult {
	rule := selectRule(page.Instruction)
	if rule.capability == CapabilityCommand {
		return AnswerResult(CapabilityCommand, r.composeCommand(page), AnswerTypeString)
	}
	result := r.Invoke(ctx, rule.capability, page, req, deadline)
	if !result.Failed() || len(rule.cascade) == 0 {
		return result
	}
	for i, next := range rule.cascade {
		result = r.Invoke(ctx, next, page, req, deadline)
		if i == len(rule.cascade)-1 || result.HasAnswer() {
			return result
		}
	}
	return result
}

// Invoke calls a single capability, converting call failures into error
// results.
func (r *Router) Invoke(ctx context.Context, capability Capability, page PageInfo, req Request, deadline time.Time) WorkerResult {
	worker, ok := r.workers[capability]
	if !ok || worker == nil {
		return ErrorResult(capability, fmt.Sprintf("no worker registered for %s", capability))
	}
	result, err := worker.Handle(ctx, page, req, deadline)
	if err != nil {
		return ErrorResult(capability, err.Error())
	}
	if result.Worker == "" {
		result.Worker = capability
	}
	return result
}

func (r *Router) composeCommand(page PageInfo) string {
	target := instructionURLRE.FindString(page.Instruction)
	if target == "" {
		target = r.commandTarget
	}
	if target == "" {
		target = page.SourceURL
	}
	target = strings.TrimRight(target, ".,;:)")
	return fmt.Sprintf(`curl -H "Accept: application/json" %s`, target)
}
