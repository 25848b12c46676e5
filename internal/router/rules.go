package router

import "strings"

// Task classes recognized by the selection rules. Coding, creative, and
// planning requests all land on the strong general (normal) tier; the class
// is kept for logging and events.
type taskClass string

const (
	taskReasoning taskClass = "reasoning"
	taskCoding    taskClass = "coding"
	taskCreative  taskClass = "creative"
	taskVision    taskClass = "vision"
	taskPlanning  taskClass = "planning"
	taskDefault   taskClass = "default"
)

// A prompt longer than this is routed to the reasoning tier regardless of
// keywords.
const longPromptThreshold = 350

var (
	reasoningTriggers = []string{"why", "explain", "analyze"}
	codingTriggers    = []string{"code", "fix", "refactor", "debug", "function"}
	creativeTriggers  = []string{"story", "design", "creative", "write", "marketing"}
	visionTriggers    = []string{"image", "photo", "vision", "picture", "screenshot"}
	planningTriggers  = []string{"plan", "structure", "architecture"}
)

// classify applies the selection rules in order; first match wins.
func classify(agentName, lastUserMessage string) taskClass {
	p := strings.ToLower(lastUserMessage)

	switch {
	case agentName == "devra" || containsAny(p, reasoningTriggers) || len(p) > longPromptThreshold:
		return taskReasoning
	case agentName == "cora" || containsAny(p, codingTriggers):
		return taskCoding
	case agentName == "lumi" || containsAny(p, creativeTriggers):
		return taskCreative
	case containsAny(p, visionTriggers):
		return taskVision
	case agentName == "planner" || agentName == "builder" || agentName == "composer" ||
		containsAny(p, planningTriggers):
		return taskPlanning
	default:
		return taskDefault
	}
}

func containsAny(p string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(p, t) {
			return true
		}
	}
	return false
}
