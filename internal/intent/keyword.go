package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pmontanari/taskchat/internal/tools"
)

// Deterministic keyword heuristics: the degraded-mode resolver used when
// the classifier backend is unavailable or declines. Must stay free of any
// external call so the system remains minimally usable on its own.
var (
	completeTrailingRe = regexp.MustCompile(`^(?:mark\s+)?(?:task\s+)?#?(\d+)\s+(?:as\s+)?(?:done|complete|completed|finished)$`)
	completeLeadingRe  = regexp.MustCompile(`^(?:complete|finish|close)\s+(?:task\s+)?#?(\d+)$`)
	deleteRe           = regexp.MustCompile(`^(?:delete|remove|drop)\s+(?:task\s+)?#?(\d+)$`)
	listRe             = regexp.MustCompile(`^(?:list|show)(?:\s+me)?(?:\s+my)?(?:\s+all)?(?:\s+(?:tasks|todos))?$`)
	listPhrases        = []string{
		"what's on my list",
		"whats on my list",
		"what do i have to do",
		"show my tasks",
		"list my tasks",
	}
	createPrefixes = []string{"add", "create", "new task", "remember to"}
	quotedRe       = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// matchKeywords applies the fallback heuristics to a normalized utterance.
func matchKeywords(in string) (tool string, args map[string]any, ok bool) {
	if in == "" {
		return "", nil, false
	}

	if m := completeTrailingRe.FindStringSubmatch(in); m != nil {
		return tools.ToolCompleteTask, taskIDArgs(m[1]), true
	}
	if m := completeLeadingRe.FindStringSubmatch(in); m != nil {
		return tools.ToolCompleteTask, taskIDArgs(m[1]), true
	}
	if m := deleteRe.FindStringSubmatch(in); m != nil {
		return tools.ToolDeleteTask, taskIDArgs(m[1]), true
	}
	if listRe.MatchString(in) {
		return tools.ToolListTasks, map[string]any{}, true
	}
	for _, phrase := range listPhrases {
		if in == phrase {
			return tools.ToolListTasks, map[string]any{}, true
		}
	}

	for _, prefix := range createPrefixes {
		if !strings.HasPrefix(in, prefix+" ") {
			continue
		}
		title := extractTitle(strings.TrimSpace(strings.TrimPrefix(in, prefix)))
		if title == "" {
			return "", nil, false
		}
		return tools.ToolCreateTask, map[string]any{"title": title}, true
	}

	return "", nil, false
}

// extractTitle prefers a quoted phrase, otherwise takes the trailing text
// after common filler words.
func extractTitle(rest string) string {
	if m := quotedRe.FindStringSubmatch(rest); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	for _, filler := range []string{"a task to", "a task", "task to", "task:", "task", "todo:", "todo", "to"} {
		if strings.HasPrefix(rest, filler+" ") {
			rest = strings.TrimSpace(strings.TrimPrefix(rest, filler))
			break
		}
	}
	return strings.TrimSpace(rest)
}

func taskIDArgs(digits string) map[string]any {
	id, _ := strconv.ParseInt(digits, 10, 64)
	return map[string]any{"task_id": id}
}
