package conversation

import (
	"regexp"
	"strings"
	"sync"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// Some backends occasionally "think out loud" and emit the name of a
// tool as plain text instead of a structured invocation. detectTextualCall
// is the isolated fallback for that failure mode: it fires only when no
// structured call was present, and only on an exact whole-word,
// case-insensitive match of a declared tool name. A false positive on a
// reply that innocently mentions a tool name remains possible; that is
// an accepted trade-off, kept in this one place so it can be refined or
// disabled without touching the engine.
func detectTextualCall(text string, decls []contractx.ToolDecl) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, decl := range decls {
		name := strings.TrimSpace(decl.Name)
		if name == "" {
			continue
		}
		if toolNamePattern(name).MatchString(text) {
			return name, true
		}
	}
	return "", false
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func toolNamePattern(name string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[name]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	patternCache[name] = re
	return re
}
