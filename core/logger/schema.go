package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
	"fatal":   "FATAL",
}

// Closed vocabularies. Unknown status values pass through as-is; unknown
// cache and outcome values are dropped.
var (
	statusValues  = set("ok", "fail", "skip", "retry", "rejected", "rate_limited", "cancelled")
	cacheValues   = set("hit", "miss", "stale", "refresh")
	outcomeValues = set("ok", "fail", "cancelled", "rate_limited", "rejected")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func inVocabulary(vocab map[string]struct{}, v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	_, ok := vocab[v]
	return v, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"trace_id",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"state",
	"from",
	"to",
	"action",
	"input_kind",
	"feature_key",
	"cache",
	"token",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"count",
	"swept",
	"sessions",
	"crosslinks",
	"lookups",
	"history",
	"payload",
	"inn",
	"model",
	"tokens",
	"lang",
	"username",
	"mode",
	"backend",
	"listen",
	"public_url",
	"http_code",
	"db",
	"driver",
	"host",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
}
