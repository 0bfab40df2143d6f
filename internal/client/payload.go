package client

import "strings"

// The generation API and its webhook relays do not agree on a single
// response shape: task ids, statuses and track lists show up under
// different keys, different casings and different nesting depths
// depending on which endpoint (or which relay) produced the payload.
// Instead of nested conditionals, each logical field has an ordered
// rule table; the first rule that yields a value wins. Both the webhook
// handler and the status poll run through these same tables, so push
// and pull observations of a task are normalized identically.

// Payload is a decoded JSON object from the provider.
type Payload map[string]interface{}

// Track is one generated audio output inside a task result.
type Track struct {
	AudioURL string
	Title    string
}

// NormalizedStatus is the provider-independent view of a task payload.
type NormalizedStatus struct {
	TaskID  string
	Status  string // raw status token, uppercased
	Message string
	Tracks  []Track
}

// StatusClass is the classifier verdict over status token + message.
type StatusClass int

const (
	StatusUnknown StatusClass = iota
	StatusSuccess
	StatusFailure
	StatusPending
)

func (c StatusClass) String() string {
	switch c {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

type stringRule func(Payload) (string, bool)
type listRule func(Payload) ([]interface{}, bool)

// field name variants, applied in priority order
var (
	taskIDKeys   = []string{"taskId", "task_id", "id", "ID"}
	statusKeys   = []string{"status", "callbackType"}
	messageKeys  = []string{"msg", "message", "errorMessage", "error"}
	errorMsgKeys = []string{"errorMessage", "error"}
	audioRefKeys = []string{"audio_url", "audioUrl", "url", "audio"}
	titleKeys    = []string{"title", "name"}
)

var taskIDRules = []stringRule{
	func(p Payload) (string, bool) { return anyKeyString(asMap(p["data"]), taskIDKeys) },
	func(p Payload) (string, bool) { return anyKeyString(firstItem(p["data"]), taskIDKeys) },
	func(p Payload) (string, bool) { return anyKeyString(p, taskIDKeys) },
}

var statusRules = []stringRule{
	func(p Payload) (string, bool) { return anyKeyString(p, statusKeys) },
	func(p Payload) (string, bool) { return anyKeyString(asMap(p["data"]), statusKeys) },
}

// Dedicated error keys outrank the generic message keys: a failed
// record-info response carries the HTTP-level msg ("success") at the
// top while the actual failure reason sits in data.errorMessage.
var messageRules = []stringRule{
	func(p Payload) (string, bool) { return anyKeyString(asMap(p["data"]), errorMsgKeys) },
	func(p Payload) (string, bool) {
		return anyKeyString(asMap(asMap(p["data"])["response"]), errorMsgKeys)
	},
	func(p Payload) (string, bool) { return anyKeyString(p, errorMsgKeys) },
	func(p Payload) (string, bool) { return anyKeyString(p, messageKeys) },
	func(p Payload) (string, bool) { return anyKeyString(asMap(p["data"]), messageKeys) },
	func(p Payload) (string, bool) {
		return anyKeyString(asMap(asMap(p["data"])["response"]), messageKeys)
	},
}

var trackListRules = []listRule{
	func(p Payload) ([]interface{}, bool) { return asList(p["data"]) },
	func(p Payload) ([]interface{}, bool) { return asList(asMap(p["data"])["data"]) },
	func(p Payload) ([]interface{}, bool) { return asList(asMap(p["data"])["sunoData"]) },
	func(p Payload) ([]interface{}, bool) {
		return asList(asMap(asMap(p["data"])["response"])["sunoData"])
	},
	func(p Payload) ([]interface{}, bool) { return asList(asMap(p["data"])["songs"]) },
	func(p Payload) ([]interface{}, bool) { return asList(asMap(p["data"])["clips"]) },
	func(p Payload) ([]interface{}, bool) { return asList(asMap(p["data"])["results"]) },
	func(p Payload) ([]interface{}, bool) { return asList(p["songs"]) },
	func(p Payload) ([]interface{}, bool) { return asList(p["clips"]) },
	// a lone track object under data is coerced to a one-element list
	func(p Payload) ([]interface{}, bool) {
		m := asMap(p["data"])
		if _, ok := anyKeyString(m, audioRefKeys); ok {
			return []interface{}{map[string]interface{}(m)}, true
		}
		return nil, false
	},
}

// ExtractTaskID pulls the task correlation key out of a raw payload.
func ExtractTaskID(p Payload) (string, bool) {
	for _, rule := range taskIDRules {
		if v, ok := rule(p); ok {
			return v, true
		}
	}
	return "", false
}

// ParsePayload normalizes a raw provider payload from either the
// webhook or the poll path.
func ParsePayload(p Payload) *NormalizedStatus {
	ns := &NormalizedStatus{}
	ns.TaskID, _ = ExtractTaskID(p)
	for _, rule := range statusRules {
		if v, ok := rule(p); ok {
			ns.Status = strings.ToUpper(strings.TrimSpace(v))
			break
		}
	}
	for _, rule := range messageRules {
		if v, ok := rule(p); ok {
			ns.Message = v
			break
		}
	}
	for _, rule := range trackListRules {
		items, ok := rule(p)
		if !ok {
			continue
		}
		for _, item := range items {
			m := asMap(item)
			if m == nil {
				continue
			}
			track := Track{}
			track.AudioURL, _ = anyKeyString(m, audioRefKeys)
			track.Title, _ = anyKeyString(m, titleKeys)
			ns.Tracks = append(ns.Tracks, track)
		}
		break
	}
	return ns
}

// status token sets fed to the classifier
var (
	successStatuses = map[string]bool{
		"SUCCESS": true, "COMPLETE": true, "COMPLETED": true, "DONE": true,
	}
	failureStatuses = map[string]bool{
		"FAILED": true, "ERROR": true, "CREATE_TASK_FAILED": true,
		"GENERATE_AUDIO_FAILED": true, "CALLBACK_EXCEPTION": true,
		"SENSITIVE_WORD_ERROR": true,
	}
	pendingStatuses = map[string]bool{
		"PENDING": true, "PROCESSING": true, "QUEUED": true,
		"TEXT_SUCCESS": true, "FIRST_SUCCESS": true, "SUBMITTED": true,
	}
	successKeywords = []string{"generated successfully"}
	failureKeywords = []string{"failed", "error"}
)

// Classify maps a raw status token and message onto one of four
// verdicts. Explicit status tokens win over message keywords so a
// success payload whose message happens to contain "error" is not
// misfiled.
func Classify(status, message string) StatusClass {
	switch {
	case successStatuses[status]:
		return StatusSuccess
	case failureStatuses[status]:
		return StatusFailure
	case pendingStatuses[status]:
		return StatusPending
	}
	lower := strings.ToLower(message)
	for _, kw := range successKeywords {
		if strings.Contains(lower, kw) {
			return StatusSuccess
		}
	}
	for _, kw := range failureKeywords {
		if strings.Contains(lower, kw) {
			return StatusFailure
		}
	}
	return StatusUnknown
}

// Classify applies the classifier to the normalized fields.
func (ns *NormalizedStatus) Classify() StatusClass {
	return Classify(ns.Status, ns.Message)
}

// helpers for duck-typed field lookup

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asList(v interface{}) ([]interface{}, bool) {
	l, ok := v.([]interface{})
	if !ok || len(l) == 0 {
		return nil, false
	}
	return l, true
}

func firstItem(v interface{}) map[string]interface{} {
	l, ok := asList(v)
	if !ok {
		return nil
	}
	return asMap(l[0])
}

func anyKeyString(m map[string]interface{}, keys []string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
