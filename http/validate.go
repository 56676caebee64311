package http

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/themunch/munch"
)

const (
	maxEmailLength   = 254
	maxProfileLength = 100
	maxUTMLength     = 200
	maxSourceLength  = 50

	defaultSource = "landing"

	maxLanguages   = 10
	maxPathHistory = 50
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)

// validEmail applies the strict email rule: trimmed, bounded, no leading,
// trailing or consecutive dots, and an anchored local@domain.tld shape.
func validEmail(email string) bool {
	trimmed := strings.TrimSpace(email)

	if trimmed == "" || len(trimmed) > maxEmailLength {
		return false
	}
	if strings.Contains(trimmed, "..") || strings.HasPrefix(trimmed, ".") || strings.HasSuffix(trimmed, ".") {
		return false
	}

	return emailRegexp.MatchString(trimmed)
}

type rawSubscribeRequest struct {
	Email   interface{}     `json:"email"`
	Profile interface{}     `json:"profile"`
	UTM     interface{}     `json:"utm"`
	Source  interface{}     `json:"source"`
	Context json.RawMessage `json:"context"`
}

type subscribeInput struct {
	Email   string
	Profile string
	UTM     string
	Source  string
	Context *munch.ClientContext
}

// decodeSubscribeRequest validates and normalizes the subscribe payload.
// A violation in any declared field fails the whole request with a named
// error; unknown fields are ignored.
func decodeSubscribeRequest(body io.Reader) (*subscribeInput, error) {
	var raw rawSubscribeRequest
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, NewError(err, http.StatusBadRequest, "invalid_request_body", "Request body is invalid or missing")
	}

	email, ok := raw.Email.(string)
	if !ok || !validEmail(email) {
		return nil, NewError(nil, http.StatusBadRequest, "invalid_email", "Email address is invalid")
	}

	profile, ok := optionalString(raw.Profile, maxProfileLength)
	if !ok {
		return nil, NewError(nil, http.StatusBadRequest, "invalid_profile", "Profile data is too long or invalid")
	}

	utm, ok := optionalString(raw.UTM, maxUTMLength)
	if !ok {
		return nil, NewError(nil, http.StatusBadRequest, "invalid_utm", "UTM data is too long or invalid")
	}

	source, ok := optionalString(raw.Source, maxSourceLength)
	if !ok {
		return nil, NewError(nil, http.StatusBadRequest, "invalid_source", "Source data is too long or invalid")
	}
	if source == "" {
		source = defaultSource
	}

	return &subscribeInput{
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Profile: profile,
		UTM:     utm,
		Source:  source,
		Context: sanitizeClientContext(raw.Context),
	}, nil
}

// decodeVerifyRequest validates the verify-subscriber payload.
func decodeVerifyRequest(body io.Reader) (string, error) {
	var raw struct {
		Email interface{} `json:"email"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return "", NewError(err, http.StatusBadRequest, "invalid_request_body", "Request body is invalid or missing")
	}

	email, ok := raw.Email.(string)
	if !ok || !validEmail(email) {
		return "", NewError(nil, http.StatusBadRequest, "invalid_email", "Email address is invalid")
	}

	return strings.ToLower(strings.TrimSpace(email)), nil
}

// optionalString accepts an absent field or a bounded string; anything else
// fails closed.
func optionalString(v interface{}, max int) (string, bool) {
	if v == nil {
		return "", true
	}

	s, ok := v.(string)
	if !ok || len(s) > max {
		return "", false
	}

	return strings.TrimSpace(s), true
}

// sanitizeClientContext clamps every leaf of the client-submitted analytics
// object; malformed or unknown values are dropped silently rather than
// failing the request.
func sanitizeClientContext(raw json.RawMessage) *munch.ClientContext {
	if len(raw) == 0 {
		return nil
	}

	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil
	}

	client, ok := input["client"].(map[string]interface{})
	if !ok {
		return nil
	}

	out := &munch.ClientContext{
		DeviceType:          clampStr(client["deviceType"], 16),
		Browser:             clampStr(client["browser"], 32),
		OS:                  clampStr(client["os"], 32),
		TimeZone:            clampStr(client["timeZone"], 64),
		TZOffset:            clampNum(client["tzOffset"]),
		UserAgent:           clampStr(client["userAgent"], 512),
		Platform:            clampStr(client["platform"], 64),
		DNT:                 clampStr(client["dnt"], 8),
		DeviceMemory:        clampNum(client["deviceMemory"]),
		HardwareConcurrency: clampNum(client["hardwareConcurrency"]),
		SessionID:           clampStr(client["sessionId"], 64),
		Referrer:            clampStr(client["referrer"], 2048),
		AdBlock:             clampBool(client["adBlock"]),
		GCLID:               clampStr(client["gclid"], 64),
		FBCLID:              clampStr(client["fbclid"], 64),
		MSCLKID:             clampStr(client["msclkid"], 64),
	}

	if langs, ok := client["languages"].([]interface{}); ok {
		if len(langs) > maxLanguages {
			langs = langs[:maxLanguages]
		}
		for _, l := range langs {
			if s := clampStr(l, 32); s != "" {
				out.Languages = append(out.Languages, s)
			}
		}
	}

	if screen, ok := client["screen"].(map[string]interface{}); ok {
		out.Screen = &munch.Screen{
			Width:      clampNum(screen["width"]),
			Height:     clampNum(screen["height"]),
			PixelRatio: clampNum(screen["pixelRatio"]),
		}
	}

	if viewport, ok := client["viewport"].(map[string]interface{}); ok {
		out.Viewport = &munch.Viewport{
			Width:  clampNum(viewport["width"]),
			Height: clampNum(viewport["height"]),
		}
	}

	if conn, ok := client["connection"].(map[string]interface{}); ok {
		out.Connection = &munch.Connection{
			EffectiveType: clampStr(conn["effectiveType"], 16),
			Downlink:      clampNum(conn["downlink"]),
			RTT:           clampNum(conn["rtt"]),
			SaveData:      clampBool(conn["saveData"]),
		}
	}

	if session, ok := client["session"].(map[string]interface{}); ok {
		out.Session = &munch.Session{
			StartTs:    clampStr(session["startTs"], 64),
			DurationMs: clampNum(session["durationMs"]),
			PageViews:  clampNum(session["pageViews"]),
		}
	}

	if history, ok := client["pathHistory"].([]interface{}); ok {
		// Keep the most recent entries, not the oldest.
		if len(history) > maxPathHistory {
			history = history[len(history)-maxPathHistory:]
		}
		for _, h := range history {
			m, ok := h.(map[string]interface{})
			if !ok {
				continue
			}
			entry := munch.PathEntry{
				Path: clampStr(m["path"], 256),
				Ts:   clampStr(m["ts"], 64),
			}
			if entry.Path != "" && entry.Ts != "" {
				out.PathHistory = append(out.PathHistory, entry)
			}
		}
	}

	out.FirstTouch = clampTouch(client["firstTouch"], true)
	out.LastTouch = clampTouch(client["lastTouch"], false)

	return out
}

func clampTouch(v interface{}, withReferrer bool) *munch.Touch {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}

	touch := &munch.Touch{
		Ts:  clampStr(m["ts"], 64),
		URL: clampStr(m["url"], 2048),
		UTM: clampUTM(m["utm"]),
	}
	if withReferrer {
		touch.Referrer = clampStr(m["referrer"], 2048)
	}

	return touch
}

func clampUTM(v interface{}) map[string]string {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}

	// Iterate in sorted key order so which entries survive the cap does not
	// depend on map iteration order.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string)
	for _, k := range keys {
		if len(out) >= 20 {
			break
		}
		key := clampString(k, 64)
		value := clampStr(m[k], 256)
		if key != "" && value != "" {
			out[key] = value
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

func clampStr(v interface{}, max int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}

	return clampString(s, max)
}

func clampString(s string, max int) string {
	if len(s) <= max {
		return s
	}

	// Back up to a rune boundary so the cut never leaves invalid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}

	return s[:max]
}

func clampNum(v interface{}) *float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}

	return &f
}

func clampBool(v interface{}) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}

	return &b
}
