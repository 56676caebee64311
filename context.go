package munch

import "time"

// Context carries the signup-time snapshot of who subscribed and how they got
// here. It is attached once, at signup, and never re-validated afterwards.
type Context struct {
	Client *ClientContext `json:"client,omitempty" bson:"client,omitempty"`
	Server *ServerContext `json:"server,omitempty" bson:"server,omitempty"`
}

// ClientContext holds passive analytics submitted by the browser. Every field
// is length- and type-clamped before it is accepted; unknown fields are
// dropped silently.
type ClientContext struct {
	DeviceType          string      `json:"deviceType,omitempty" bson:"deviceType,omitempty"`
	Browser             string      `json:"browser,omitempty" bson:"browser,omitempty"`
	OS                  string      `json:"os,omitempty" bson:"os,omitempty"`
	TimeZone            string      `json:"timeZone,omitempty" bson:"timeZone,omitempty"`
	TZOffset            *float64    `json:"tzOffset,omitempty" bson:"tzOffset,omitempty"`
	Languages           []string    `json:"languages,omitempty" bson:"languages,omitempty"`
	UserAgent           string      `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	Platform            string      `json:"platform,omitempty" bson:"platform,omitempty"`
	DNT                 string      `json:"dnt,omitempty" bson:"dnt,omitempty"`
	Screen              *Screen     `json:"screen,omitempty" bson:"screen,omitempty"`
	Viewport            *Viewport   `json:"viewport,omitempty" bson:"viewport,omitempty"`
	DeviceMemory        *float64    `json:"deviceMemory,omitempty" bson:"deviceMemory,omitempty"`
	HardwareConcurrency *float64    `json:"hardwareConcurrency,omitempty" bson:"hardwareConcurrency,omitempty"`
	Connection          *Connection `json:"connection,omitempty" bson:"connection,omitempty"`
	SessionID           string      `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	Session             *Session    `json:"session,omitempty" bson:"session,omitempty"`
	Referrer            string      `json:"referrer,omitempty" bson:"referrer,omitempty"`
	PathHistory         []PathEntry `json:"pathHistory,omitempty" bson:"pathHistory,omitempty"`
	FirstTouch          *Touch      `json:"firstTouch,omitempty" bson:"firstTouch,omitempty"`
	LastTouch           *Touch      `json:"lastTouch,omitempty" bson:"lastTouch,omitempty"`
	AdBlock             *bool       `json:"adBlock,omitempty" bson:"adBlock,omitempty"`
	GCLID               string      `json:"gclid,omitempty" bson:"gclid,omitempty"`
	FBCLID              string      `json:"fbclid,omitempty" bson:"fbclid,omitempty"`
	MSCLKID             string      `json:"msclkid,omitempty" bson:"msclkid,omitempty"`
}

type Screen struct {
	Width      *float64 `json:"width,omitempty" bson:"width,omitempty"`
	Height     *float64 `json:"height,omitempty" bson:"height,omitempty"`
	PixelRatio *float64 `json:"pixelRatio,omitempty" bson:"pixelRatio,omitempty"`
}

type Viewport struct {
	Width  *float64 `json:"width,omitempty" bson:"width,omitempty"`
	Height *float64 `json:"height,omitempty" bson:"height,omitempty"`
}

type Connection struct {
	EffectiveType string   `json:"effectiveType,omitempty" bson:"effectiveType,omitempty"`
	Downlink      *float64 `json:"downlink,omitempty" bson:"downlink,omitempty"`
	RTT           *float64 `json:"rtt,omitempty" bson:"rtt,omitempty"`
	SaveData      *bool    `json:"saveData,omitempty" bson:"saveData,omitempty"`
}

type Session struct {
	StartTs    string   `json:"startTs,omitempty" bson:"startTs,omitempty"`
	DurationMs *float64 `json:"durationMs,omitempty" bson:"durationMs,omitempty"`
	PageViews  *float64 `json:"pageViews,omitempty" bson:"pageViews,omitempty"`
}

type PathEntry struct {
	Path string `json:"path" bson:"path"`
	Ts   string `json:"ts" bson:"ts"`
}

// Touch records a first- or last-touch attribution point.
type Touch struct {
	Ts       string            `json:"ts,omitempty" bson:"ts,omitempty"`
	URL      string            `json:"url,omitempty" bson:"url,omitempty"`
	Referrer string            `json:"referrer,omitempty" bson:"referrer,omitempty"`
	UTM      map[string]string `json:"utm,omitempty" bson:"utm,omitempty"`
}

// ServerContext is derived on the API side from headers and cookies. The
// first/last-touch cookies are set by an edge-level interceptor on first
// visit; this service only reads them.
type ServerContext struct {
	IP             string            `json:"ip,omitempty" bson:"ip,omitempty"`
	UserAgent      string            `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	Referer        string            `json:"referer,omitempty" bson:"referer,omitempty"`
	AcceptLanguage string            `json:"acceptLanguage,omitempty" bson:"acceptLanguage,omitempty"`
	Country        string            `json:"country,omitempty" bson:"country,omitempty"`
	DeviceType     string            `json:"deviceType,omitempty" bson:"deviceType,omitempty"`
	Browser        string            `json:"browser,omitempty" bson:"browser,omitempty"`
	OS             string            `json:"os,omitempty" bson:"os,omitempty"`
	FirstVisit     string            `json:"firstVisit,omitempty" bson:"firstVisit,omitempty"`
	FirstURL       string            `json:"firstUrl,omitempty" bson:"firstUrl,omitempty"`
	FirstReferrer  string            `json:"firstReferrer,omitempty" bson:"firstReferrer,omitempty"`
	UTM            map[string]string `json:"utm,omitempty" bson:"utm,omitempty"`
	ReferralType   string            `json:"referralType,omitempty" bson:"referralType,omitempty"`
	ReceivedAt     time.Time         `json:"receivedAt" bson:"receivedAt"`
}

// Referral classification
const (
	ReferralPaidAd        = "paid_ad"
	ReferralDirect        = "direct"
	ReferralOrganicSearch = "organic_search"
	ReferralSocial        = "social"
	ReferralEmail         = "email"
	ReferralReferral      = "referral"
)
