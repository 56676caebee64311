package http

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mileusna/useragent"
	"golang.org/x/net/publicsuffix"

	"github.com/themunch/munch"
)

// First/last-touch cookies are written by the edge layer on first visit; the
// pipeline only reads them.
const (
	cookieFirstVisit = "munch_first_visit"
	cookieFirstURL   = "munch_first_url"
	cookieReferrer   = "munch_referrer"
	cookieFirstUTM   = "munch_first_utm"
	cookieLastUTM    = "munch_last_utm"
)

var paidMediums = map[string]struct{}{
	"cpc":         {},
	"ppc":         {},
	"cpm":         {},
	"display":     {},
	"banner":      {},
	"retargeting": {},
}

// Referral sets are matched on the registrable domain of the referer host.
var searchDomains = map[string]struct{}{
	"google.com":     {},
	"bing.com":       {},
	"yahoo.com":      {},
	"duckduckgo.com": {},
	"baidu.com":      {},
	"yandex.com":     {},
	"yandex.ru":      {},
	"ecosia.org":     {},
	"startpage.com":  {},
	"qwant.com":      {},
	"ask.com":        {},
}

var socialDomains = map[string]struct{}{
	"facebook.com":  {},
	"instagram.com": {},
	"twitter.com":   {},
	"x.com":         {},
	"t.co":          {},
	"linkedin.com":  {},
	"reddit.com":    {},
	"pinterest.com": {},
	"tiktok.com":    {},
	"youtube.com":   {},
	"threads.net":   {},
	"snapchat.com":  {},
	"t.me":          {},
	"discord.com":   {},
}

// Webmail hosts are matched exactly: mail.google.com must not fall into the
// google.com search bucket.
var webmailHosts = map[string]struct{}{
	"mail.google.com":       {},
	"mail.yahoo.com":        {},
	"outlook.live.com":      {},
	"outlook.office.com":    {},
	"outlook.office365.com": {},
	"mail.aol.com":          {},
	"mail.proton.me":        {},
	"mail.protonmail.com":   {},
	"mail.zoho.com":         {},
	"mail.gmx.com":          {},
	"webmail.t-online.de":   {},
}

// serverContext derives the server-side attribution snapshot from headers and
// cookies. Given the same snapshot the result is deterministic.
func serverContext(r *http.Request, client *munch.ClientContext) *munch.ServerContext {
	ua := useragent.Parse(r.UserAgent())

	ctx := &munch.ServerContext{
		IP:             clientIP(r),
		UserAgent:      clampString(r.UserAgent(), 512),
		Referer:        clampString(r.Referer(), 2048),
		AcceptLanguage: clampString(r.Header.Get("Accept-Language"), 128),
		Country:        clampString(r.Header.Get("CF-IPCountry"), 8),
		DeviceType:     deviceType(ua),
		Browser:        ua.Name,
		OS:             ua.OS,
		FirstVisit:     cookieValue(r, cookieFirstVisit, 64),
		FirstURL:       cookieValue(r, cookieFirstURL, 2048),
		FirstReferrer:  cookieValue(r, cookieReferrer, 2048),
		ReceivedAt:     time.Now().UTC(),
	}

	// Last-touch UTM wins over first-touch; absent cookies leave it unset.
	utm := utmCookie(r, cookieLastUTM)
	if utm == nil {
		utm = utmCookie(r, cookieFirstUTM)
	}
	ctx.UTM = utm

	ctx.ReferralType = classifyReferral(ctx.Referer, utm, client)

	return ctx
}

// classifyReferral buckets the signup by acquisition channel. Paid click IDs
// and paid UTM mediums outrank everything; after that the referer host
// decides.
func classifyReferral(referer string, utm map[string]string, client *munch.ClientContext) string {
	if isPaid(utm, client) {
		return munch.ReferralPaidAd
	}

	if referer == "" {
		return munch.ReferralDirect
	}

	host := refererHost(referer)
	if host == "" {
		return munch.ReferralReferral
	}

	if _, ok := webmailHosts[host]; ok {
		return munch.ReferralEmail
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		domain = host
	}

	if _, ok := searchDomains[domain]; ok {
		return munch.ReferralOrganicSearch
	}
	if _, ok := socialDomains[domain]; ok {
		return munch.ReferralSocial
	}
	if strings.HasPrefix(host, "mail.") || strings.HasPrefix(host, "webmail.") {
		return munch.ReferralEmail
	}

	return munch.ReferralReferral
}

func isPaid(utm map[string]string, client *munch.ClientContext) bool {
	for _, key := range []string{"gclid", "fbclid", "msclkid"} {
		if utm[key] != "" {
			return true
		}
	}

	if client != nil && (client.GCLID != "" || client.FBCLID != "" || client.MSCLKID != "") {
		return true
	}

	medium := strings.ToLower(utm["utm_medium"])
	if medium == "" {
		return false
	}
	if _, ok := paidMediums[medium]; ok {
		return true
	}

	return strings.HasPrefix(medium, "paid")
}

func refererHost(referer string) string {
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Hostname())
}

func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "bot"
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	case ua.Desktop:
		return "desktop"
	default:
		return "unknown"
	}
}

// clientIP picks the first valid address from the usual proxy headers,
// falling back to the connection's remote address.
func clientIP(r *http.Request) string {
	if ip := parseIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip := parseIP(part); ip != "" {
				return ip
			}
		}
	}

	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}

	return "unknown"
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}

	return ip.String()
}

func cookieValue(r *http.Request, name string, max int) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}

	value, err := url.QueryUnescape(c.Value)
	if err != nil {
		value = c.Value
	}

	return clampString(value, max)
}

// utmCookie decodes a JSON UTM cookie into a bounded string map.
func utmCookie(r *http.Request, name string) map[string]string {
	value := cookieValue(r, name, 512)
	if value == "" {
		return nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil
	}

	return clampUTM(raw)
}
