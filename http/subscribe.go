package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/themunch/munch"
)

const alreadySubscribedMessage = "You had been subscribed to this newsletter already."

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) error {
	if err := s.rateLimit(r, s.Config.RateLimit.Subscribe); err != nil {
		return err
	}

	input, err := decodeSubscribeRequest(r.Body)
	if err != nil {
		return err
	}

	sub := munch.NewSubscriber(input.Email)
	sub.Profile = input.Profile
	sub.UTM = input.UTM
	sub.Source = input.Source
	sub.Context = &munch.Context{
		Client: input.Context,
		Server: serverContext(r, input.Context),
	}

	logger := hlog.FromRequest(r)
	result, err := s.SubscriberService.UpsertPending(r.Context(), sub)
	if err != nil {
		return NewError(err, http.StatusInternalServerError, "subscription_failed", "")
	}

	resp := &munch.SubscribeResponse{OK: true}
	if result.Created {
		logger.Info().
			Str("email", sub.Email).
			Str("referral_type", sub.Context.Server.ReferralType).
			Msg("New subscriber saved")
	} else {
		logger.Info().
			Str("email", sub.Email).
			Msg("Existing subscriber refreshed")
		resp.Message = alreadySubscribedMessage
	}

	writeJSONResponse(w, http.StatusOK, resp)

	return nil
}

// rateLimit runs the per-endpoint check against the client IP. Buckets are
// namespaced by route so the two endpoints count independently. It returns
// the 429 to send back when the limit is hit; a limiter failure surfaces as
// an internal error.
func (s *Server) rateLimit(r *http.Request, limit munch.RateLimit) error {
	res, err := s.RateLimitService.Allow(r.Context(), r.URL.Path+":"+clientIP(r), limit)
	if err != nil {
		return err
	}

	if !res.Allowed {
		hlog.FromRequest(r).Warn().
			Str("ip", clientIP(r)).
			Time("reset_time", res.ResetTime).
			Msg("Rate limit exceeded")
		return newRateLimitError(res.ResetTime)
	}

	return nil
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	//nolint:errcheck
	json.NewEncoder(w).Encode(response)
}
