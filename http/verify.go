package http

import (
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/themunch/munch"
)

func (s *Server) verifySubscriberHandler(w http.ResponseWriter, r *http.Request) error {
	if err := s.rateLimit(r, s.Config.RateLimit.Verify); err != nil {
		return err
	}

	email, err := decodeVerifyRequest(r.Body)
	if err != nil {
		return err
	}

	if _, err := s.SubscriberService.FindByEmail(r.Context(), email); err != nil {
		return storeError(err, "verification_failed")
	}

	verification := s.VerifierService.Verify(r.Context(), email)

	status, err := s.SubscriberService.ApplyVerification(r.Context(), email, verification)
	if err != nil {
		return storeError(err, "verification_failed")
	}

	hlog.FromRequest(r).Info().
		Str("email", email).
		Str("result", verification.Result).
		Str("status", status).
		Msg("Verification applied")

	writeJSONResponse(w, http.StatusOK, &munch.VerifyResponse{
		OK:       true,
		Status:   status,
		Verifier: &verification,
	})

	return nil
}
