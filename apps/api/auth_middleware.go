package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/schoolhub/platform/go/auth"
)

// buildAuthMiddleware verifies HS256 bearer tokens and normalizes the school claim to a canonical UUID.
func buildAuthMiddleware(cfg config) func(http.Handler) http.Handler {
	verify := platformauth.HS256Verifier([]byte(cfg.JWTSecret))

	extract := func(claims map[string]interface{}) (*platformauth.UserCredentials, error) {
		creds, err := platformauth.DefaultCredentialExtractor(claims)
		if err != nil {
			return nil, err
		}
		if creds.Role == "" {
			return nil, errors.New("role claim required")
		}
		if creds.Role == platformauth.RoleSuperAdmin {
			return creds, nil
		}

		if creds.SchoolID == nil || *creds.SchoolID == "" {
			return nil, errors.New("school claim required")
		}
		schoolID, err := uuid.Parse(*creds.SchoolID)
		if err != nil {
			return nil, fmt.Errorf("school claim is not a uuid: %w", err)
		}
		id := schoolID.String()
		creds.SchoolID = &id
		return creds, nil
	}

	return platformauth.JWT(verify, extract)
}
