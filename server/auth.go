// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"github.com/golang-jwt/jwt/v5"

	maerr "maestro/platform/shared/errors"
)

// validateToken parses and verifies tokenString against secret, the
// way the teacher's agent runtime validates user tokens, without its
// test-mode prefix shortcuts. A valid, non-expired token returns its
// subject claim.
func validateToken(tokenString, secret string) (string, error) {
	if tokenString == "" {
		return "", maerr.New(maerr.KindValidation, "missing token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, maerr.New(maerr.KindValidation, "unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", maerr.Wrap(maerr.KindValidation, err, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", maerr.New(maerr.KindValidation, "malformed token claims")
	}

	return getClaimString(claims, "sub"), nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
