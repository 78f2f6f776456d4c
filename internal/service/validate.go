package service

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/auth"
)

const (
	minNameLen    = 5
	maxNameLen    = 60
	maxAddressLen = 400
	maxCommentLen = 500
	minRating     = 1
	maxRating     = 5
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateName(name string) error {
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return apperr.Validation(fmt.Sprintf("name must be %d-%d characters", minNameLen, maxNameLen))
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email is invalid")
	}
	return nil
}

func validateAddress(address string) error {
	if utf8.RuneCountInString(address) > maxAddressLen {
		return apperr.Validation(fmt.Sprintf("address must be at most %d characters", maxAddressLen))
	}
	return nil
}

func validatePassword(password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	return nil
}

func validateRating(value int, comment string) error {
	if value < minRating || value > maxRating {
		return apperr.Validation(fmt.Sprintf("rating must be between %d and %d", minRating, maxRating))
	}
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return apperr.Validation(fmt.Sprintf("comment must be at most %d characters", maxCommentLen))
	}
	return nil
}

func validateCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return apperr.Validation("latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return apperr.Validation("longitude must be between -180 and 180")
	}
	return nil
}
