package service

import (
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
)

// ValidateSSCC checks an SSCC-18: exactly 18 digits whose last digit is the
// GS1 mod-10 check digit (weights 3 and 1 alternating from the right).
func ValidateSSCC(sscc string) error {
	if len(sscc) != 18 {
		return errors.Validation(map[string]string{"sscc": "must be exactly 18 digits"})
	}

	sum := 0
	for i, r := range sscc[:17] {
		if r < '0' || r > '9' {
			return errors.Validation(map[string]string{"sscc": "must contain only digits"})
		}
		digit := int(r - '0')
		// position 17 (rightmost of the 17 payload digits) carries weight 3
		if (17-i)%2 == 1 {
			sum += digit * 3
		} else {
			sum += digit
		}
	}

	check := sscc[17]
	if check < '0' || check > '9' {
		return errors.Validation(map[string]string{"sscc": "must contain only digits"})
	}

	expected := (10 - sum%10) % 10
	if int(check-'0') != expected {
		return errors.Validation(map[string]string{"sscc": "check digit mismatch"})
	}

	return nil
}
