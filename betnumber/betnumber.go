// Package betnumber validates bet numbers against game rules and decides which prize tier a
// bet matches.
package betnumber

import (
	"sort"
	"strings"

	"drawbet/apperr"
	"drawbet/models"
)

var digitsByGame = map[models.GameType]int{
	models.Game3D: 3,
	models.Game4D: 4,
	models.Game5D: 5,
	models.Game6D: 6,
}

func Digits(game models.GameType) (int, error) {
	n, ok := digitsByGame[game]
	if !ok {
		return 0, apperr.New(apperr.KindUnsupportedGameOrBetType, "unknown game type", apperr.Fields{"game_type": game})
	}
	return n, nil
}

func ParseGameType(s string) (models.GameType, error) {
	g := models.GameType(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := Digits(g); err != nil {
		return "", err
	}
	return g, nil
}

func ParseBetType(s string) (models.BetType, error) {
	b := models.BetType(strings.ToUpper(strings.TrimSpace(s)))
	switch b {
	case models.BetBig, models.BetSmall, models.BetIBox:
		return b, nil
	}
	return "", apperr.New(apperr.KindUnsupportedGameOrBetType, "unknown bet type", apperr.Fields{"bet_type": s})
}

func ValidateFormat(game models.GameType, numbers string) error {
	want, err := Digits(game)
	if err != nil {
		return err
	}
	if len(numbers) != want {
		return apperr.InvalidFormat("wrong digit count", apperr.Fields{
			"game_type": game, "expected_digits": want, "actual_digits": len(numbers), "numbers": numbers,
		})
	}
	for i := 0; i < len(numbers); i++ {
		if numbers[i] < '0' || numbers[i] > '9' {
			return apperr.InvalidFormat("numbers must be decimal digits", apperr.Fields{
				"game_type": game, "numbers": numbers, "position": i,
			})
		}
	}
	return nil
}

// ValidateIBox requires every digit to be distinct.
func ValidateIBox(numbers string) error {
	var seen [10]bool
	for i := 0; i < len(numbers); i++ {
		d := numbers[i] - '0'
		if d > 9 {
			return apperr.InvalidFormat("numbers must be decimal digits", apperr.Fields{"numbers": numbers})
		}
		if seen[d] {
			return apperr.New(apperr.KindDuplicateDigits, "IBOX numbers must not repeat a digit", apperr.Fields{
				"numbers": numbers, "digit": string(numbers[i]),
			})
		}
		seen[d] = true
	}
	return nil
}

func PermutationCount(numbers string) int {
	n := 1
	for i := 2; i <= len(numbers); i++ {
		n *= i
	}
	return n
}

// Permutations returns every distinct ordering of the digits in lexicographic order.
func Permutations(numbers string) []string {
	if numbers == "" {
		return nil
	}
	b := []byte(numbers)
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })

	var out []string
	for {
		out = append(out, string(b))
		if !nextPermutation(b) {
			return out
		}
	}
}

func nextPermutation(b []byte) bool {
	i := len(b) - 2
	for i >= 0 && b[i] >= b[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(b) - 1
	for b[j] <= b[i] {
		j--
	}
	b[i], b[j] = b[j], b[i]
	for l, r := i+1, len(b)-1; l < r; l, r = l+1, r-1 {
		b[l], b[r] = b[r], b[l]
	}
	return true
}

// IsPermutation reports whether a is some ordering of b's digits.
func IsPermutation(a, b string) bool {
	if len(a) != len(b) || a == "" {
		return false
	}
	var counts [256]int
	for i := 0; i < len(a); i++ {
		counts[a[i]]++
		counts[b[i]]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
