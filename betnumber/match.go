package betnumber

import (
	"strings"

	"drawbet/apperr"
	"drawbet/models"
)

type Tier string

const (
	TierFirst       Tier = "FIRST"
	TierSecond      Tier = "SECOND"
	TierThird       Tier = "THIRD"
	TierStarter     Tier = "STARTER"
	TierConsolation Tier = "CONSOLATION"
)

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierFirst, TierSecond, TierThird, TierStarter, TierConsolation:
		return t, nil
	}
	return "", apperr.InvalidFormat("unknown prize tier", apperr.Fields{"tier": s})
}

// Prizes is the winning number set of one draw.
type Prizes struct {
	First        string
	Second       string
	Third        string
	Starters     []string
	Consolations []string
}

func PrizesOf(r *models.DrawResult) Prizes {
	return Prizes{
		First:        r.FirstPrize,
		Second:       r.SecondPrize,
		Third:        r.ThirdPrize,
		Starters:     r.StarterNumbers(),
		Consolations: r.ConsolationNumbers(),
	}
}

// Policy toggles optional tiers.
type Policy struct {
	// BigExtendedTiers lets BIG bets also win on starter and consolation numbers.
	BigExtendedTiers bool
}

// Match returns the highest tier the bet wins, if any.
func Match(bet models.BetType, numbers string, p Prizes, policy Policy) (Tier, bool) {
	switch bet {
	case models.BetBig:
		switch numbers {
		case p.First:
			return TierFirst, true
		case p.Second:
			return TierSecond, true
		case p.Third:
			return TierThird, true
		}
		if policy.BigExtendedTiers {
			if contains(p.Starters, numbers) {
				return TierStarter, true
			}
			if contains(p.Consolations, numbers) {
				return TierConsolation, true
			}
		}
	case models.BetSmall:
		if numbers == p.First {
			return TierFirst, true
		}
	case models.BetIBox:
		if IsPermutation(numbers, p.First) {
			return TierFirst, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v != "" && v == s {
			return true
		}
	}
	return false
}
