// Package providers looks up draw providers: activity, supported games and the draw schedule.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"drawbet/apperr"
	"drawbet/models"
)

type Registry interface {
	Lookup(ctx context.Context, code string) (*Info, error)
}

// Info is the read-only view of a provider the betting core works with.
type Info struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Active    bool     `json:"active"`
	GameTypes []string `json:"game_types"`
	BetTypes  []string `json:"bet_types"`
	DrawDays  []string `json:"draw_days"`
	DrawTime  string   `json:"draw_time"`
	Timezone  string   `json:"timezone"`
}

func InfoFrom(p *models.Provider) *Info {
	return &Info{
		Code:      p.Code,
		Name:      p.Name,
		Active:    p.IsActive,
		GameTypes: splitList(p.GameTypes),
		BetTypes:  splitList(p.BetTypes),
		DrawDays:  splitList(p.DrawDays),
		DrawTime:  p.DrawTime,
		Timezone:  p.Timezone,
	}
}

func (i *Info) Supports(game models.GameType, bet models.BetType) bool {
	return containsFold(i.GameTypes, string(game)) && containsFold(i.BetTypes, string(bet))
}

// OffersGame reports whether the provider draws results for game.
func (i *Info) OffersGame(game models.GameType) bool {
	return containsFold(i.GameTypes, string(game))
}

func (i *Info) Location() (*time.Location, error) {
	if i.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(i.Timezone)
	if err != nil {
		return nil, fmt.Errorf("provider %s timezone %q: %w", i.Code, i.Timezone, err)
	}
	return loc, nil
}

// DrawDay is the provider-local calendar day of t, formatted YYYY-MM-DD.
func (i *Info) DrawDay(t time.Time) (string, error) {
	loc, err := i.Location()
	if err != nil {
		return "", err
	}
	return t.In(loc).Format("2006-01-02"), nil
}

// CheckDrawDate fails with InvalidDrawDate unless t falls on a scheduled draw weekday at the draw time.
func (i *Info) CheckDrawDate(t time.Time) error {
	loc, err := i.Location()
	if err != nil {
		return err
	}
	hour, minute, err := parseClock(i.DrawTime)
	if err != nil {
		return fmt.Errorf("provider %s: %w", i.Code, err)
	}
	local := t.In(loc)
	day := strings.ToUpper(local.Weekday().String()[:3])

	if !containsFold(i.DrawDays, day) || local.Hour() != hour || local.Minute() != minute || local.Second() != 0 {
		return apperr.New(apperr.KindInvalidDrawDate, "draw date is not on the provider schedule", apperr.Fields{
			"provider":  i.Code,
			"draw_date": local.Format(time.RFC3339),
			"draw_days": strings.Join(i.DrawDays, ","),
			"draw_time": i.DrawTime,
		})
	}
	return nil
}

// DrawInstant is the moment the provider draws on day (YYYY-MM-DD, provider-local).
func (i *Info) DrawInstant(day string) (time.Time, error) {
	loc, err := i.Location()
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseClock(i.DrawTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("provider %s: %w", i.Code, err)
	}
	d, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, apperr.InvalidFormat("draw date must be YYYY-MM-DD", apperr.Fields{"draw_date": day})
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), nil
}

// Store reads providers from the database.
type Store struct {
	db    *gorm.DB
	vault *Vault
}

func NewStore(db *gorm.DB, vault *Vault) *Store {
	return &Store{db: db, vault: vault}
}

func (s *Store) Lookup(ctx context.Context, code string) (*Info, error) {
	p, err := s.find(ctx, code)
	if err != nil {
		return nil, err
	}
	return InfoFrom(p), nil
}

func (s *Store) find(ctx context.Context, code string) (*models.Provider, error) {
	var p models.Provider
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToUpper(code)).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("provider", code)
	}
	if err != nil {
		return nil, fmt.Errorf("load provider %s: %w", code, err)
	}
	return &p, nil
}

// APIKey returns the decrypted API key for the result sync collaborator.
func (s *Store) APIKey(ctx context.Context, code string) (string, error) {
	p, err := s.find(ctx, code)
	if err != nil {
		return "", err
	}
	if len(p.APIKeySealed) == 0 {
		return "", apperr.NotFound("provider api key", code)
	}
	plain, err := s.vault.Open(p.APIKeySealed, []byte(p.Code))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *Store) SetAPIKey(ctx context.Context, code, key string) error {
	p, err := s.find(ctx, code)
	if err != nil {
		return err
	}
	sealed, err := s.vault.Seal([]byte(key), []byte(p.Code))
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(p).Update("api_key_sealed", sealed).Error
}

// SetActive opens or closes the provider for new bets.
func (s *Store) SetActive(ctx context.Context, code string, active bool) (*Info, error) {
	p, err := s.find(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(p).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("update provider %s: %w", p.Code, err)
	}
	p.IsActive = active
	return InfoFrom(p), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid draw time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid draw time %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid draw time %q", s)
	}
	return h, m, nil
}
