package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rentwatch/internal/domain"
)

// ErrInvalidFrequency возвращается при неизвестном режиме доставки.
var ErrInvalidFrequency = errors.New("недопустимый режим доставки")

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("некорректный часовой пояс")

// Service отвечает за настройки доставки получателей.
type Service struct {
	prefs  domain.PreferenceRepo
	store  domain.EntityStore
	logger zerolog.Logger
}

// NewService создаёт сервис настроек.
func NewService(prefs domain.PreferenceRepo, store domain.EntityStore, logger zerolog.Logger) *Service {
	return &Service{prefs: prefs, store: store, logger: logger}
}

// Resolve возвращает настройки получателя, создавая запись со
// значениями по умолчанию при первом обращении.
func (s *Service) Resolve(ctx context.Context, recipientID int64) (domain.RecipientPreference, error) {
	if _, err := s.store.GetRecipient(ctx, recipientID); err != nil {
		return domain.RecipientPreference{}, fmt.Errorf("получение получателя: %w", err)
	}
	pref, created, err := s.prefs.ResolveOrDefault(ctx, recipientID)
	if err != nil {
		return domain.RecipientPreference{}, fmt.Errorf("получение настроек: %w", err)
	}
	if created {
		s.logger.Info().Int64("recipient_id", recipientID).Msg("prefs: созданы настройки по умолчанию")
	}
	return pref, nil
}

// Update валидирует и сохраняет настройки получателя.
func (s *Service) Update(ctx context.Context, pref domain.RecipientPreference) (domain.RecipientPreference, error) {
	if !pref.Frequency.Valid() {
		return domain.RecipientPreference{}, ErrInvalidFrequency
	}
	if pref.LookaheadDays < 1 {
		pref.LookaheadDays = 1
	}
	if pref.Timezone != "" {
		normalized, err := normalizeTimezone(pref.Timezone)
		if err != nil {
			return domain.RecipientPreference{}, err
		}
		pref.Timezone = normalized
	}
	if _, err := s.store.GetRecipient(ctx, pref.RecipientID); err != nil {
		return domain.RecipientPreference{}, fmt.Errorf("получение получателя: %w", err)
	}
	// Запись создаётся лениво: Update до первого Resolve должен сначала
	// материализовать строку со значениями по умолчанию.
	if _, _, err := s.prefs.ResolveOrDefault(ctx, pref.RecipientID); err != nil {
		return domain.RecipientPreference{}, fmt.Errorf("получение настроек: %w", err)
	}
	updated, err := s.prefs.Update(ctx, pref)
	if err != nil {
		return domain.RecipientPreference{}, fmt.Errorf("обновление настроек: %w", err)
	}
	return updated, nil
}

// normalizeTimezone приводит произвольный пользовательский ввод к
// каноническому имени из базы зон: пробелы заменяются подчёркиваниями,
// регистр сегментов выравнивается.
func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
