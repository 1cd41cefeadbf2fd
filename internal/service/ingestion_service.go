package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense_ingest/internal/channel"
	"expense_ingest/internal/extraction"
	"expense_ingest/internal/model"
	"expense_ingest/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome describes how an inbound message was resolved. Every outcome is a
// handled result; only errors returned next to it are unexpected faults.
type Outcome string

const (
	OutcomeRecorded              Outcome = "recorded"
	OutcomeDuplicate             Outcome = "duplicate"
	OutcomeUnregistered          Outcome = "unregistered"
	OutcomeExtractionUnavailable Outcome = "extraction_unavailable"
	OutcomeNotUnderstood         Outcome = "not_understood"
	OutcomeNoAmount              Outcome = "no_amount"
	OutcomeSaveFailed            Outcome = "save_failed"
)

// IngestionService turns one inbound channel message into at most one expense
// and one reply.
type IngestionService interface {
	HandleMessage(ctx context.Context, msg model.InboundMessage) (Outcome, error)
}

// IngestionConfig tunes the pipeline. Zero values select the defaults.
type IngestionConfig struct {
	FallbackCategory  string // default "Other"
	Uncategorized     string // label used in replies when no category resolves
	Location          *time.Location
	ExtractionTimeout time.Duration
	Picker            TemplatePicker
	Now               func() time.Time
}

type ingestionService struct {
	profiles   repository.ProfileRepository
	categories repository.CategoryRepository
	expenses   repository.ExpenseRepository
	extractor  extraction.Extractor
	sender     channel.Sender
	cfg        IngestionConfig
	logger     *zap.Logger
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(
	profiles repository.ProfileRepository,
	categories repository.CategoryRepository,
	expenses repository.ExpenseRepository,
	extractor extraction.Extractor,
	sender channel.Sender,
	cfg IngestionConfig,
	logger *zap.Logger,
) IngestionService {
	if cfg.FallbackCategory == "" {
		cfg.FallbackCategory = "Other"
	}
	if cfg.Uncategorized == "" {
		cfg.Uncategorized = "Outros"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = 8 * time.Second
	}
	if cfg.Picker == nil {
		cfg.Picker = RandomPicker
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ingestionService{
		profiles:   profiles,
		categories: categories,
		expenses:   expenses,
		extractor:  extractor,
		sender:     sender,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *ingestionService) HandleMessage(ctx context.Context, msg model.InboundMessage) (Outcome, error) {
	log := s.logger.With(zap.String("from", msg.From), zap.String("message_id", msg.MessageID))

	profile, err := s.profiles.FindVerifiedByPhone(ctx, msg.From)
	if err != nil {
		return "", fmt.Errorf("identity lookup failed: %w", err)
	}
	if profile == nil {
		log.Info("message from unregistered sender")
		s.reply(ctx, log, msg.From, replyRegister)
		return OutcomeUnregistered, nil
	}
	log = log.With(zap.String("user_id", profile.ID))

	seen, err := s.expenses.ExistsByMessageID(ctx, msg.MessageID)
	if err != nil {
		return "", fmt.Errorf("duplicate check failed: %w", err)
	}
	if seen {
		log.Info("duplicate delivery ignored")
		return OutcomeDuplicate, nil
	}

	categories, err := s.categories.ListForUser(ctx, profile.ID)
	if err != nil {
		return "", fmt.Errorf("category lookup failed: %w", err)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		s.reply(ctx, log, msg.From, replyNotUnderstood)
		return OutcomeNotUnderstood, nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	candidate, err := s.extractor.Extract(extractCtx, text, categories)
	cancel()
	if err != nil {
		if errors.Is(err, extraction.ErrMalformedResponse) {
			log.Warn("extraction returned malformed output", zap.Error(err))
			s.reply(ctx, log, msg.From, replyNotUnderstood)
			return OutcomeNotUnderstood, nil
		}
		log.Error("extraction failed", zap.Error(err))
		s.reply(ctx, log, msg.From, replyTryAgain)
		return OutcomeExtractionUnavailable, nil
	}

	amount := candidate.Amount.Decimal.Round(2)
	if !candidate.Amount.Valid || !amount.IsPositive() {
		s.reply(ctx, log, msg.From, replyNoAmount)
		return OutcomeNoAmount, nil
	}

	description := candidate.Description
	if description == "" {
		description = text
	}

	category := ResolveCategory(categories, candidate.CategoryName, s.cfg.FallbackCategory)
	categoryLabel := s.cfg.Uncategorized
	var categoryID *string
	if category != nil {
		categoryID = &category.ID
		categoryLabel = category.Name
	}

	today := s.cfg.Now().In(s.cfg.Location)
	messageID := msg.MessageID
	expense := &model.Expense{
		ID:                uuid.NewString(),
		UserID:            profile.ID,
		Amount:            amount,
		Description:       description,
		CategoryID:        categoryID,
		Date:              time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC),
		Source:            model.ExpenseSourceWhatsApp,
		WhatsAppMessageID: &messageID,
	}

	inserted, err := s.expenses.CreateFromChannel(ctx, expense)
	if err != nil {
		log.Error("failed to save expense", zap.Error(err))
		s.reply(ctx, log, msg.From, replySaveFailed)
		return OutcomeSaveFailed, nil
	}
	if !inserted {
		log.Info("concurrent duplicate delivery ignored")
		return OutcomeDuplicate, nil
	}

	log.Info("expense recorded",
		zap.String("expense_id", expense.ID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("category", categoryLabel))
	s.reply(ctx, log, msg.From, confirmation(s.cfg.Picker, amount, description, categoryLabel))
	return OutcomeRecorded, nil
}

// reply sends a message and only logs failures; the outcome is already decided.
func (s *ingestionService) reply(ctx context.Context, log *zap.Logger, to, body string) {
	if err := s.sender.SendText(ctx, to, body); err != nil {
		log.Warn("failed to send reply", zap.Error(err))
	}
}
