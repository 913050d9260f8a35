package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

const (
	MaxSubjectLength    = 200
	MinMessageLength    = 10
	MaxMessageLength    = 5000
	DefaultContactLimit = 50
)

type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type ContactService struct {
	repo   repository.ContactRepository
	logger *slog.Logger
}

func NewContactService(repo repository.ContactRepository, logger *slog.Logger) *ContactService {
	return &ContactService{repo: repo, logger: logger}
}

// Submit validates and stores a contact form message. remoteIP is kept for
// abuse triage only.
func (s *ContactService) Submit(ctx context.Context, in ContactInput, remoteIP string) (*model.ContactMessage, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name", fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(in.Subject)
	if utf8.RuneCountInString(subject) > MaxSubjectLength {
		return nil, apperror.ValidationFailed("subject", fmt.Sprintf("subject must be %d characters or less", MaxSubjectLength))
	}
	message := strings.TrimSpace(in.Message)
	if n := utf8.RuneCountInString(message); n < MinMessageLength || n > MaxMessageLength {
		return nil, apperror.ValidationFailed("message",
			fmt.Sprintf("message must be between %d and %d characters", MinMessageLength, MaxMessageLength))
	}

	msg := &model.ContactMessage{
		Name:     name,
		Email:    email,
		Subject:  subject,
		Message:  message,
		RemoteIP: remoteIP,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("service/contact: storing message: %w", err)
	}

	s.logger.Info("contact message received",
		slog.String("id", msg.ID),
		slog.String("email", email),
	)
	return msg, nil
}

// List is used by the operator CLI.
func (s *ContactService) List(ctx context.Context, limit, offset int) ([]model.ContactMessage, error) {
	if limit <= 0 {
		limit = DefaultContactLimit
	}
	msgs, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("service/contact: listing messages: %w", err)
	}
	return msgs, nil
}
