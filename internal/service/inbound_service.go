package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lotmarket/internal/models"
	"lotmarket/pkg/utils"
)

// Ошибки разбора входящих ответов вторичного канала
var (
	// ErrUnparsableReply - текст не похож на "YES <префикс>" / "NO <префикс>"
	ErrUnparsableReply = errors.New("unparsable secondary reply")
	// ErrUnknownPrefix - префикс не указывает на открытое подтверждение
	ErrUnknownPrefix = errors.New("order prefix does not match a pending confirmation")
)

// ConfirmationResponder - операции движка, нужные для входящих ответов
type ConfirmationResponder interface {
	ResolveOrderPrefix(prefix string) (string, bool)
	HandleConfirmationResponse(key string, accepted bool, newQuantity *int64) error
	ListSolicitations(userID string) []*models.PendingConfirmation
}

// InboundService разбирает ответы, пришедшие по вторичному каналу,
// и транслирует их в подтверждения количества.
//
// Формат ответа: "YES <префикс-ордера>" или "NO <префикс-ордера>",
// где префикс - первые 8 символов идентификатора собственного ордера
// пользователя. Регистр слова и лишние пробелы не значимы.
// Количество по вторичному каналу передать нельзя: YES меньшей стороны
// трактуется как согласие на объем большей стороны.
type InboundService struct {
	engine ConfirmationResponder
	logger *zap.Logger
}

// NewInboundService создает новый экземпляр InboundService
func NewInboundService(engine ConfirmationResponder, logger *zap.Logger) *InboundService {
	return &InboundService{
		engine: engine,
		logger: logger,
	}
}

// HandleReply разбирает текст ответа и применяет его к подтверждению.
//
// Возвращает ErrUnparsableReply для текста не по формату и
// ErrUnknownPrefix когда префикс не находит открытого подтверждения
// (оно могло истечь, пока пользователь отвечал).
func (s *InboundService) HandleReply(from, text string) error {
	accepted, prefix, err := parseReply(text)
	if err != nil {
		s.logger.Debug("Unparsable secondary channel reply",
			zap.String("from", from),
			zap.String("text", text))
		return err
	}

	key, ok := s.engine.ResolveOrderPrefix(prefix)
	if !ok {
		s.logger.Info("Reply with unknown order prefix",
			zap.String("from", from),
			zap.String("prefix", prefix))
		return fmt.Errorf("%w: %q", ErrUnknownPrefix, prefix)
	}

	s.logger.Info("Secondary channel reply accepted",
		zap.String("from", from),
		zap.String("prefix", prefix),
		zap.Bool("accepted", accepted))

	return s.engine.HandleConfirmationResponse(key, accepted, nil)
}

// PendingFor возвращает открытые подтверждения, ждущие ответа пользователя
func (s *InboundService) PendingFor(userID string) []*models.PendingConfirmation {
	return s.engine.ListSolicitations(userID)
}

// parseReply выделяет из текста решение и префикс ордера
func parseReply(text string) (accepted bool, prefix string, err error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 2 {
		return false, "", fmt.Errorf("%w: %q", ErrUnparsableReply, text)
	}

	switch strings.ToUpper(fields[0]) {
	case "YES":
		accepted = true
	case "NO":
		accepted = false
	default:
		return false, "", fmt.Errorf("%w: %q", ErrUnparsableReply, text)
	}

	prefix = fields[1]
	if len(prefix) != utils.OrderIDPrefixLen {
		return false, "", fmt.Errorf("%w: prefix %q must be %d characters",
			ErrUnparsableReply, prefix, utils.OrderIDPrefixLen)
	}
	return accepted, prefix, nil
}
