// Package notify содержит клиент шлюза вторичного канала уведомлений.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"lotmarket/internal/config"
	"lotmarket/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrGatewayRejected - шлюз ответил клиентской ошибкой (4xx).
// Такие ошибки не повторяются: запрос не станет валиднее.
var ErrGatewayRejected = errors.New("secondary gateway rejected message")

// deliveryRequest - тело запроса к шлюзу
type deliveryRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SecondaryClient доставляет текстовые уведомления во вторичный канал
// через внешний HTTP шлюз. Доставка best-effort: при недоступности
// шлюза сообщение теряется после исчерпания повторов.
//
// Пустой GatewayURL в конфигурации выключает канал целиком -
// Send в этом режиме молча возвращает nil.
type SecondaryClient struct {
	client   *http.Client
	cfg      config.SecondaryConfig
	retryCfg retry.Config
	logger   *zap.Logger
}

// NewSecondaryClient создает клиент шлюза вторичного канала
func NewSecondaryClient(cfg config.SecondaryConfig, logger *zap.Logger) *SecondaryClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	retryCfg := retry.DeliveryConfig(cfg.MaxRetries)
	retryCfg.RetryIf = func(err error) bool {
		return !errors.Is(err, ErrGatewayRejected)
	}
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying secondary channel delivery",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	if cfg.GatewayURL == "" {
		logger.Info("Secondary notification channel disabled (SECONDARY_GATEWAY_URL not set)")
	}

	return &SecondaryClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		cfg:      cfg,
		retryCfg: retryCfg,
		logger:   logger,
	}
}

// Enabled сообщает, настроен ли шлюз
func (c *SecondaryClient) Enabled() bool {
	return c.cfg.GatewayURL != ""
}

// Send доставляет текст на адрес вторичного канала с повторами.
// Возвращает nil когда канал выключен конфигурацией.
func (c *SecondaryClient) Send(ctx context.Context, address, text string) error {
	if !c.Enabled() {
		c.logger.Debug("Secondary channel disabled, message skipped",
			zap.String("address", address))
		return nil
	}
	if address == "" {
		return fmt.Errorf("empty secondary address")
	}

	body, err := json.Marshal(deliveryRequest{To: address, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode delivery request: %w", err)
	}

	err = retry.Do(ctx, func() error {
		return c.deliver(ctx, body)
	}, c.retryCfg)
	if err != nil {
		c.logger.Error("Secondary channel delivery failed",
			zap.String("address", address),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Secondary channel message delivered",
		zap.String("address", address))
	return nil
}

func (c *SecondaryClient) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	// Тело ответа не нужно, но дочитываем для переиспользования соединения
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	default:
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}

// Close закрывает idle соединения клиента
func (c *SecondaryClient) Close() {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
