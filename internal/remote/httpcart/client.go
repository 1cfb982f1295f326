// Package httpcart реализует domain.RemoteCart поверх HTTP API сервиса корзины.
package httpcart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/cartwire"
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/version"
)

const defaultTimeout = 15 * time.Second

// Options задаёт параметры клиента.
type Options struct {
	HTTPClient    *http.Client
	Logger        *log.Entry
	RevisionCheck bool
}

// Option настраивает клиент.
type Option func(*Options)

// WithHTTPClient подменяет http.Client (таймауты, транспорт).
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithoutRevisionCheck отключает отправку If-Match.
func WithoutRevisionCheck() Option {
	return func(opts *Options) {
		opts.RevisionCheck = false
	}
}

// Factory создаёт клиентов для сессий одного сервиса.
type Factory struct {
	baseURL string
	opts    Options
}

// NewFactory создаёт фабрику клиентов для сервиса с адресом baseURL.
func NewFactory(baseURL string, options ...Option) (*Factory, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid cart service url %q", baseURL)
	}

	opts := Options{RevisionCheck: true}
	for _, option := range options {
		option(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "httpcart")
	}

	return &Factory{baseURL: strings.TrimRight(parsed.String(), "/"), opts: opts}, nil
}

// ForSession возвращает клиента, аутентифицированного токеном сессии.
func (f *Factory) ForSession(session domain.Session) (domain.RemoteCart, error) {
	if strings.TrimSpace(session.Token) == "" {
		return nil, domain.ErrUnauthorized
	}
	return &Client{
		baseURL:       f.baseURL,
		token:         session.Token,
		httpClient:    f.opts.HTTPClient,
		revisionCheck: f.opts.RevisionCheck,
		logger:        f.opts.Logger.WithField("user_id", session.UserID),
	}, nil
}

// Client обслуживает корзину одной сессии. Запоминает ревизию из последнего ответа
// и передаёт её в If-Match для update, remove и clear.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	revisionCheck bool
	logger        *log.Entry

	mu           sync.Mutex
	lastRevision int64
}

// Fetch загружает корзину.
func (c *Client) Fetch(ctx context.Context) (domain.Cart, error) {
	return c.cartRequest(ctx, http.MethodGet, "/api/cart", false, nil)
}

// Add добавляет товар; количество суммируется с уже лежащим в корзине.
func (c *Client) Add(ctx context.Context, productID string, quantity int32) (domain.Cart, error) {
	body := cartwire.AddItemRequest{ProductID: productID, Quantity: quantity}
	return c.cartRequest(ctx, http.MethodPost, "/api/cart/items", false, body)
}

// Update задаёт количество товара.
func (c *Client) Update(ctx context.Context, productID string, quantity int32) (domain.Cart, error) {
	body := cartwire.UpdateItemRequest{Quantity: quantity}
	return c.cartRequest(ctx, http.MethodPut, itemPath(productID), true, body)
}

// Remove удаляет товар из корзины.
func (c *Client) Remove(ctx context.Context, productID string) (domain.Cart, error) {
	return c.cartRequest(ctx, http.MethodDelete, itemPath(productID), true, nil)
}

// Clear очищает корзину.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.cartRequest(ctx, http.MethodDelete, "/api/cart", true, nil)
	return err
}

// LastRevision возвращает ревизию из последнего успешного ответа.
func (c *Client) LastRevision() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRevision
}

func itemPath(productID string) string {
	return "/api/cart/items/" + url.PathEscape(productID)
}

func (c *Client) cartRequest(ctx context.Context, method, requestPath string, conditional bool, body any) (domain.Cart, error) {
	headers := make(map[string]string, 2)
	if key, ok := domain.IdempotencyKeyFromContext(ctx); ok && method != http.MethodGet {
		headers[cartwire.HeaderIdempotencyKey] = key
	}
	if conditional && c.revisionCheck {
		if revision := c.LastRevision(); revision > 0 {
			headers[cartwire.HeaderIfMatch] = cartwire.FormatRevision(revision)
		}
	}

	var out cartwire.Cart
	if err := c.doJSON(ctx, method, requestPath, headers, body, &out); err != nil {
		return domain.Cart{}, err
	}

	cart := out.ToDomain()
	c.mu.Lock()
	c.lastRevision = cart.Revision
	c.mu.Unlock()
	return cart, nil
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, headers map[string]string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.WithError(err).WithField("path", requestPath).Debug("cart request got no response")
		return fmt.Errorf("%s %s: %w: %v", method, requestPath, domain.ErrConnectivity, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("%s %s: read body: %w: %v", method, requestPath, domain.ErrConnectivity, readErr)
	}

	c.logger.WithFields(log.Fields{
		"method":   method,
		"path":     requestPath,
		"status":   resp.StatusCode,
		"duration": time.Since(started),
	}).Debug("cart request completed")

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode cart response: %w", err)
		}
		return nil
	}

	var errPayload cartwire.ErrorResponse
	_ = json.Unmarshal(payload, &errPayload)
	return &domain.RemoteError{StatusCode: resp.StatusCode, Message: errPayload.Error}
}

var (
	_ domain.RemoteCart        = (*Client)(nil)
	_ domain.RemoteCartFactory = (*Factory)(nil)
)
