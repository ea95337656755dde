// Package dadata looks up Russian legal entities by INN through the DaData
// suggestions API and caches the answers.
package dadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/m3rciful/evabot/core/crosslink"
	"github.com/m3rciful/evabot/core/logger"
)

const (
	DefaultBaseURL = "https://suggestions.dadata.ru/suggestions/api/4_1/rs"
	DefaultTimeout = 10 * time.Second

	findByIDPath = "/findById/party"
	// shared is the cache owner for lookups; they are not tied to one user.
	shared int64 = 0
)

// ErrUpstream is returned for non-2xx answers.
var ErrUpstream = errors.New("dadata: upstream error")

// Config holds API credentials. An empty APIKey switches the client to stub mode.
type Config struct {
	APIKey  string        `yaml:"api_key" envconfig:"DADATA_API_KEY"`
	Secret  string        `yaml:"secret" envconfig:"DADATA_SECRET"`
	BaseURL string        `yaml:"base_url" envconfig:"DADATA_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"DADATA_TIMEOUT"`
}

// Normalize fills defaults.
func (c *Config) Normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Company is the subset of party data the bot shows and reuses.
type Company struct {
	Found          bool      `json:"found"`
	Stub           bool      `json:"stub,omitempty"`
	INN            string    `json:"inn"`
	KPP            string    `json:"kpp,omitempty"`
	OGRN           string    `json:"ogrn,omitempty"`
	Name           string    `json:"name"`
	FullName       string    `json:"full_name,omitempty"`
	Address        string    `json:"address,omitempty"`
	Manager        string    `json:"manager,omitempty"`
	ManagerPost    string    `json:"manager_post,omitempty"`
	OKVED          string    `json:"okved,omitempty"`
	Status         string    `json:"status,omitempty"`
	RegisteredAt   time.Time `json:"registered_at,omitempty"`
	LiquidatedAt   time.Time `json:"liquidated_at,omitempty"`
	EmployeeCount  int       `json:"employee_count,omitempty"`
	EmployeesKnown bool      `json:"employees_known,omitempty"`
}

// Client performs findById/party requests.
type Client struct {
	cfg   Config
	http  *http.Client
	cache *crosslink.Cache
}

// New builds a client. httpClient may be nil; cache may be nil to disable caching.
func New(cfg Config, httpClient *http.Client, cache *crosslink.Cache) *Client {
	cfg.Normalize()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, cache: cache}
}

// Configured reports whether real lookups are possible.
func (c *Client) Configured() bool { return c.cfg.APIKey != "" }

// Cache exposes the lookup cache so the GC can sweep it.
func (c *Client) Cache() *crosslink.Cache { return c.cache }

// FindByINN returns the company registered under inn. Found is false when the
// registry has no such entity.
func (c *Client) FindByINN(ctx context.Context, inn string) (Company, error) {
	if !c.Configured() {
		return stubCompany(inn), nil
	}
	key := crosslink.Key("inn:" + inn)
	if c.cache != nil {
		var cached Company
		ok, err := c.cache.Get(ctx, shared, key, &cached)
		if err != nil {
			logger.Warn(ctx, logger.CompDaData, "cache.get",
				slog.String("status", "fail"),
				slog.String("inn", inn),
				slog.String("err", err.Error()),
			)
		}
		if ok {
			logger.Debug(ctx, logger.CompDaData, "lookup",
				slog.String("inn", inn),
				slog.String("cache", "hit"),
			)
			return cached, nil
		}
	}

	start := time.Now()
	company, err := c.fetch(ctx, inn)
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.Error(ctx, logger.CompDaData, "lookup",
			slog.String("status", "fail"),
			slog.String("inn", inn),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return Company{}, err
	}
	logger.Info(ctx, logger.CompDaData, "lookup",
		slog.String("status", "ok"),
		slog.String("inn", inn),
		slog.Bool("found", company.Found),
		slog.String("cache", "miss"),
		slog.Duration("duration", took),
	)
	if company.Found && c.cache != nil {
		if err := c.cache.Put(ctx, shared, key, company); err != nil {
			logger.Warn(ctx, logger.CompDaData, "cache.put",
				slog.String("status", "fail"),
				slog.String("inn", inn),
				slog.String("err", err.Error()),
			)
		}
	}
	return company, nil
}

type findRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type findResponse struct {
	Suggestions []struct {
		Value string    `json:"value"`
		Data  partyData `json:"data"`
	} `json:"suggestions"`
}

type partyData struct {
	INN  string `json:"inn"`
	KPP  string `json:"kpp"`
	OGRN string `json:"ogrn"`
	Name struct {
		FullWithOPF  string `json:"full_with_opf"`
		ShortWithOPF string `json:"short_with_opf"`
	} `json:"name"`
	Address *struct {
		Value string `json:"value"`
	} `json:"address"`
	Management *struct {
		Name string `json:"name"`
		Post string `json:"post"`
	} `json:"management"`
	OKVED string `json:"okved"`
	State struct {
		Status           string `json:"status"`
		RegistrationDate *int64 `json:"registration_date"`
		LiquidationDate  *int64 `json:"liquidation_date"`
	} `json:"state"`
	EmployeeCount *int `json:"employee_count"`
}

func (c *Client) fetch(ctx context.Context, inn string) (Company, error) {
	body, err := sonic.Marshal(findRequest{Query: inn, Count: 1})
	if err != nil {
		return Company{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+findByIDPath, bytes.NewReader(body))
	if err != nil {
		return Company{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	if c.cfg.Secret != "" {
		req.Header.Set("X-Secret", c.cfg.Secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Company{}, fmt.Errorf("dadata: request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Company{}, fmt.Errorf("dadata: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Company{}, fmt.Errorf("%w: %s", ErrUpstream, resp.Status)
	}

	var out findResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return Company{}, fmt.Errorf("dadata: decode: %w", err)
	}
	if len(out.Suggestions) == 0 {
		return Company{INN: inn}, nil
	}
	s := out.Suggestions[0]
	return toCompany(s.Value, s.Data), nil
}

func toCompany(value string, d partyData) Company {
	c := Company{
		Found:    true,
		INN:      d.INN,
		KPP:      d.KPP,
		OGRN:     d.OGRN,
		Name:     d.Name.ShortWithOPF,
		FullName: d.Name.FullWithOPF,
		OKVED:    d.OKVED,
		Status:   d.State.Status,
	}
	if c.Name == "" {
		c.Name = value
	}
	if d.Address != nil {
		c.Address = d.Address.Value
	}
	if d.Management != nil {
		c.Manager = d.Management.Name
		c.ManagerPost = d.Management.Post
	}
	if d.State.RegistrationDate != nil {
		c.RegisteredAt = time.UnixMilli(*d.State.RegistrationDate).UTC()
	}
	if d.State.LiquidationDate != nil {
		c.LiquidatedAt = time.UnixMilli(*d.State.LiquidationDate).UTC()
	}
	if d.EmployeeCount != nil {
		c.EmployeeCount = *d.EmployeeCount
		c.EmployeesKnown = true
	}
	return c
}

// stubCompany is returned without API credentials so the flow stays usable.
func stubCompany(inn string) Company {
	tail := inn
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return Company{
		Found:        true,
		Stub:         true,
		INN:          inn,
		Name:         "ООО «Демо " + tail + "»",
		FullName:     "Общество с ограниченной ответственностью «Демо " + tail + "»",
		Address:      "г. Москва, ул. Примерная, д. 1",
		Manager:      "Иванов Иван Иванович",
		ManagerPost:  "Генеральный директор",
		Status:       StatusActive,
		RegisteredAt: time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC),
	}
}
