// Package features implements what the bot actually does at each workflow
// step. Results meant for reuse by another feature go through the
// cross-link cache.
package features

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/evabot/core/crosslink"
	"github.com/m3rciful/evabot/core/dadata"
)

// Cross-link keys written by features.
const (
	KeyCompanyRequisites crosslink.Key = "company_requisites"
	KeyRiskTable         crosslink.Key = "risk_table"
	KeyContractAnalysis  crosslink.Key = "contract_analysis"
	KeyGeneratedDocument crosslink.Key = "generated_document"
)

var keyTitles = map[crosslink.Key]string{
	KeyCompanyRequisites: "Реквизиты контрагента",
	KeyRiskTable:         "Таблица рисков договора",
	KeyContractAnalysis:  "Анализ договора",
	KeyGeneratedDocument: "Сформированный документ",
}

// KeyTitle is the human name of a cross-link key.
func KeyTitle(k crosslink.Key) string {
	if t, ok := keyTitles[k]; ok {
		return t
	}
	return string(k)
}

var (
	// ErrCompanyNotFound is returned when the registry has no entity for the INN.
	ErrCompanyNotFound = errors.New("features: company not found")
	// ErrUnknownTemplate is returned by Generate for an unregistered template.
	ErrUnknownTemplate = errors.New("features: unknown template")
)

// Completer produces a chat completion. *ai.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompanyFinder looks up a party by tax id. *dadata.Client satisfies it.
type CompanyFinder interface {
	FindByINN(ctx context.Context, inn string) (dadata.Company, error)
}

// Options wires a Suite. AI may be nil, in which case offline fallbacks are used.
type Options struct {
	Links     *crosslink.Cache
	AI        Completer
	Companies CompanyFinder

	Now   func() time.Time
	NewID func() string
}

// Suite bundles the bot features.
type Suite struct {
	links     *crosslink.Cache
	ai        Completer
	companies CompanyFinder
	now       func() time.Time
	newID     func() string
}

// New builds a Suite. A nil Links gets an in-memory cache.
func New(opts Options) *Suite {
	s := &Suite{
		links:     opts.Links,
		ai:        opts.AI,
		companies: opts.Companies,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.links == nil {
		s.links = crosslink.New(nil, crosslink.Options{Now: s.now})
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Links lists the user's fresh cross-link keys.
func (s *Suite) Links(ctx context.Context, userID int64) ([]crosslink.Key, error) {
	return s.links.Fresh(ctx, userID)
}

// AIEnabled reports whether completions are backed by a model.
func (s *Suite) AIEnabled() bool { return s.ai != nil }
