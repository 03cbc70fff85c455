package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/cache"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/latch"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

// ErrReturnWindowExceeded is wrapped as a rule violation when a return comes
// in after the configured window.
var ErrReturnWindowExceeded = errors.New("return window exceeded")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreName   string
	ReturnWindowDays   int
	AllowNegativeStock bool
	CatalogCacheTTL    time.Duration
	Now                func() time.Time
	Latch              latch.Latch
	Cache              cache.CatalogCache
	Logger             logrus.FieldLogger
}

type Service struct {
	repo             store.Repository
	cache            cache.CatalogCache
	cacheTTL         time.Duration
	latch            latch.Latch
	ids              *xid.Generator
	now              func() time.Time
	log              logrus.FieldLogger
	defaults         domain.Settings
	defaultStoreName string
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DefaultStoreName == "" {
		opts.DefaultStoreName = "Matriz"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Latch == nil {
		opts.Latch = latch.NewLocal()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopCatalogCache{}
	}
	if opts.CatalogCacheTTL <= 0 {
		opts.CatalogCacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Service{
		repo:     repo,
		cache:    opts.Cache,
		cacheTTL: opts.CatalogCacheTTL,
		latch:    opts.Latch,
		ids:      xid.NewGenerator(opts.Now),
		now:      opts.Now,
		log:      opts.Logger.WithField("module", "service"),
		defaults: domain.Settings{
			ReturnWindowDays:   opts.ReturnWindowDays,
			AllowNegativeStock: opts.AllowNegativeStock,
		},
		defaultStoreName: opts.DefaultStoreName,
	}
}

// Settings returns the persisted settings, or the configured defaults when
// none were saved yet.
func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return domain.Settings{}, classify(err, "load settings")
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	if settings.ReturnWindowDays < 0 || settings.ReturnWindowDays > 365 {
		return domain.Settings{}, apperr.New(apperr.Validation, "return_window_days must be between 0 and 365")
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Settings{}, classify(err, "save settings")
	}
	s.logAudit(ctx, "", "settings_update", "settings", "app", fmt.Sprintf("return_window_days=%d,allow_negative_stock=%t", settings.ReturnWindowDays, settings.AllowNegativeStock))
	return settings, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if !to.After(from) {
		return nil, apperr.New(apperr.Validation, "to must be after from")
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	storeName, err := s.scopeStore(ctx, "")
	if err != nil {
		return nil, err
	}
	logs, err := s.repo.ListAuditLogs(ctx, storeName, from, to, limit)
	if err != nil {
		return nil, classify(err, "list audit logs")
	}
	return logs, nil
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.IsAdmin() {
		return apperr.New(apperr.Forbidden, "admin role required")
	}
	return nil
}

// storeName resolves the establishment name the actor works in. Admins
// without an establishment, and the system actor, use the default store.
func (s *Service) storeName(ctx context.Context) string {
	actor := actorOrSystem(ctx)
	if actor.EstablishmentID == "" {
		return s.defaultStoreName
	}
	establishment, err := s.repo.GetEstablishment(ctx, actor.EstablishmentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).WithField("establishment_id", actor.EstablishmentID).Warn("failed to resolve establishment, using default store")
		}
		return s.defaultStoreName
	}
	return establishment.Name
}

// scopeStore returns the store filter for a read. Admins may ask for any
// store or all of them; everyone else only sees their own.
func (s *Service) scopeStore(ctx context.Context, requested string) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return requested, nil
	}
	if actor.IsAdmin() {
		return requested, nil
	}
	own := s.storeName(ctx)
	if requested != "" && requested != own {
		return "", apperr.New(apperr.Forbidden, "store %s is outside your establishment", requested)
	}
	return own, nil
}

func (s *Service) checkStoreAccess(ctx context.Context, storeName string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.IsAdmin() {
		return nil
	}
	if own := s.storeName(ctx); storeName != "" && storeName != own {
		return apperr.New(apperr.Forbidden, "store %s is outside your establishment", storeName)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, storeName string, action string, entityType string, entityID string, detail string) {
	if storeName == "" {
		storeName = s.defaultStoreName
	}
	actor := actorOrSystem(ctx)

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.Key(),
		Store:         storeName,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warn("failed to write audit log")
	}
}

// classify turns store sentinels into typed errors. Errors that are already
// classified pass through untouched.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var stockErr *store.StockError
	switch {
	case errors.As(err, &stockErr):
		return apperr.Wrap(apperr.Conflict, err, op)
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, err, op)
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrAlreadyReversed),
		errors.Is(err, store.ErrConcurrentUpdate),
		errors.Is(err, latch.ErrInFlight):
		return apperr.Wrap(apperr.Conflict, err, op)
	case errors.Is(err, store.ErrNotASale),
		errors.Is(err, store.ErrServiceItem),
		errors.Is(err, store.ErrMissingID):
		return apperr.Wrap(apperr.Validation, err, op)
	default:
		return apperr.Wrap(apperr.Transport, err, op)
	}
}
