// Package submission runs one approved invoice draft through validation,
// credential materialization, sequence reservation and authority submission.
package submission

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/facturia/facturia/internal/authority"
	"github.com/facturia/facturia/internal/credentials"
	"github.com/facturia/facturia/internal/invoice"
	"github.com/facturia/facturia/internal/sequencer"
	"github.com/facturia/facturia/internal/shared"
)

const defaultAuthorityTimeout = 30 * time.Second

// State is a step of the submission lifecycle.
type State string

// Submission states, in order.
const (
	StateValidating              State = "validating"
	StateMaterializingCredential State = "materializing_credentials"
	StateAwaitingSequenceSlot    State = "awaiting_sequence_slot"
	StateSubmitting              State = "submitting"
	StateCleaningUp              State = "cleaning_up"
	StateDone                    State = "done"
)

// Auth carries the caller's taxpayer identity and signing material.
type Auth struct {
	AccountID   string `json:"accountId" validate:"required,numeric,len=11"`
	Certificate string `json:"certificate" validate:"required"`
	PrivateKey  string `json:"privateKey" validate:"required"`
}

// Request is one create-invoice call.
type Request struct {
	Auth    Auth                 `json:"auth"`
	Invoice invoice.PartialDraft `json:"invoice"`
}

// Result is a successful authorization.
type Result struct {
	AuthorizationCode   string
	AuthorizationExpiry invoice.Date
	VoucherNumber       int64
}

// Dialer opens an authenticated authority gateway for one identity.
type Dialer interface {
	Dial(ctx context.Context, id authority.Identity) (authority.Gateway, error)
}

// Config holds the orchestrator collaborators.
type Config struct {
	Dialer           Dialer
	Sequencer        *sequencer.Sequencer
	Materializer     *credentials.Materializer
	Location         *time.Location
	AuthorityTimeout time.Duration
	Metrics          *Metrics
	Logger           zerolog.Logger
	Now              func() time.Time
}

// Service orchestrates invoice submissions.
type Service struct {
	dialer           Dialer
	sequencer        *sequencer.Sequencer
	materializer     *credentials.Materializer
	location         *time.Location
	authorityTimeout time.Duration
	metrics          *Metrics
	logger           zerolog.Logger
	now              func() time.Time
	validate         *validator.Validate
}

// NewService constructs the orchestrator.
func NewService(cfg Config) *Service {
	s := &Service{
		dialer:           cfg.Dialer,
		sequencer:        cfg.Sequencer,
		materializer:     cfg.Materializer,
		location:         cfg.Location,
		authorityTimeout: cfg.AuthorityTimeout,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger.With().Str("component", "submission").Logger(),
		now:              cfg.Now,
		validate:         newValidator(),
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.authorityTimeout <= 0 {
		s.authorityTimeout = defaultAuthorityTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sequencer == nil {
		s.sequencer = sequencer.New(sequencer.NewMemoryLocker(), nil, cfg.Logger)
	}
	if s.materializer == nil {
		s.materializer = credentials.NewMaterializer("", cfg.Logger)
	}
	return s
}

// Submit authorizes one voucher for req. The result is returned exactly once
// and credentials never outlive the call.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	tracker := s.metrics.Track()
	logger := s.logger.With().Str("account_id", req.Auth.AccountID).Logger()
	enter := func(state State) {
		tracker.Enter(state)
		logger.Debug().Str("state", string(state)).Msg("submission state")
	}

	result, err := s.submit(ctx, req, enter, logger)
	enter(StateDone)
	if err != nil {
		logger.Warn().Err(err).Str("kind", string(shared.KindOf(err))).Msg("submission failed")
	} else {
		logger.Info().Int64("voucher", result.VoucherNumber).Msg("voucher authorized")
	}
	return result, tracker.End(err)
}

func (s *Service) submit(ctx context.Context, req Request, enter func(State), logger zerolog.Logger) (Result, error) {
	enter(StateValidating)
	if err := s.validate.Struct(req); err != nil {
		return Result{}, invalid(err)
	}

	now := s.now().In(s.location)
	draft := invoice.Complete(req.Invoice, now)
	if !draft.Type.Valid() || !draft.Concept.Valid() {
		logger.Warn().Str("type", string(draft.Type)).Str("concept", string(draft.Concept)).
			Msg("unknown type or concept, authority codes fall back to Factura C and Productos")
	}
	if err := invoice.Validate(draft, invoice.DateOf(now)); err != nil {
		return Result{}, err
	}

	enter(StateMaterializingCredential)
	creds := credentials.Credentials{
		AccountID:   req.Auth.AccountID,
		Certificate: req.Auth.Certificate,
		PrivateKey:  req.Auth.PrivateKey,
	}
	result, err := credentials.WithMaterialized(ctx, s.materializer, creds, func(files credentials.Files) (Result, error) {
		defer enter(StateCleaningUp)
		return s.authorize(ctx, req.Auth.AccountID, files, draft, enter)
	})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, credentials.ErrMissingMaterial):
		return Result{}, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	case shared.KindOf(err) == shared.KindInternal && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return Result{}, fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	return Result{}, err
}

func (s *Service) authorize(ctx context.Context, accountID string, files credentials.Files, draft invoice.Draft, enter func(State)) (Result, error) {
	gw, err := s.dialer.Dial(ctx, authority.Identity{AccountID: accountID, CertPath: files.CertPath, KeyPath: files.KeyPath})
	if err != nil {
		return Result{}, err
	}
	defer gw.Close()

	enter(StateAwaitingSequenceSlot)
	reservation, err := s.sequencer.Reserve(ctx, sequencer.Key{
		AccountID:   accountID,
		PointOfSale: draft.PointOfSale,
		VoucherType: draft.Type.Code(),
	})
	if err != nil {
		return Result{}, err
	}
	defer reservation.Release()

	enter(StateSubmitting)
	// Detached from request cancellation: the slot is only released once the
	// call has settled.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.authorityTimeout)
	defer cancel()

	auth, err := authority.Submit(callCtx, gw, draft, reservation)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && shared.KindOf(err) == shared.KindInternal {
			return Result{}, fmt.Errorf("%w: authority call timed out", shared.ErrTransport)
		}
		return Result{}, err
	}
	return Result{
		AuthorizationCode:   auth.Code,
		AuthorizationExpiry: auth.Expiry,
		VoucherNumber:       auth.VoucherNumber,
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("%w: invalid fields: %s", shared.ErrInvalidRequest, strings.Join(fields, ", "))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
