package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/identity"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingName     = errors.New("provisioning: name is required")
	ErrMissingEmail    = errors.New("provisioning: email is required")
	ErrMissingPassword = errors.New("provisioning: password is required")
	// ErrIdentityMismatch は再読込したアカウントが作成結果と一致しない場合に返却されます。
	ErrIdentityMismatch = errors.New("provisioning: identity mismatch after create")
)

const (
	defaultVerifyAttempts = 3
	defaultVerifyInterval = 200 * time.Millisecond
)

// Input は社員プロビジョニングの入力です。nil の任意項目は既定値になります。
type Input struct {
	Name               string
	Email              string
	Password           string
	Role               *string
	Department         *string
	Position           *string
	TeamID             *string
	ReportingManagerID *string
	HireDate           *time.Time
	IsActive           *bool
	CompanyID          *string
}

// Provisioner は HTTP 層から利用するプロビジョニングのポートです。
type Provisioner interface {
	Provision(ctx context.Context, in Input) *Result
}

// Saga は認証基盤のアカウントと社員行を 1 つの作業単位として作成します。
type Saga struct {
	directory      identity.Directory
	employees      employee.Repository
	clock          employee.Clock
	log            logrus.FieldLogger
	verifyAttempts int
	verifyInterval time.Duration
}

// Option は Saga の設定を変更します。
type Option func(*Saga)

// WithClock は既定日付の算出に使う Clock を指定します。
func WithClock(clock employee.Clock) Option {
	return func(s *Saga) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger はロガーを指定します。
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Saga) {
		if log != nil {
			s.log = log
		}
	}
}

// WithVerifyPolicy は作成直後の再読込の試行回数と初回待機間隔を指定します。
func WithVerifyPolicy(attempts int, interval time.Duration) Option {
	return func(s *Saga) {
		if attempts > 0 {
			s.verifyAttempts = attempts
		}
		if interval > 0 {
			s.verifyInterval = interval
		}
	}
}

// New は Saga を生成します。
func New(directory identity.Directory, employees employee.Repository, opts ...Option) *Saga {
	s := &Saga{
		directory:      directory,
		employees:      employees,
		clock:          utcClock{},
		log:            logrus.StandardLogger(),
		verifyAttempts: defaultVerifyAttempts,
		verifyInterval: defaultVerifyInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}

type state int

const (
	stateValidate state = iota
	statePreflight
	stateCreateIdentity
	stateVerifyIdentity
	stateInsertEmployee
	stateCompensate
	stateDone
)

func (s state) String() string {
	switch s {
	case stateValidate:
		return "validate"
	case statePreflight:
		return "preflight"
	case stateCreateIdentity:
		return "create_identity"
	case stateVerifyIdentity:
		return "verify_identity"
	case stateInsertEmployee:
		return "insert_employee"
	case stateCompensate:
		return "compensate"
	default:
		return "done"
	}
}

// run は 1 回の呼び出し中にステップ間で受け渡す値です。
type run struct {
	input    Input
	draft    employee.Employee
	password string
	identity *identity.Identity
	result   *Result
	log      logrus.FieldLogger
}

// CreateEmployee は Provision を実行し、社員またはエラーを返します。
func (s *Saga) CreateEmployee(ctx context.Context, in Input) (*employee.Employee, error) {
	res := s.Provision(ctx, in)
	if err := res.Error(); err != nil {
		return nil, err
	}
	return res.Employee, nil
}

// Provision は validate → preflight → create_identity → verify_identity → insert_employee と進み、
// verify/insert の失敗時と、作成要求の応答が得られず作成済みと判明した場合に compensate を経由して終了します。
// アカウント作成を発行した後は呼び出し元のキャンセルを無視して終端状態まで進めます。
func (s *Saga) Provision(ctx context.Context, in Input) *Result {
	r := &run{input: in, result: &Result{}, log: s.log}

	st := stateValidate
	for st != stateDone {
		r.log.WithField("step", st.String()).Debug("provisioning step")
		switch st {
		case stateValidate:
			st = s.validate(r)
		case statePreflight:
			st = s.preflight(ctx, r)
		case stateCreateIdentity:
			if err := ctx.Err(); err != nil {
				st = r.fail(OutcomeIdentityFailure, fmt.Errorf("aborted before identity create: %w", err))
				continue
			}
			ctx = context.WithoutCancel(ctx)
			st = s.createIdentity(ctx, r)
		case stateVerifyIdentity:
			st = s.verifyIdentity(ctx, r)
		case stateInsertEmployee:
			st = s.insertEmployee(ctx, r)
		case stateCompensate:
			st = s.compensate(ctx, r)
		default:
			st = stateDone
		}
	}

	entry := r.log.WithField("outcome", r.result.Outcome)
	if r.result.Succeeded() {
		entry.Info("employee provisioned")
	} else {
		entry.WithError(r.result.Err).Warn("employee provisioning aborted")
	}
	return r.result
}

func (r *run) fail(outcome Outcome, err error) state {
	r.result.Outcome = outcome
	r.result.Err = err
	return stateDone
}

func (s *Saga) validate(r *run) state {
	in := r.input

	if strings.TrimSpace(in.Name) == "" {
		return r.fail(OutcomeInvalidInput, ErrMissingName)
	}
	name, _ := employee.NormalizeName(in.Name)

	if strings.TrimSpace(in.Email) == "" {
		return r.fail(OutcomeInvalidInput, ErrMissingEmail)
	}
	email, err := employee.NormalizeEmail(in.Email)
	if err != nil {
		return r.fail(OutcomeInvalidInput, err)
	}

	if in.Password == "" {
		return r.fail(OutcomeInvalidInput, ErrMissingPassword)
	}

	role := employee.RoleEmployee
	if in.Role != nil {
		if role, err = employee.ParseRole(*in.Role); err != nil {
			return r.fail(OutcomeInvalidInput, err)
		}
	}

	teamID, err := employee.NormalizeReference(in.TeamID)
	if err != nil {
		return r.fail(OutcomeInvalidInput, fmt.Errorf("team_id: %w", err))
	}
	managerID, err := employee.NormalizeReference(in.ReportingManagerID)
	if err != nil {
		return r.fail(OutcomeInvalidInput, fmt.Errorf("reporting_manager_id: %w", err))
	}
	companyID, err := employee.NormalizeReference(in.CompanyID)
	if err != nil {
		return r.fail(OutcomeInvalidInput, fmt.Errorf("company_id: %w", err))
	}

	now := s.clock.Now()
	hireDate := employee.NormalizeDate(now)
	if in.HireDate != nil {
		hireDate = employee.NormalizeDate(*in.HireDate)
	}

	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	r.password = in.Password
	r.draft = employee.Employee{
		Email:              email,
		Name:               name,
		Role:               role,
		Department:         employee.NormalizeOptionalText(in.Department),
		Position:           employee.NormalizeOptionalText(in.Position),
		TeamID:             teamID,
		ReportingManagerID: managerID,
		CompanyID:          companyID,
		HireDate:           hireDate,
		IsActive:           isActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.log = r.log.WithField("email", email)
	return statePreflight
}

// preflight は両方のストアに同じメールアドレスが無いことを確認します。
// 確認自体の失敗は記録のみ行い先へ進みます。最終的な防御は社員テーブルの一意制約です。
func (s *Saga) preflight(ctx context.Context, r *run) state {
	email := r.draft.Email

	inDirectory := false
	if _, err := s.employees.FindByEmail(ctx, email); err == nil {
		inDirectory = true
	} else if !errors.Is(err, employee.ErrEmployeeNotFound) {
		r.log.WithError(err).Warn("preflight directory lookup failed, continuing")
	}

	inIdentity := false
	if _, err := s.directory.FindByEmail(ctx, email); err == nil {
		inIdentity = true
	} else if !errors.Is(err, identity.ErrNotFound) {
		r.log.WithError(err).Warn("preflight identity lookup failed, continuing")
	}

	switch {
	case inDirectory:
		r.result.Conflict = ConflictDirectory
		return r.fail(OutcomeDuplicate, employee.ErrEmailAlreadyExists)
	case inIdentity:
		r.result.Conflict = ConflictIdentity
		return r.fail(OutcomeDuplicate, identity.ErrEmailAlreadyExists)
	default:
		return stateCreateIdentity
	}
}

func (s *Saga) createIdentity(ctx context.Context, r *run) state {
	created, err := s.directory.Create(ctx, identity.CreateInput{
		Email:        r.draft.Email,
		Password:     r.password,
		Name:         r.draft.Name,
		Role:         string(r.draft.Role),
		EmailConfirm: true,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailAlreadyExists) {
			r.result.Conflict = ConflictIdentity
			return r.fail(OutcomeDuplicate, err)
		}
		if identity.IsTransient(err) {
			return s.reconcileCreate(ctx, r, err)
		}
		return r.fail(OutcomeIdentityFailure, err)
	}
	if created == nil || strings.TrimSpace(created.ID) == "" {
		return r.fail(OutcomeIdentityFailure, &identity.Failure{Kind: identity.FailureUnexpected, Message: "create returned no id"})
	}

	r.identity = created
	r.result.IdentityID = created.ID
	r.log = r.log.WithField("identity_id", created.ID)
	return stateVerifyIdentity
}

// reconcileCreate は応答を受け取れなかった作成要求がアカウントを作成済みかをメールアドレスで確認します。
// preflight で不在を確認済みのため、見つかったアカウントはこの呼び出しが作成したものとして削除します。
func (s *Saga) reconcileCreate(ctx context.Context, r *run, createErr error) state {
	r.result.Outcome = OutcomeIdentityFailure
	r.result.Err = createErr

	found, err := s.directory.FindByEmail(ctx, r.draft.Email)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return stateDone
	case err != nil:
		r.log.WithError(err).WithField("cause", createErr).Error("identity create outcome unknown, identity may be orphaned")
		return stateDone
	case found == nil || strings.TrimSpace(found.ID) == "":
		return stateDone
	}

	r.identity = found
	r.result.IdentityID = found.ID
	r.log = r.log.WithField("identity_id", found.ID)
	r.log.WithError(createErr).Warn("identity created despite failed create response, compensating")
	return stateCompensate
}

// verifyIdentity は作成直後のアカウントが読めることを確認します。
// 一時的な失敗と未反映による ErrNotFound は指数バックオフで再試行します。
func (s *Saga) verifyIdentity(ctx context.Context, r *run) state {
	operation := func() error {
		found, err := s.directory.Get(ctx, r.identity.ID)
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) || identity.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if found.ID != r.identity.ID {
			return backoff.Permanent(ErrIdentityMismatch)
		}
		return nil
	}

	if err := backoff.Retry(operation, s.retryPolicy(ctx)); err != nil {
		r.result.Outcome = OutcomeVerificationFailure
		r.result.Err = fmt.Errorf("verify identity %s: %w", r.identity.ID, err)
		return stateCompensate
	}
	return stateInsertEmployee
}

func (s *Saga) insertEmployee(ctx context.Context, r *run) state {
	row := r.draft
	row.ID = r.identity.ID

	created, err := s.employees.Create(ctx, &row)
	if err != nil {
		if errors.Is(err, employee.ErrEmailAlreadyExists) {
			r.result.Outcome = OutcomeDuplicate
			r.result.Conflict = ConflictDirectory
		} else {
			r.result.Outcome = OutcomeDirectoryFailure
		}
		r.result.Err = err
		return stateCompensate
	}

	r.result.Outcome = OutcomeProvisioned
	r.result.Employee = created
	return stateDone
}

// compensate はこの呼び出しで作成したアカウントを削除します。
// 削除の失敗は記録するだけで、呼び出し元へは元の失敗を返します。
func (s *Saga) compensate(ctx context.Context, r *run) state {
	id := r.identity.ID

	operation := func() error {
		err := s.directory.Delete(ctx, id)
		switch {
		case err == nil, errors.Is(err, identity.ErrNotFound):
			return nil
		case identity.IsTransient(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	if err := backoff.Retry(operation, s.retryPolicy(ctx)); err != nil {
		r.result.CompensationErr = err
		r.log.WithError(err).WithField("cause", r.result.Err).Error("compensating identity delete failed, identity may be orphaned")
		return stateDone
	}

	r.result.Compensated = true
	r.log.WithField("cause", r.result.Err).Info("identity deleted after failed provisioning")
	return stateDone
}

func (s *Saga) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.verifyInterval
	b.MaxElapsedTime = 0
	b.Reset()
	retries := uint64(0)
	if s.verifyAttempts > 1 {
		retries = uint64(s.verifyAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}
