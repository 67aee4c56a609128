package credauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/internal/flows"
	"github.com/go-playground/validator/v10"
)

// ErrSignupDisabled is returned by signup operations when Config.Signup is off.
var ErrSignupDisabled = errors.New("self-registration disabled")

// Register validates req, creates a disabled ROLE_USER credential and sends
// it a signup code. The credential is enabled by VerifySignup.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*credential.Credential, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.config.Signup.Enabled {
		return nil, newError(KindInvalid, ErrSignupDisabled, nil)
	}
	req.Email = normalizeHandle(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Phone = strings.TrimSpace(req.Phone)

	if err := e.validate.Struct(req); err != nil {
		mapped := registrationError(err)
		e.emitAudit(ctx, auditEventSignup, false, req.Email, "", mapped, nil)
		return nil, mapped
	}
	if err := e.allowCodeRequest(ctx, "signup", req.Email); err != nil {
		return nil, err
	}

	cred, err := e.flows.Register(ctx, flows.SignupRequest{
		Handle:      req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Phone:       req.Phone,
	})
	if err != nil && cred == nil {
		mapped := e.fail(ctx, "register", err)
		switch {
		case errors.Is(mapped, ErrAccountExists):
			e.metricInc(MetricSignupDuplicate)
		case errors.Is(mapped, ErrPasswordPolicy):
			e.metricInc(MetricPasswordPolicyRejected)
		}
		e.emitAudit(ctx, auditEventSignup, false, req.Email, "", mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricSignupSuccess)
	if err != nil {
		// The credential exists; the code can be resent.
		e.fail(ctx, "issue signup code", err)
	} else {
		e.metricInc(MetricCodeIssued)
	}
	e.emitAudit(ctx, auditEventSignup, true, cred.Handle, "", nil, nil)
	return cred, nil
}

// VerifySignup spends the signup code of address and enables its credential.
func (e *Engine) VerifySignup(ctx context.Context, address, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	address = normalizeHandle(address)

	if _, err := e.flows.VerifySignup(ctx, address, code); err != nil {
		mapped := e.fail(ctx, "verify signup", err)
		e.codeFailureMetrics(mapped)
		e.emitAudit(ctx, auditEventSignupVerify, false, address, "", mapped, nil)
		return mapped
	}
	e.metricInc(MetricCodeConsumed)
	e.metricInc(MetricSignupVerified)
	e.emitAudit(ctx, auditEventSignupVerify, true, address, "", nil, nil)
	return nil
}

// ResendSignupCode reissues the signup code of a credential that is not yet
// verified. Within the resend cooldown it returns a KindRateLimited error
// carrying the remaining wait.
func (e *Engine) ResendSignupCode(ctx context.Context, address string) error {
	if err := e.ready(); err != nil {
		return err
	}
	address = normalizeHandle(address)
	if err := e.allowCodeRequest(ctx, "resend_signup", address); err != nil {
		return err
	}

	if err := e.flows.ResendSignupCode(ctx, address); err != nil {
		mapped := e.fail(ctx, "resend signup code", err)
		if errors.Is(mapped, ErrCodeCooldown) {
			e.metricInc(MetricCodeCooldown)
			e.emitRateLimit(ctx, "code_resend", address, mapped)
		}
		e.emitAudit(ctx, auditEventCodeResend, false, address, "", mapped, purposeMeta("signup"))
		return mapped
	}
	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeResend, true, address, "", nil, purposeMeta("signup"))
	return nil
}

// registrationError lists every failed field as a violation.
func registrationError(err error) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return newError(KindInvalid, ErrRegistrationInvalid, err)
	}
	out := newError(KindInvalid, ErrRegistrationInvalid, err)
	for _, fe := range verrs {
		out.Violations = append(out.Violations, fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid e-mail address"
	case "e164":
		return field + " must be in E.164 format"
	case "eqfield":
		return "passwords do not match"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
