package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"moai/api/internal/authpw"
	"moai/api/internal/logging"
)

// SignUp creates the account and mails the verification link when SMTP is
// configured. Without SMTP the caller receives the token for local use.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	resp, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return nil, accountError(err)
	}
	if s.EmailConfigured() {
		link := s.cfg.AppURL + "/verify-email?token=" + url.QueryEscape(resp.VerificationToken)
		if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, link); err != nil {
			logging.Logger.WithFields(logrus.Fields{"user_id": resp.UserID, "error": err}).Warn("send verification email")
		}
	}
	return resp, nil
}

// SignIn returns a session for a verified account.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	resp, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, accountError(err)
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if err := s.passwords.VerifyEmail(ctx, token); err != nil {
		return accountError(err)
	}
	return nil
}

// RequestPasswordReset returns the reset token only when it could not be
// mailed, and never for unknown addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, err := s.passwords.RequestPasswordReset(ctx, email)
	if err != nil {
		return "", err
	}
	if token == "" || !s.EmailConfigured() {
		return token, nil
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil
	}
	link := s.cfg.AppURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.email.SendPasswordResetEmail(user.Email, user.DisplayName, link); err != nil {
		logging.Logger.WithFields(logrus.Fields{"user_id": user.ID, "error": err}).Warn("send password reset email")
	}
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	if err := s.passwords.ResetPassword(ctx, req); err != nil {
		return accountError(err)
	}
	return nil
}

func accountError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrInvalidInput):
		return domainError(http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	case errors.Is(err, authpw.ErrInvalidToken):
		return domainError(http.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired token", nil)
	default:
		return err
	}
}
