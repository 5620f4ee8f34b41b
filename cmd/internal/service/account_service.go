package service

import (
	"context"
	"errors"

	"medibook/cmd/internal/auth"
	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/utils"
	"medibook/cmd/internal/utils/apierror"

	"github.com/aws/smithy-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	FindBySub(ctx context.Context, sub string) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	FindAll(ctx context.Context) ([]*entity.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, acct *entity.Account) error
	Save(ctx context.Context, acct *entity.Account) error
}

// IdentityProvider verifies passwords, either locally or against Cognito.
type IdentityProvider interface {
	SignUp(ctx context.Context, creds *auth.Credentials) (*auth.Registration, error)
	Confirm(ctx context.Context, conf *auth.Confirmation) error
	SignIn(ctx context.Context, creds *auth.Credentials, passwordHash string) error
	// ChangePassword returns the new hash for providers that keep it with us.
	ChangePassword(ctx context.Context, email, current, proposed, passwordHash string) (string, error)
	Revoke(ctx context.Context, email string) error
}

type TokenIssuer interface {
	Issue(acct *entity.Account) (string, error)
}

type CreateAccountRequest struct {
	Name     string `json:"name" validate:"required,notblank,min=2,max=80"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=64"`
	Phone    string `json:"phone" validate:"max=32"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=64"`
}

type ConfirmSignupRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,min=1,max=6"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,min=2,max=80"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=64"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=64"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

type AccountResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type LoginResponse struct {
	Token string           `json:"token"`
	User  *AccountResponse `json:"user"`
}

type DefaultAccountService struct {
	AccountRepo AccountRepository
	Validate    *validator.Validate
	IDP         IdentityProvider
	Tokens      TokenIssuer
}

func NewAccountService(accountRepo AccountRepository, validate *validator.Validate, idp IdentityProvider, tokens TokenIssuer) *DefaultAccountService {
	return &DefaultAccountService{AccountRepo: accountRepo, Validate: validate, IDP: idp, Tokens: tokens}
}

func (u *DefaultAccountService) GetAccounts(ctx context.Context, subId string) ([]*AccountResponse, apierror.ErrorResponse) {
	caller, apierr := fetchCaller(ctx, u.AccountRepo, subId)
	if apierr != nil {
		return nil, apierr
	}
	if apierr := Authorize(caller.Role, ActionViewUsers); apierr != nil {
		return nil, apierr
	}

	accts, err := u.AccountRepo.FindAll(ctx)
	if err != nil {
		log.Errorf("failed to fetch all accounts: %v", err)
		return nil, apierror.InternalServerError
	}

	resp := make([]*AccountResponse, len(accts))
	for i, acct := range accts {
		resp[i] = toAccountResponse(acct)
	}
	return resp, nil
}

// GetAccount accepts "@me" for the caller. Anyone else's account needs the
// view_users permission.
func (u *DefaultAccountService) GetAccount(ctx context.Context, rawId, subId string) (*AccountResponse, apierror.ErrorResponse) {
	caller, apierr := fetchCaller(ctx, u.AccountRepo, subId)
	if apierr != nil {
		return nil, apierr
	}
	if rawId == "@me" || rawId == caller.ID {
		return toAccountResponse(caller), nil
	}
	if apierr := Authorize(caller.Role, ActionViewUsers); apierr != nil {
		return nil, apierr
	}

	acct, apierr := u.fetchByID(ctx, rawId)
	if apierr != nil {
		return nil, apierr
	}
	return toAccountResponse(acct), nil
}

// CreateAccount registers the account with the identity provider first and
// removes it there again if it cannot be stored here.
func (u *DefaultAccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*AccountResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := u.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}
	req.Email = utils.NormalizeEmail(req.Email)

	found, err := u.AccountRepo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		log.Errorf("failed to check if account already exists: %v", err)
		return nil, apierror.InternalServerError
	}
	if found {
		return nil, apierror.UserAlreadyExistsError
	}

	creds := &auth.Credentials{Email: req.Email, Password: req.Password}
	reg, apierr, revert := handleSignup(ctx, u.IDP, creds)
	if apierr != nil {
		return nil, apierr
	}

	now := utils.NowUTC()
	acct := &entity.Account{
		ID:            uuid.NewString(),
		SubUUID:       reg.Subject,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		PasswordHash:  reg.PasswordHash,
		EmailVerified: reg.Confirmed,
		Role:          entity.RolePatient,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = u.AccountRepo.Create(ctx, acct)
	if err != nil {
		revert()
		if errors.Is(err, entity.ErrEmailTaken) {
			return nil, apierror.UserAlreadyExistsError
		}
		log.Errorf("failed to create account: %v", err)
		return nil, apierror.InternalServerError
	}
	return toAccountResponse(acct), nil
}

func (u *DefaultAccountService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := u.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}
	req.Email = utils.NormalizeEmail(req.Email)

	acct, err := u.AccountRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Errorf("failed to fetch account from database: %v", err)
		return nil, apierror.InternalServerError
	}
	if acct == nil {
		return nil, apierror.IDPUserNotFoundError
	}

	creds := &auth.Credentials{Email: req.Email, Password: req.Password}
	if apierr := handleSignin(ctx, u.IDP, creds, acct.PasswordHash); apierr != nil {
		return nil, apierr
	}

	token, err := u.Tokens.Issue(acct)
	if err != nil {
		log.Errorf("failed to issue token for account %s: %v", acct.ID, err)
		return nil, apierror.InternalServerError
	}
	return &LoginResponse{Token: token, User: toAccountResponse(acct)}, nil
}

func (u *DefaultAccountService) ConfirmSignup(ctx context.Context, req *ConfirmSignupRequest) apierror.ErrorResponse {
	utils.Sanitize(req)
	if err := u.Validate.Struct(req); err != nil {
		return apierror.FromValidationError(err)
	}
	req.Email = utils.NormalizeEmail(req.Email)

	acct, err := u.AccountRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Errorf("failed to fetch account from database: %v", err)
		return apierror.InternalServerError
	}
	if acct == nil {
		return apierror.IDPUserNotFoundError
	}
	if acct.EmailVerified {
		return apierror.UserAlreadyConfirmedError
	}

	conf := &auth.Confirmation{Email: req.Email, Code: req.Code}
	if apierr := handleSignupConfirmation(ctx, u.IDP, conf); apierr != nil {
		return apierr
	}

	acct.EmailVerified = true
	acct.UpdatedAt = utils.NowUTC()
	if err := u.AccountRepo.Save(ctx, acct); err != nil {
		log.Errorf("failed to update account (%s) verified status: %v", acct.ID, err)
		return apierror.InternalServerError
	}
	return nil
}

func (u *DefaultAccountService) UpdateProfile(ctx context.Context, req *UpdateProfileRequest, subId string) (*AccountResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := u.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}

	caller, apierr := fetchCaller(ctx, u.AccountRepo, subId)
	if apierr != nil {
		return nil, apierr
	}

	if req.Name != "" {
		caller.Name = req.Name
	}
	if req.Phone != "" {
		caller.Phone = req.Phone
	}
	caller.UpdatedAt = utils.NowUTC()

	if err := u.AccountRepo.Save(ctx, caller); err != nil {
		log.Errorf("failed to update profile of account %s: %v", caller.ID, err)
		return nil, apierror.InternalServerError
	}
	return toAccountResponse(caller), nil
}

func (u *DefaultAccountService) ChangePassword(ctx context.Context, req *ChangePasswordRequest, subId string) apierror.ErrorResponse {
	utils.Sanitize(req)
	if err := u.Validate.Struct(req); err != nil {
		return apierror.FromValidationError(err)
	}

	caller, apierr := fetchCaller(ctx, u.AccountRepo, subId)
	if apierr != nil {
		return apierr
	}

	hash, apierr := handlePasswordChange(ctx, u.IDP, caller, req)
	if apierr != nil {
		return apierr
	}
	if hash == "" {
		return nil
	}

	caller.PasswordHash = hash
	caller.UpdatedAt = utils.NowUTC()
	if err := u.AccountRepo.Save(ctx, caller); err != nil {
		log.Errorf("failed to store new password of account %s: %v", caller.ID, err)
		return apierror.InternalServerError
	}
	return nil
}

// ChangeRole is reserved to admins, who cannot change their own role so
// the clinic is never left without one.
func (u *DefaultAccountService) ChangeRole(ctx context.Context, rawId string, req *ChangeRoleRequest, subId string) (*AccountResponse, apierror.ErrorResponse) {
	caller, apierr := fetchCaller(ctx, u.AccountRepo, subId)
	if apierr != nil {
		return nil, apierr
	}
	if apierr := Authorize(caller.Role, ActionChangeRole); apierr != nil {
		return nil, apierr
	}

	utils.Sanitize(req)
	if err := u.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}

	acct, apierr := u.fetchByID(ctx, rawId)
	if apierr != nil {
		return nil, apierr
	}
	if acct.ID == caller.ID {
		return nil, apierror.NewValidation("You cannot change your own role")
	}
	return u.saveRole(ctx, acct, entity.Role(req.Role))
}

// AssignRole sets a role without a caller, for bootstrapping the first
// admin from the command line.
func (u *DefaultAccountService) AssignRole(ctx context.Context, email string, role entity.Role) (*AccountResponse, apierror.ErrorResponse) {
	if !role.IsValid() {
		return nil, apierror.InvalidRoleError
	}

	acct, err := u.AccountRepo.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		log.Errorf("failed to fetch account %s: %v", email, err)
		return nil, apierror.InternalServerError
	}
	if acct == nil {
		return nil, apierror.UserNotFoundError
	}
	return u.saveRole(ctx, acct, role)
}

func (u *DefaultAccountService) saveRole(ctx context.Context, acct *entity.Account, role entity.Role) (*AccountResponse, apierror.ErrorResponse) {
	acct.Role = role
	acct.UpdatedAt = utils.NowUTC()
	if err := u.AccountRepo.Save(ctx, acct); err != nil {
		log.Errorf("failed to change role of account %s: %v", acct.ID, err)
		return nil, apierror.InternalServerError
	}
	return toAccountResponse(acct), nil
}

func (u *DefaultAccountService) fetchByID(ctx context.Context, id string) (*entity.Account, apierror.ErrorResponse) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierror.NewInvalidParamTypeError("id", "uuid")
	}
	acct, err := u.AccountRepo.FindByID(ctx, id)
	if err != nil {
		log.Errorf("failed to find account (%s) by id: %v", id, err)
		return nil, apierror.InternalServerError
	}
	if acct == nil {
		return nil, apierror.UserNotFoundError
	}
	return acct, nil
}

// fetchCaller loads the account behind a token subject. Roles are always
// read from storage, never trusted from the token.
func fetchCaller(ctx context.Context, repo AccountRepository, sub string) (*entity.Account, apierror.ErrorResponse) {
	if sub == "" {
		return nil, apierror.InvalidAuthTokenError
	}
	acct, err := repo.FindBySub(ctx, sub)
	if err != nil {
		log.Errorf("failed to find account (%s) by sub: %v", sub, err)
		return nil, apierror.InternalServerError
	}
	if acct == nil {
		return nil, apierror.InvalidAuthTokenError
	}
	return acct, nil
}

func handleSignup(ctx context.Context, idp IdentityProvider, creds *auth.Credentials) (*auth.Registration, apierror.ErrorResponse, func()) {
	revert := func() {
		if err := idp.Revoke(ctx, creds.Email); err != nil {
			log.Errorf("failed to revert signup of %s: %v", creds.Email, err)
		}
	}

	reg, err := idp.SignUp(ctx, creds)
	if err == nil {
		return reg, nil, revert
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidPasswordException":
			return nil, apierror.IDPInvalidPasswordError, revert
		case "UsernameExistsException":
			return nil, apierror.IDPExistingEmailError, revert
		default:
			log.Errorf("signup failed for user (%s): %s - %s", creds.Email, apiErr.ErrorCode(), apiErr.ErrorMessage())
			return nil, apierror.InternalServerError, revert
		}
	}

	log.Errorf("failed to signup user (%s): %v", creds.Email, err)
	return nil, apierror.InternalServerError, revert
}

func handleSignin(ctx context.Context, idp IdentityProvider, creds *auth.Credentials, passwordHash string) apierror.ErrorResponse {
	err := idp.SignIn(ctx, creds, passwordHash)
	if err == nil {
		return nil
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return apierror.IDPCredentialsMismatchError
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UserNotFoundException":
			return apierror.IDPUserNotFoundError
		case "UserNotConfirmedException":
			return apierror.IDPUserNotConfirmedError
		case "NotAuthorizedException":
			return apierror.IDPCredentialsMismatchError
		default:
			log.Errorf("signin failed for user (%s): %s - %s", creds.Email, apiErr.ErrorCode(), apiErr.ErrorMessage())
			return apierror.InternalServerError
		}
	}

	log.Errorf("failed to signin user (%s): %v", creds.Email, err)
	return apierror.InternalServerError
}

func handleSignupConfirmation(ctx context.Context, idp IdentityProvider, conf *auth.Confirmation) apierror.ErrorResponse {
	err := idp.Confirm(ctx, conf)
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "CodeMismatchException":
			return apierror.IDPConfirmCodeMismatchError
		case "ExpiredCodeException":
			return apierror.IDPConfirmCodeExpiredError
		case "UserNotFoundException":
			return apierror.IDPUserNotFoundError
		default:
			log.Errorf("confirmation failed for user (%s): %s - %s", conf.Email, apiErr.ErrorCode(), apiErr.ErrorMessage())
			return apierror.InternalServerError
		}
	}

	log.Errorf("failed to confirm user (%s): %v", conf.Email, err)
	return apierror.InternalServerError
}

func handlePasswordChange(ctx context.Context, idp IdentityProvider, acct *entity.Account, req *ChangePasswordRequest) (string, apierror.ErrorResponse) {
	hash, err := idp.ChangePassword(ctx, acct.Email, req.CurrentPassword, req.NewPassword, acct.PasswordHash)
	if err == nil {
		return hash, nil
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return "", apierror.PasswordMismatchError
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotAuthorizedException":
			return "", apierror.PasswordMismatchError
		case "InvalidPasswordException":
			return "", apierror.IDPInvalidPasswordError
		case "LimitExceededException", "TooManyRequestsException":
			return "", apierror.TooManyRequestsError
		default:
			log.Errorf("password change failed for user (%s): %s - %s", acct.Email, apiErr.ErrorCode(), apiErr.ErrorMessage())
			return "", apierror.InternalServerError
		}
	}

	log.Errorf("failed to change password of user (%s): %v", acct.Email, err)
	return "", apierror.InternalServerError
}

func toAccountResponse(acct *entity.Account) *AccountResponse {
	return &AccountResponse{
		ID:            acct.ID,
		Name:          acct.Name,
		Email:         acct.Email,
		Phone:         acct.Phone,
		Role:          string(acct.Role),
		EmailVerified: acct.EmailVerified,
		CreatedAt:     utils.FormatEpoch(acct.CreatedAt),
		UpdatedAt:     utils.FormatEpoch(acct.UpdatedAt),
	}
}
