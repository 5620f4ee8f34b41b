package cognitoclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"medibook/cmd/internal/auth"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

var ErrNoAuthResult = errors.New("cognito returned no authentication result")

// API is the subset of the Cognito client the provider calls.
type API interface {
	SignUp(ctx context.Context, in *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	InitiateAuth(ctx context.Context, in *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	ChangePassword(ctx context.Context, in *cognitoidentityprovider.ChangePasswordInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ChangePasswordOutput, error)
	AdminDeleteUser(ctx context.Context, in *cognitoidentityprovider.AdminDeleteUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error)
}

type Options struct {
	ClientID     string
	ClientSecret string // only for app clients created with a secret
	UserPoolID   string
}

// Provider authenticates accounts against a Cognito user pool. Password
// hashes never leave Cognito.
type Provider struct {
	client API
	opts   Options
}

func New(client API, opts Options) *Provider {
	return &Provider{client: client, opts: opts}
}

// InitCognitoClient builds a provider from the default AWS credential chain.
func InitCognitoClient(ctx context.Context, opts Options) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return New(cognitoidentityprovider.NewFromConfig(cfg), opts), nil
}

func (p *Provider) SignUp(ctx context.Context, creds *auth.Credentials) (*auth.Registration, error) {
	out, err := p.client.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId:   aws.String(p.opts.ClientID),
		Username:   aws.String(creds.Email),
		Password:   aws.String(creds.Password),
		SecretHash: p.secretHash(creds.Email),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(creds.Email)},
		},
	})
	if err != nil {
		return nil, err
	}
	return &auth.Registration{Subject: aws.ToString(out.UserSub), Confirmed: out.UserConfirmed}, nil
}

func (p *Provider) Confirm(ctx context.Context, conf *auth.Confirmation) error {
	_, err := p.client.ConfirmSignUp(ctx, &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(p.opts.ClientID),
		Username:         aws.String(conf.Email),
		ConfirmationCode: aws.String(conf.Code),
		SecretHash:       p.secretHash(conf.Email),
	})
	return err
}

func (p *Provider) SignIn(ctx context.Context, creds *auth.Credentials, _ string) error {
	_, err := p.accessToken(ctx, creds.Email, creds.Password)
	return err
}

func (p *Provider) ChangePassword(ctx context.Context, email, current, proposed, _ string) (string, error) {
	token, err := p.accessToken(ctx, email, current)
	if err != nil {
		return "", err
	}
	_, err = p.client.ChangePassword(ctx, &cognitoidentityprovider.ChangePasswordInput{
		AccessToken:      aws.String(token),
		PreviousPassword: aws.String(current),
		ProposedPassword: aws.String(proposed),
	})
	return "", err
}

// Revoke removes a user, used to undo a sign up whose local account could
// not be stored.
func (p *Provider) Revoke(ctx context.Context, email string) error {
	_, err := p.client.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(p.opts.UserPoolID),
		Username:   aws.String(email),
	})
	return err
}

func (p *Provider) accessToken(ctx context.Context, email, password string) (string, error) {
	params := map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	}
	if hash := p.secretHash(email); hash != nil {
		params["SECRET_HASH"] = *hash
	}

	out, err := p.client.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(p.opts.ClientID),
		AuthParameters: params,
	})
	if err != nil {
		return "", err
	}
	if out.AuthenticationResult == nil {
		return "", ErrNoAuthResult
	}
	return aws.ToString(out.AuthenticationResult.AccessToken), nil
}

// secretHash is Base64(HMAC_SHA256(secret, username + clientId)), or nil
// when the app client has no secret.
func (p *Provider) secretHash(username string) *string {
	if p.opts.ClientSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(p.opts.ClientSecret))
	mac.Write([]byte(username + p.opts.ClientID))
	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
